package main

import "github.com/claude/setplayer/internal/cli"

func main() {
	cli.Execute()
}
