package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/claude/setplayer/internal/session"
)

// HuhPrompter asks prompts interactively on the terminal.
type HuhPrompter struct{}

// Ask shows the prompt's choices as a select followed by its text fields. An
// aborted form answers cancel.
func (HuhPrompter) Ask(ctx context.Context, p session.Prompt) (session.Response, error) {
	var role string
	opts := make([]huh.Option[string], 0, len(p.Choices))
	for _, c := range p.Choices {
		opts = append(opts, huh.NewOption(c.Label, c.Role))
	}
	values := make([]string, len(p.Fields))

	fields := []huh.Field{
		huh.NewSelect[string]().
			Title(p.Title).
			Description(p.Message).
			Options(opts...).
			Value(&role),
	}
	group := huh.NewGroup(fields...)
	groups := []*huh.Group{group}

	for i, f := range p.Fields {
		values[i] = f.Default
		groups = append(groups, huh.NewGroup(
			huh.NewInput().
				Title(f.Label).
				Placeholder(f.Default).
				Value(&values[i]),
		).WithHideFunc(func() bool { return role != session.RoleForkPlan }))
	}

	err := huh.NewForm(groups...).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) {
		return session.Response{Role: session.RoleCancel}, nil
	}
	if err != nil {
		return session.Response{}, fmt.Errorf("asking %s: %w", p.Kind, err)
	}

	r := session.Response{Role: role}
	for i, f := range p.Fields {
		if values[i] == "" {
			continue
		}
		if r.Data == nil {
			r.Data = make(map[string]string)
		}
		r.Data[f.Name] = values[i]
	}
	return r, nil
}

// parseChoices reads --choice values of the form kind=role or
// kind=role,field=value.
func parseChoices(raw []string) (session.Decisions, error) {
	d := session.Decisions{}
	for _, c := range raw {
		parts := strings.Split(c, ",")
		kind, role, ok := strings.Cut(parts[0], "=")
		if !ok || kind == "" || role == "" {
			return nil, fmt.Errorf("invalid choice %q: want kind=role", c)
		}
		r := session.Response{Role: role}
		for _, kv := range parts[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid choice %q: bad field %q", c, kv)
			}
			if r.Data == nil {
				r.Data = make(map[string]string)
			}
			r.Data[k] = v
		}
		d[session.PromptKind(kind)] = r
	}
	return d, nil
}
