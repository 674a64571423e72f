package session

import (
	"context"
	"fmt"
)

// PromptKind identifies which operator decision is being asked for.
type PromptKind string

const (
	PromptSkipLastSet PromptKind = "skip_last_set"
	PromptRestart     PromptKind = "restart"
	PromptDeferred    PromptKind = "deferred"
	PromptFinish      PromptKind = "finish"
	PromptReconcile   PromptKind = "reconcile"
)

// Response roles.
const (
	RoleSkipExercise = "skip_exercise"
	RoleSkipSet      = "skip_set"
	RoleRestart      = "restart"
	RoleDoNow        = "do_now"
	RoleFinish       = "finish"
	RoleContinue     = "continue"
	RoleLogAsIs      = "log_as_is"
	RoleUpdatePlan   = "update_plan"
	RoleForkPlan     = "fork_plan"
	RoleCancel       = "cancel"
)

// Choice is one button of a prompt.
type Choice struct {
	Role  string `json:"role"`
	Label string `json:"label"`
}

// Field is one text input of a prompt.
type Field struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Default string `json:"default,omitempty"`
}

// Prompt is a titled choice set, optionally with input fields.
type Prompt struct {
	Kind    PromptKind `json:"kind"`
	Title   string     `json:"title"`
	Message string     `json:"message,omitempty"`
	Choices []Choice   `json:"choices"`
	Fields  []Field    `json:"fields,omitempty"`
}

// Allows reports whether role is one of the prompt's choices.
func (p Prompt) Allows(role string) bool {
	for _, c := range p.Choices {
		if c.Role == role {
			return true
		}
	}
	return false
}

// Response is the operator's answer: the chosen role and any field values.
type Response struct {
	Role string            `json:"role"`
	Data map[string]string `json:"data,omitempty"`
}

// Prompter presents a prompt and waits for the operator.
type Prompter interface {
	Ask(ctx context.Context, p Prompt) (Response, error)
}

// Decisions answers prompts from a fixed set of pre-supplied responses, keyed
// by prompt kind. Unanswered prompts yield a *DecisionRequiredError carrying
// the prompt, so a request/response transport can show it and retry.
type Decisions map[PromptKind]Response

// Ask implements Prompter.
func (d Decisions) Ask(_ context.Context, p Prompt) (Response, error) {
	r, ok := d[p.Kind]
	if !ok {
		return Response{}, &DecisionRequiredError{Prompt: p}
	}
	if !p.Allows(r.Role) {
		return Response{}, invalid("decision", "%q is not a choice for %s", r.Role, p.Kind)
	}
	return r, nil
}

type prompterKey struct{}

// WithPrompter attaches p to ctx; operations that need a decision ask it.
func WithPrompter(ctx context.Context, p Prompter) context.Context {
	return context.WithValue(ctx, prompterKey{}, p)
}

func prompterFrom(ctx context.Context, fallback Prompter) Prompter {
	if p, ok := ctx.Value(prompterKey{}).(Prompter); ok && p != nil {
		return p
	}
	if fallback != nil {
		return fallback
	}
	return Decisions{}
}

// Ask puts p to the prompter attached to ctx. Without one it returns a
// *DecisionRequiredError carrying p.
func Ask(ctx context.Context, p Prompt) (Response, error) {
	return prompterFrom(ctx, nil).Ask(ctx, p)
}

func (s *Session) ask(ctx context.Context, p Prompt) (Response, error) {
	r, err := prompterFrom(ctx, s.deps.Prompter).Ask(ctx, p)
	if err != nil {
		return Response{}, err
	}
	if r.Role == RoleCancel {
		return Response{}, ErrCancelled
	}
	if !p.Allows(r.Role) {
		return Response{}, invalid("decision", "%q is not a choice for %s", r.Role, p.Kind)
	}
	return r, nil
}

func skipLastSetPrompt(name string) Prompt {
	return Prompt{
		Kind:    PromptSkipLastSet,
		Title:   "Last set",
		Message: fmt.Sprintf("This is the last remaining set of %s. Skip the whole exercise instead?", name),
		Choices: []Choice{
			{Role: RoleSkipExercise, Label: "Skip exercise"},
			{Role: RoleSkipSet, Label: "Skip set only"},
			{Role: RoleCancel, Label: "Cancel"},
		},
	}
}

func restartPrompt(name string) Prompt {
	return Prompt{
		Kind:    PromptRestart,
		Title:   "Restart exercise",
		Message: fmt.Sprintf("%s is already logged. Restarting deletes its logged sets.", name),
		Choices: []Choice{
			{Role: RoleRestart, Label: "Restart"},
			{Role: RoleCancel, Label: "Cancel"},
		},
	}
}

func deferredPrompt(n int) Prompt {
	return Prompt{
		Kind:    PromptDeferred,
		Title:   "Deferred exercises",
		Message: fmt.Sprintf("%d exercise(s) were left for later. Do them now?", n),
		Choices: []Choice{
			{Role: RoleDoNow, Label: "Do them now"},
			{Role: RoleFinish, Label: "Finish workout"},
			{Role: RoleContinue, Label: "Not yet"},
		},
	}
}

func finishPrompt() Prompt {
	return Prompt{
		Kind:    PromptFinish,
		Title:   "Workout complete",
		Message: "Every set is done.",
		Choices: []Choice{
			{Role: RoleFinish, Label: "Finish workout"},
			{Role: RoleContinue, Label: "Keep going"},
		},
	}
}

func reconcilePrompt(adHoc bool, reasons []string, defaultName string) Prompt {
	p := Prompt{
		Kind:  PromptReconcile,
		Title: "Workout differs from plan",
		Fields: []Field{
			{Name: "name", Label: "New plan name", Default: defaultName},
		},
	}
	if len(reasons) > 0 {
		p.Message = reasons[0]
		if len(reasons) > 1 {
			p.Message = fmt.Sprintf("%s (and %d more)", reasons[0], len(reasons)-1)
		}
	}
	p.Choices = append(p.Choices, Choice{Role: RoleLogAsIs, Label: "Log as performed"})
	if !adHoc {
		p.Choices = append(p.Choices, Choice{Role: RoleUpdatePlan, Label: "Update plan"})
	}
	p.Choices = append(p.Choices,
		Choice{Role: RoleForkPlan, Label: "Save as new plan"},
		Choice{Role: RoleCancel, Label: "Cancel"},
	)
	return p
}
