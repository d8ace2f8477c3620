package llm

import (
	"context"
	"sync"
)

// Fake is a scripted Model for tests. It records every prompt.
type Fake struct {
	mu        sync.Mutex
	respond   func(prompt string) (string, error)
	responses []string
	prompts   []string
}

// NewFake returns responses in order. After the last one it keeps returning
// the last response; with no responses it returns "".
func NewFake(responses ...string) *Fake {
	return &Fake{responses: responses}
}

// NewFakeFunc answers every prompt with fn.
func NewFakeFunc(fn func(prompt string) (string, error)) *Fake {
	return &Fake{respond: fn}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	n := len(f.prompts)
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.respond != nil {
		return f.respond(prompt)
	}
	switch {
	case len(f.responses) == 0:
		return "", nil
	case n < len(f.responses):
		return f.responses[n], nil
	default:
		return f.responses[len(f.responses)-1], nil
	}
}

// Calls returns the number of Generate invocations.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// Prompts returns the recorded prompts in call order.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

var _ Model = (*Fake)(nil)
