package oracle

import "context"

// StubOracle is a no-op Oracle: every call reports ErrUnavailable. Used when
// no provider is configured so the core falls back entirely to the template
// path - the oracle is always permitted to be stubbed or absent.
type StubOracle struct{}

func (StubOracle) Complete(ctx context.Context, prompt string) (string, error) {
	return "", ErrUnavailable
}

func (StubOracle) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "", ErrUnavailable
}

var _ Oracle = StubOracle{}
var _ WithSystemPrompt = StubOracle{}
