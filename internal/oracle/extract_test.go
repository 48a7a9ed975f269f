package oracle

import (
	"context"
	"testing"
)

func TestExtractCodeFencedBlock(t *testing.T) {
	response := "Here is the transformer:\n```go\npackage main\n\nfunc main() {}\n```\nLet me know if you need changes."
	got := ExtractCode(response)
	want := "package main\n\nfunc main() {}"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestExtractCodeNoFence(t *testing.T) {
	response := "package main\n\nfunc main() {}"
	got := ExtractCode(response)
	if got != response {
		t.Fatalf("got %q, want %q", got, response)
	}
}

func TestExtractCodeUnclosedFence(t *testing.T) {
	response := "```go\npackage main\nfunc main() {}"
	got := ExtractCode(response)
	if got != response {
		t.Fatalf("expected unclosed fence to fall back to raw text, got %q", got)
	}
}

func TestStubOracleUnavailable(t *testing.T) {
	o := StubOracle{}
	if _, err := o.Complete(context.Background(), "prompt"); err != ErrUnavailable {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
