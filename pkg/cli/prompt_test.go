package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newTestPrompter(input string) (*Prompter, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &Prompter{
		In:  strings.NewReader(input),
		Out: out,
	}, out
}

func TestAsk_WithInput(t *testing.T) {
	p, _ := newTestPrompter("alice\n")
	got := p.Ask("Username", "default")
	if got != "alice" {
		t.Errorf("Ask() = %q, want %q", got, "alice")
	}
}

func TestAsk_EmptyUsesDefault(t *testing.T) {
	p, _ := newTestPrompter("\n")
	got := p.Ask("Username", "fallback")
	if got != "fallback" {
		t.Errorf("Ask() = %q, want %q", got, "fallback")
	}
}

func TestAskPassword_Fallback(t *testing.T) {
	// Not a real terminal, so it falls back to plain read.
	p, _ := newTestPrompter("secret123\n")
	got := p.AskPassword("Password")
	if got != "secret123" {
		t.Errorf("AskPassword() = %q, want %q", got, "secret123")
	}
}

func TestChoose_ValidSelection(t *testing.T) {
	p, _ := newTestPrompter("2\n")
	got := p.Choose("Driver", []string{"sqlite", "postgres"}, 0)
	if got != "postgres" {
		t.Errorf("Choose() = %q, want %q", got, "postgres")
	}
}

func TestChoose_EmptyUsesDefault(t *testing.T) {
	p, _ := newTestPrompter("\n")
	got := p.Choose("Driver", []string{"sqlite", "postgres"}, 0)
	if got != "sqlite" {
		t.Errorf("Choose() = %q, want %q", got, "sqlite")
	}
}

func TestChoose_RetriesOnInvalid(t *testing.T) {
	p, _ := newTestPrompter("9\n1\n")
	got := p.Choose("Driver", []string{"sqlite", "postgres"}, 0)
	if got != "sqlite" {
		t.Errorf("Choose() = %q, want %q", got, "sqlite")
	}
}

func TestConfirm_Yes(t *testing.T) {
	p, _ := newTestPrompter("y\n")
	if !p.Confirm("Continue?", false) {
		t.Error("Confirm() = false, want true")
	}
}

func TestConfirm_DefaultNo(t *testing.T) {
	p, _ := newTestPrompter("\n")
	if p.Confirm("Continue?", false) {
		t.Error("Confirm() = true, want false (default)")
	}
}
