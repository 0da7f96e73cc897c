package credentials

import (
	"context"
	"strings"
	"testing"
)

func TestEnvPromptReadsEnvironment(t *testing.T) {
	t.Setenv("VOXLINE_TEST_KEY", "from-env")
	p := NewEnvPrompt("VOXLINE_TEST_KEY")

	if !p.HasCredential() {
		t.Fatal("HasCredential = false with the variable set")
	}
	if got := p.Credential(); got != "from-env" {
		t.Errorf("Credential = %q, want from-env", got)
	}
}

func TestEnvPromptMissingEnvironment(t *testing.T) {
	t.Setenv("VOXLINE_TEST_KEY", "")
	p := NewEnvPrompt("VOXLINE_TEST_KEY")
	if p.HasCredential() {
		t.Error("HasCredential = true with the variable empty")
	}
}

func TestPromptForCredential(t *testing.T) {
	t.Setenv("VOXLINE_TEST_KEY", "stale-env-value")
	p := NewEnvPrompt("VOXLINE_TEST_KEY")
	p.In = strings.NewReader("  typed-key  \n")
	p.Out = &strings.Builder{}

	if err := p.PromptForCredential(context.Background()); err != nil {
		t.Fatalf("PromptForCredential: %v", err)
	}
	// The prompted value wins over the environment.
	if got := p.Credential(); got != "typed-key" {
		t.Errorf("Credential = %q, want typed-key", got)
	}
}

func TestPromptRejectsEmptyInput(t *testing.T) {
	t.Setenv("VOXLINE_TEST_KEY", "")
	p := NewEnvPrompt("VOXLINE_TEST_KEY")
	p.In = strings.NewReader("   \n")
	p.Out = &strings.Builder{}

	if err := p.PromptForCredential(context.Background()); err == nil {
		t.Error("empty input should be rejected")
	}
}

func TestPromptHonoursCancelledContext(t *testing.T) {
	t.Setenv("VOXLINE_TEST_KEY", "")
	p := NewEnvPrompt("VOXLINE_TEST_KEY")
	p.In = strings.NewReader("key\n")
	p.Out = &strings.Builder{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.PromptForCredential(ctx); err == nil {
		t.Error("cancelled context should abort the prompt")
	}
	if p.HasCredential() {
		t.Error("no value should be stored after a cancelled prompt")
	}
}
