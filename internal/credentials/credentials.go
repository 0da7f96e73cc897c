// Package credentials resolves the engine API credential before a session
// is opened. The session controller only needs to know whether a credential
// exists and how to ask the user for one; the actual value is read by the
// transport at dial time.
package credentials

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// Provider supplies the engine credential.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// HasCredential reports whether a usable credential is available.
	HasCredential() bool

	// PromptForCredential runs the external acquisition flow, suspending
	// until the user completes it or ctx is cancelled.
	PromptForCredential(ctx context.Context) error

	// Credential returns the current credential value, or "" if none.
	Credential() string
}

// EnvPrompt resolves the credential from an environment variable and falls
// back to an interactive prompt on the attached terminal.
type EnvPrompt struct {
	// Var is the environment variable consulted first (e.g. "VOXLINE_API_KEY").
	Var string

	// In and Out are the prompt streams. Default to stdin/stderr when nil.
	In  io.Reader
	Out io.Writer

	mu    sync.Mutex
	value string
}

// NewEnvPrompt creates a provider reading envVar, prompting on the standard
// terminal streams when the variable is unset.
func NewEnvPrompt(envVar string) *EnvPrompt {
	return &EnvPrompt{Var: envVar}
}

// HasCredential implements [Provider].
func (p *EnvPrompt) HasCredential() bool {
	return p.Credential() != ""
}

// Credential implements [Provider]. A value obtained via the prompt takes
// precedence over the environment.
func (p *EnvPrompt) Credential() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.value != "" {
		return p.value
	}
	return strings.TrimSpace(os.Getenv(p.Var))
}

// PromptForCredential implements [Provider]. It reads one line from the
// input stream. The read itself is not interruptible; ctx is checked before
// and after so a cancelled prompt does not store a stale value.
func (p *EnvPrompt) PromptForCredential(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	in := p.In
	if in == nil {
		in = os.Stdin
	}
	out := p.Out
	if out == nil {
		out = os.Stderr
	}

	fmt.Fprintf(out, "Enter the engine API key (or set %s): ", p.Var)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("credentials: read key: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	key := strings.TrimSpace(line)
	if key == "" {
		return fmt.Errorf("credentials: empty key entered")
	}

	p.mu.Lock()
	p.value = key
	p.mu.Unlock()
	return nil
}
