// Package transcript accumulates partial speech-to-text fragments into
// finalized conversation turns and keeps the session-scoped turn log.
//
// Fragments for the two roles may arrive interleaved within one turn; the
// [Accumulator] buffers them independently and emits immutable [TurnRecord]
// values when the engine signals turn completion.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies which side of the conversation a turn belongs to.
type Role string

const (
	// RoleUser is the local speaker.
	RoleUser Role = "user"

	// RoleAssistant is the remote engine's synthesized voice.
	RoleAssistant Role = "assistant"
)

// TurnRecord is one finalized conversational turn. Records are immutable
// once created.
type TurnRecord struct {
	// Role is the speaker of this turn.
	Role Role

	// Text is the full accumulated text of the turn.
	Text string

	// CreatedAt is the finalize timestamp. When a user and an assistant turn
	// are finalized together, the assistant's timestamp is strictly greater
	// so the log order is deterministic.
	CreatedAt time.Time
}

// Accumulator buffers in-progress text for each role independently.
// All methods are safe for concurrent use.
type Accumulator struct {
	mu        sync.Mutex
	user      strings.Builder
	assistant strings.Builder
	now       func() time.Time
}

// Option is a functional option for configuring an [Accumulator].
type Option func(*Accumulator)

// WithNowFunc overrides the clock used to timestamp finalized turns.
// Useful in tests.
func WithNowFunc(now func() time.Time) Option {
	return func(a *Accumulator) { a.now = now }
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator(opts ...Option) *Accumulator {
	a := &Accumulator{now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// AppendUser concatenates delta onto the in-progress user buffer.
func (a *Accumulator) AppendUser(delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.user.WriteString(delta)
}

// AppendAssistant concatenates delta onto the in-progress assistant buffer.
func (a *Accumulator) AppendAssistant(delta string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.assistant.WriteString(delta)
}

// FinalizeTurn emits one TurnRecord per non-empty role buffer: user first,
// then assistant, the assistant timestamped strictly after the user. Both
// buffers are cleared. Returns an empty slice when both buffers are empty.
func (a *Accumulator) FinalizeTurn() []TurnRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	base := a.now()
	var records []TurnRecord

	if a.user.Len() > 0 {
		records = append(records, TurnRecord{
			Role:      RoleUser,
			Text:      a.user.String(),
			CreatedAt: base,
		})
		a.user.Reset()
	}
	if a.assistant.Len() > 0 {
		ts := base
		if len(records) > 0 {
			ts = base.Add(time.Nanosecond)
		}
		records = append(records, TurnRecord{
			Role:      RoleAssistant,
			Text:      a.assistant.String(),
			CreatedAt: ts,
		})
		a.assistant.Reset()
	}

	return records
}

// Log is the session-scoped, append-only sequence of finalized turns.
// Records are never mutated or removed except by an explicit Clear.
// All methods are safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	records []TurnRecord
}

// NewLog creates an empty turn log.
func NewLog() *Log {
	return &Log{}
}

// Append adds records to the end of the log in the given order.
func (l *Log) Append(records ...TurnRecord) {
	if len(records) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, records...)
}

// Records returns a copy of the log in append order.
func (l *Log) Records() []TurnRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]TurnRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Clear removes all records. Intended for the explicit user-driven
// "clear transcript" action only.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
}
