package transcript

import (
	"testing"
	"time"
)

func TestAccumulatorInterleavedFragments(t *testing.T) {
	acc := NewAccumulator()

	// Fragments for both roles interleave within one turn.
	acc.AppendUser("a")
	acc.AppendAssistant("b")
	acc.AppendUser("c")

	records := acc.FinalizeTurn()
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}

	if records[0].Role != RoleUser || records[0].Text != "ac" {
		t.Errorf("record 0 = %s %q, want user \"ac\"", records[0].Role, records[0].Text)
	}
	if records[1].Role != RoleAssistant || records[1].Text != "b" {
		t.Errorf("record 1 = %s %q, want assistant \"b\"", records[1].Role, records[1].Text)
	}
	if !records[1].CreatedAt.After(records[0].CreatedAt) {
		t.Error("assistant record must be timestamped strictly after the user record")
	}
}

func TestAccumulatorFinalizeClearsBuffers(t *testing.T) {
	acc := NewAccumulator()
	acc.AppendUser("hello")
	if got := len(acc.FinalizeTurn()); got != 1 {
		t.Fatalf("first finalize: %d records, want 1", got)
	}
	if got := len(acc.FinalizeTurn()); got != 0 {
		t.Errorf("second finalize: %d records, want 0", got)
	}
}

func TestAccumulatorAssistantOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	acc := NewAccumulator(WithNowFunc(func() time.Time { return now }))
	acc.AppendAssistant("just me")

	records := acc.FinalizeTurn()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Role != RoleAssistant {
		t.Errorf("role = %s, want assistant", records[0].Role)
	}
	// Without a user record the assistant keeps the base timestamp.
	if !records[0].CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", records[0].CreatedAt, now)
	}
}

func TestLogAppendOrderAndClear(t *testing.T) {
	log := NewLog()
	log.Append(
		TurnRecord{Role: RoleUser, Text: "one"},
		TurnRecord{Role: RoleAssistant, Text: "two"},
	)
	log.Append(TurnRecord{Role: RoleUser, Text: "three"})

	records := log.Records()
	if len(records) != 3 {
		t.Fatalf("Len = %d, want 3", len(records))
	}
	for i, want := range []string{"one", "two", "three"} {
		if records[i].Text != want {
			t.Errorf("record %d = %q, want %q", i, records[i].Text, want)
		}
	}

	// Records returns a copy: mutating it must not touch the log.
	records[0].Text = "mutated"
	if log.Records()[0].Text != "one" {
		t.Error("Records must return a copy")
	}

	log.Clear()
	if log.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", log.Len())
	}
}
