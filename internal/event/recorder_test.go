package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Iron-Ham/txguard/internal/logging"
)

func TestCollector(t *testing.T) {
	var c Collector

	c.Record(NewTxBeganEvent("tx-1", "snap-1", false))
	c.Record(NewConflictDetectedEvent("tx-1", "f", "a", "b", ""))
	c.Record(NewConflictDetectedEvent("tx-1", "g", "a", "", "gone"))

	if got := len(c.Events()); got != 3 {
		t.Errorf("Events() = %d, want 3", got)
	}
	if got := c.Count(TypeConflictDetected); got != 2 {
		t.Errorf("Count(conflict) = %d, want 2", got)
	}
	conflicts := c.OfType(TypeConflictDetected)
	if conflicts[1].(ConflictDetectedEvent).Path != "g" {
		t.Errorf("OfType should preserve order, got %+v", conflicts)
	}
}

func TestOrDiscard(t *testing.T) {
	r := OrDiscard(nil)
	r.Record(NewTxCommittedEvent("tx", 0)) // must not panic

	var c Collector
	if OrDiscard(&c) != Recorder(&c) {
		t.Error("OrDiscard should return a non-nil recorder unchanged")
	}
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.LevelDebug)

	bus := NewBus()
	bus.SubscribeAll(LogHandler(logger))

	base := "modified=2026-01-02T03:04:05Z size=6 digest=aaaa"
	cur := "modified=2026-01-02T03:04:09Z size=9 digest=bbbb"
	bus.Record(NewConflictDetectedEvent("tx-7", "shared.txt", base, cur, ""))
	bus.Record(NewTxRolledBackEvent("tx-7", "snap", "conflict", "exit status 1"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}

	tests := []struct {
		level string
		msg   string
	}{
		{"WARN", "conflict detected"},
		{"ERROR", "rollback failed"},
	}
	for i, tt := range tests {
		var entry map[string]any
		if err := json.Unmarshal([]byte(lines[i]), &entry); err != nil {
			t.Fatalf("line %d is not JSON: %v", i, err)
		}
		if entry["level"] != tt.level {
			t.Errorf("line %d level = %v, want %s", i, entry["level"], tt.level)
		}
		if entry["msg"] != tt.msg {
			t.Errorf("line %d msg = %v, want %s", i, entry["msg"], tt.msg)
		}
		if entry["tx"] != "tx-7" {
			t.Errorf("line %d tx = %v, want tx-7", i, entry["tx"])
		}
	}

	var conflictEntry map[string]any
	_ = json.Unmarshal([]byte(lines[0]), &conflictEntry)
	if conflictEntry["baseline"] != base || conflictEntry["current"] != cur {
		t.Errorf("conflict fingerprints = %v / %v", conflictEntry["baseline"], conflictEntry["current"])
	}
}
