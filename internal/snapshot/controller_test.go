package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/txguard/internal/event"
)

// fakeRunner records invocations and fails any whose argv contains a key in failOn.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	failOn map[string]error
	output string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	argv := append([]string{name}, args...)
	f.calls = append(f.calls, argv)
	for key, err := range f.failOn {
		if strings.Contains(strings.Join(argv, " "), key) {
			return []byte("boom: " + key), err
		}
	}
	return []byte(f.output), nil
}

func (f *fakeRunner) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

func TestNewName_Unique(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	seen := make(map[string]bool)
	for range 1000 {
		n := NewName(now)
		if !strings.HasPrefix(n, NamePrefix+"1700000000000_") {
			t.Fatalf("unexpected name %q", n)
		}
		if seen[n] {
			t.Fatalf("duplicate name %q", n)
		}
		seen[n] = true
	}
}

func TestCommandPrimitive_Argv(t *testing.T) {
	r := &fakeRunner{}
	p := NewCommandPrimitive(r, "/usr/local/bin/snap", "tank")

	if _, err := p.Create(context.Background(), "s1"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := p.Rollback(context.Background(), "s1"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	calls := r.Calls()
	want := []string{
		"/usr/local/bin/snap create tank s1",
		"/usr/local/bin/snap rollback tank s1",
	}
	for i, w := range want {
		if got := strings.Join(calls[i], " "); got != w {
			t.Errorf("call %d = %q, want %q", i, got, w)
		}
	}
	if p.Backend() != "command" || p.Volume() != "tank" {
		t.Errorf("Backend/Volume = %s/%s", p.Backend(), p.Volume())
	}
}

func TestZFSPrimitive_Argv(t *testing.T) {
	tests := []struct {
		name         string
		opts         ZFSOptions
		wantCreate   string
		wantRollback string
	}{
		{
			name:         "plain",
			wantCreate:   "zfs snapshot pool/data@s1",
			wantRollback: "zfs rollback pool/data@s1",
		},
		{
			name:         "sudo recursive",
			opts:         ZFSOptions{Sudo: true, RecursiveRollback: true},
			wantCreate:   "sudo zfs snapshot pool/data@s1",
			wantRollback: "sudo zfs rollback -r pool/data@s1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{}
			p := NewZFSPrimitive(r, "pool/data", tt.opts)
			_, _ = p.Create(context.Background(), "s1")
			_, _ = p.Rollback(context.Background(), "s1")

			calls := r.Calls()
			if got := strings.Join(calls[0], " "); got != tt.wantCreate {
				t.Errorf("create = %q, want %q", got, tt.wantCreate)
			}
			if got := strings.Join(calls[1], " "); got != tt.wantRollback {
				t.Errorf("rollback = %q, want %q", got, tt.wantRollback)
			}
		})
	}
}

func TestCommandError_Wrapping(t *testing.T) {
	cause := errors.New("not found")
	r := &fakeRunner{failOn: map[string]error{"create": cause}}
	p := NewCommandPrimitive(r, "snap", "vol")

	out, err := p.Create(context.Background(), "x")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected *CommandError, got %T", err)
	}
	if cmdErr.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1 for a non-exit error", cmdErr.ExitCode)
	}
	if cmdErr.Output != string(out) || !strings.Contains(cmdErr.Output, "boom") {
		t.Errorf("Output = %q", cmdErr.Output)
	}
	if !errors.Is(err, cause) {
		t.Error("CommandError should unwrap to the runner error")
	}
}

func TestController_CreateAndRollback(t *testing.T) {
	r := &fakeRunner{output: "ok\n"}
	rec := &event.Collector{}
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), rec)

	if _, ok := c.Current(); ok {
		t.Fatal("new controller should have no current snapshot")
	}

	snap, err := c.CreateSnapshot(context.Background())
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if !strings.HasPrefix(snap.Name, NamePrefix) || snap.Volume != "vol" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !c.Valid() {
		t.Error("snapshot should be valid after a successful create")
	}

	if err := c.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	calls := r.Calls()
	if len(calls) != 2 || calls[1][1] != "rollback" || calls[1][3] != snap.Name {
		t.Errorf("rollback should target the current snapshot, calls = %v", calls)
	}

	if rec.Count(event.TypeSnapshotCreated) != 1 || rec.Count(event.TypeSnapshotRestored) != 1 {
		t.Errorf("events = %v", rec.Events())
	}
	created := rec.OfType(event.TypeSnapshotCreated)[0].(event.SnapshotCreatedEvent)
	if created.Output != "ok" {
		t.Errorf("output = %q, want trimmed %q", created.Output, "ok")
	}
}

func TestController_CreateReplacesCurrent(t *testing.T) {
	r := &fakeRunner{}
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), nil)

	first, _ := c.CreateSnapshot(context.Background())
	second, _ := c.CreateSnapshot(context.Background())
	if first.Name == second.Name {
		t.Fatal("snapshot names must be unique")
	}

	if err := c.Rollback(context.Background()); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	last := r.Calls()[2]
	if last[3] != second.Name {
		t.Errorf("rollback targeted %s, want most recent %s", last[3], second.Name)
	}
}

func TestController_RollbackWithoutSnapshot(t *testing.T) {
	r := &fakeRunner{}
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), nil)

	if err := c.Rollback(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
	if len(r.Calls()) != 0 {
		t.Error("no command should run without a snapshot")
	}
}

func TestController_CreateFailure(t *testing.T) {
	r := &fakeRunner{failOn: map[string]error{"create": errors.New("exit 1")}}
	rec := &event.Collector{}
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), rec)

	snap, err := c.CreateSnapshot(context.Background())
	if !errors.Is(err, ErrCreateFailed) {
		t.Fatalf("err = %v, want ErrCreateFailed", err)
	}
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Error("create error should carry the CommandError")
	}

	cur, ok := c.Current()
	if !ok || cur.Name != snap.Name {
		t.Error("failed attempt should still become current")
	}
	if c.Valid() {
		t.Error("failed attempt must not be valid")
	}

	// Rollback to a never-created snapshot fails without invoking the tool.
	err = c.Rollback(context.Background())
	if !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("err = %v, want ErrRollbackFailed", err)
	}
	if len(r.Calls()) != 1 {
		t.Errorf("calls = %d, want only the create", len(r.Calls()))
	}
	if rec.Count(event.TypeSnapshotFailed) != 2 {
		t.Errorf("SnapshotFailed events = %d, want 2", rec.Count(event.TypeSnapshotFailed))
	}
}

func TestController_RollbackFailure(t *testing.T) {
	r := &fakeRunner{failOn: map[string]error{"rollback": errors.New("exit 2")}}
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), nil)

	if _, err := c.CreateSnapshot(context.Background()); err != nil {
		t.Fatal(err)
	}
	err := c.Rollback(context.Background())
	if !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("err = %v, want ErrRollbackFailed", err)
	}
}

type blockingRunner struct{}

func (blockingRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestController_Timeout(t *testing.T) {
	c := NewController(NewCommandPrimitive(blockingRunner{}, "snap", "vol"), nil,
		WithTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.CreateSnapshot(context.Background())
	if !errors.Is(err, ErrCreateFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want ErrCreateFailed wrapping DeadlineExceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not applied")
	}
}

func TestController_Clock(t *testing.T) {
	fixed := time.UnixMilli(42)
	c := NewController(NewCommandPrimitive(&fakeRunner{}, "snap", "vol"), nil,
		WithClock(func() time.Time { return fixed }))

	snap, _ := c.CreateSnapshot(context.Background())
	if !snap.CreatedAt.Equal(fixed) || !strings.HasPrefix(snap.Name, NamePrefix+"42_") {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestController_NameMatchesCreatedAt(t *testing.T) {
	// Every read of the clock advances it by a second.
	var ticks int64
	clock := func() time.Time {
		ticks++
		return time.UnixMilli(ticks * 1000)
	}
	c := NewController(NewCommandPrimitive(&fakeRunner{}, "snap", "vol"), nil, WithClock(clock))

	snap, err := c.CreateSnapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := fmt.Sprintf("%s%d_", NamePrefix, snap.CreatedAt.UnixMilli())
	if !strings.HasPrefix(snap.Name, want) {
		t.Errorf("name %q does not embed CreatedAt %d", snap.Name, snap.CreatedAt.UnixMilli())
	}
	if ticks != 1 {
		t.Errorf("clock read %d times, want 1", ticks)
	}
}

func TestController_RollbackTo(t *testing.T) {
	r := &fakeRunner{output: "restored\n"}
	var rec event.Collector
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), &rec)

	if err := c.RollbackTo(context.Background(), "txguard_1_1"); err != nil {
		t.Fatalf("RollbackTo: %v", err)
	}
	if _, ok := c.Current(); ok {
		t.Error("RollbackTo must not set a current snapshot")
	}

	evs := rec.OfType(event.TypeSnapshotRestored)
	if len(evs) != 1 {
		t.Fatalf("restored events = %d, want 1", len(evs))
	}
	ev := evs[0].(event.SnapshotRestoredEvent)
	if ev.Name != "txguard_1_1" || ev.Volume != "vol" || ev.Output != "restored" {
		t.Errorf("event = %+v", ev)
	}

	if err := c.RollbackTo(context.Background(), ""); !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("empty name err = %v, want ErrRollbackFailed", err)
	}
}

func TestController_RollbackToFailure(t *testing.T) {
	r := &fakeRunner{failOn: map[string]error{"rollback": errors.New("exit 2")}}
	var rec event.Collector
	c := NewController(NewCommandPrimitive(r, "snap", "vol"), &rec)

	err := c.RollbackTo(context.Background(), "missing")
	if !errors.Is(err, ErrRollbackFailed) {
		t.Errorf("err = %v, want ErrRollbackFailed", err)
	}
	evs := rec.OfType(event.TypeSnapshotFailed)
	if len(evs) != 1 {
		t.Fatalf("failed events = %d, want 1", len(evs))
	}
	if ev := evs[0].(event.SnapshotFailedEvent); ev.Op != "rollback" || ev.Name != "missing" || ev.Output == "" {
		t.Errorf("event = %+v", ev)
	}
}
