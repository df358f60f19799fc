package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes an external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec. It blocks until the process exits.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandError describes a failed primitive invocation.
type CommandError struct {
	Op       string   // "create" or "rollback"
	Argv     []string // full command line
	ExitCode int      // -1 when the process could not be launched or was killed
	Output   string   // combined stdout/stderr
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s: %q exited with status %d", e.Op, strings.Join(e.Argv, " "), e.ExitCode)
	}
	return fmt.Sprintf("%s: %q: %v", e.Op, strings.Join(e.Argv, " "), e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Primitive is the external snapshot-capable storage layer. Implementations
// operate on a whole volume; Rollback restores every file on it.
type Primitive interface {
	// Backend names the implementation, e.g. "zfs".
	Backend() string
	// Volume is the managed volume or dataset.
	Volume() string
	// Create takes a snapshot called name.
	Create(ctx context.Context, name string) ([]byte, error)
	// Rollback restores the volume to the snapshot called name.
	Rollback(ctx context.Context, name string) ([]byte, error)
}

type commandPrimitive struct {
	backend  string
	volume   string
	runner   Runner
	create   func(name string) []string
	rollback func(name string) []string
}

// NewCommandPrimitive drives a generic snapshot tool invoked as
//
//	<binary> create <volume> <name>
//	<binary> rollback <volume> <name>
//
// Exit status 0 is success.
func NewCommandPrimitive(r Runner, binary, volume string) Primitive {
	return &commandPrimitive{
		backend: "command",
		volume:  volume,
		runner:  r,
		create: func(name string) []string {
			return []string{binary, "create", volume, name}
		},
		rollback: func(name string) []string {
			return []string{binary, "rollback", volume, name}
		},
	}
}

// ZFSOptions configures NewZFSPrimitive.
type ZFSOptions struct {
	// Sudo prefixes every invocation with sudo.
	Sudo bool
	// RecursiveRollback passes -r so rollback may target a snapshot older
	// than the most recent one. Later snapshots are destroyed by zfs.
	RecursiveRollback bool
}

// NewZFSPrimitive drives `zfs snapshot` and `zfs rollback` on dataset.
func NewZFSPrimitive(r Runner, dataset string, opts ZFSOptions) Primitive {
	prefix := []string{"zfs"}
	if opts.Sudo {
		prefix = []string{"sudo", "zfs"}
	}
	argv := func(args ...string) []string {
		return append(append([]string(nil), prefix...), args...)
	}

	return &commandPrimitive{
		backend: "zfs",
		volume:  dataset,
		runner:  r,
		create: func(name string) []string {
			return argv("snapshot", dataset+"@"+name)
		},
		rollback: func(name string) []string {
			if opts.RecursiveRollback {
				return argv("rollback", "-r", dataset+"@"+name)
			}
			return argv("rollback", dataset+"@"+name)
		},
	}
}

func (p *commandPrimitive) Backend() string { return p.backend }
func (p *commandPrimitive) Volume() string  { return p.volume }

func (p *commandPrimitive) Create(ctx context.Context, name string) ([]byte, error) {
	return p.run(ctx, "create", p.create(name))
}

func (p *commandPrimitive) Rollback(ctx context.Context, name string) ([]byte, error) {
	return p.run(ctx, "rollback", p.rollback(name))
}

func (p *commandPrimitive) run(ctx context.Context, op string, argv []string) ([]byte, error) {
	out, err := p.runner.Run(ctx, argv[0], argv[1:]...)
	if err == nil {
		return out, nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	return out, &CommandError{
		Op:       op,
		Argv:     argv,
		ExitCode: exitCode,
		Output:   string(out),
		Err:      err,
	}
}
