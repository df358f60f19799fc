package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/txguard/internal/txn"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// ErrConflict is returned by run when the commit detected a conflict.
var ErrConflict = errors.New("transaction conflict")

var runCmd = &cobra.Command{
	Use:   "run --file <path>... -- <command> [args...]",
	Short: "Run a command inside a transaction over the given files",
	Long: `Run a command inside a transaction.

The volume is snapshotted and each --file is fingerprinted before the command
starts. Every argument naming a guarded file is replaced by a private working
copy, so the command edits the copy rather than the file. The command runs
with the terminal's stdin, stdout and stderr.

If the command exits non-zero the volume is rolled back. Otherwise, if any
guarded file was changed by someone else in the meantime, the volume is rolled
back and run exits with an error. If not, the working copies are written back
and the transaction commits.

Example:
  txguard run --file notes.txt -- vi notes.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringArrayP("file", "f", nil, "file to guard (repeatable)")
	runCmd.Flags().Bool("create", false, "create missing files before registering them")
}

func runRun(cmd *cobra.Command, args []string) error {
	files, _ := cmd.Flags().GetStringArray("file")
	if len(files) == 0 {
		return errors.New("at least one --file is required")
	}
	create, _ := cmd.Flags().GetBool("create")

	rt, err := newRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.close() }()

	ctx := cmd.Context()
	tx := rt.factory().New("run-" + uuid.NewString()[:8])

	if err := tx.Begin(ctx); err != nil {
		return err
	}
	if tx.Degraded() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s no rollback point: %v\n", warningStyle.Render("warning:"), tx.SnapshotErr())
	}

	// Any early return below leaves the transaction open; roll it back.
	defer func() {
		if !tx.State().Terminal() {
			_ = tx.Rollback(ctx)
		}
	}()

	for _, path := range files {
		if create {
			if err := ensureFile(rt.fs, path); err != nil {
				return err
			}
		}
		if err := tx.Register(path); err != nil {
			return err
		}
	}

	ws, err := stage(rt.fs, tx, files)
	if err != nil {
		return err
	}
	defer ws.remove()

	argv := ws.rewrite(args)
	child := exec.CommandContext(ctx, argv[0], argv[1:]...)
	child.Stdin = cmd.InOrStdin()
	child.Stdout = cmd.OutOrStdout()
	child.Stderr = cmd.ErrOrStderr()
	if runErr := child.Run(); runErr != nil {
		rt.logger.Warn("wrapped command failed", "tx", tx.ID(), "command", strings.Join(args, " "), "error", runErr)
		if err := tx.Rollback(ctx); err != nil {
			return fmt.Errorf("command failed (%w) and rollback failed: %w", runErr, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s command failed, volume rolled back to %s\n", warningStyle.Render("rolled back:"), tx.Snapshot())
		return fmt.Errorf("command failed: %w", runErr)
	}

	report, err := tx.Check()
	if err != nil {
		return err
	}
	if !report.HasConflict() {
		if err := ws.writeBack(tx); err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				return fmt.Errorf("%w and rollback failed: %w", err, rbErr)
			}
			return err
		}
	}

	res, err := tx.Commit(ctx)
	if err != nil {
		return err
	}
	if !res.Conflict() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d file(s)\n", okStyle.Render("Committed"), len(files))
		return nil
	}

	for _, d := range res.Report.Divergences {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %s\n", errorStyle.Render("conflict:"), d.Path, d.Reason())
	}
	if res.RollbackErr != nil {
		return fmt.Errorf("%w (%s) and rollback failed: %w", ErrConflict, res.Report.Outcome, res.RollbackErr)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s volume rolled back to %s\n", warningStyle.Render("rolled back:"), tx.Snapshot())
	return fmt.Errorf("%w: %s", ErrConflict, res.Report.Outcome)
}

// ensureFile creates path, and its parent directories, when it does not exist.
func ensureFile(fs afero.Fs, path string) error {
	if _, err := fs.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	return afero.WriteFile(fs, path, nil, 0644)
}

// workspace maps guarded files to private working copies.
type workspace struct {
	fs     afero.Fs
	dir    string
	copies map[string]string // guarded path -> working copy
	order  []string
}

// stage copies each guarded file into a fresh temporary directory.
func stage(fs afero.Fs, tx *txn.Coordinator, files []string) (*workspace, error) {
	dir, err := afero.TempDir(fs, "", "txguard-run-")
	if err != nil {
		return nil, fmt.Errorf("failed to create working directory: %w", err)
	}
	ws := &workspace{fs: fs, dir: dir, copies: make(map[string]string)}
	for i, path := range files {
		if _, ok := ws.copies[path]; ok {
			continue
		}
		data, err := tx.ReadFile(path)
		if err != nil {
			ws.remove()
			return nil, err
		}
		working := filepath.Join(dir, fmt.Sprintf("%d-%s", i, filepath.Base(path)))
		if err := afero.WriteFile(fs, working, data, 0600); err != nil {
			ws.remove()
			return nil, fmt.Errorf("failed to stage %s: %w", path, err)
		}
		ws.copies[path] = working
		ws.order = append(ws.order, path)
	}
	return ws, nil
}

// rewrite returns args with every guarded path replaced by its working copy.
func (ws *workspace) rewrite(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if working, ok := ws.copies[a]; ok {
			out[i] = working
			continue
		}
		out[i] = a
	}
	return out
}

// writeBack writes every working copy over its guarded file through tx.
func (ws *workspace) writeBack(tx *txn.Coordinator) error {
	for _, path := range ws.order {
		data, err := afero.ReadFile(ws.fs, ws.copies[path])
		if err != nil {
			return fmt.Errorf("failed to read working copy of %s: %w", path, err)
		}
		if err := tx.Write(path, data); err != nil {
			return err
		}
	}
	return nil
}

func (ws *workspace) remove() {
	_ = ws.fs.RemoveAll(ws.dir)
}
