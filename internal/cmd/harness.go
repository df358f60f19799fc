package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Iron-Ham/txguard/internal/config"
	"github.com/Iron-Ham/txguard/internal/harness"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var harnessCmd = &cobra.Command{
	Use:   "harness",
	Short: "Run concurrent transactions against a shared file",
	Long: `Run many overlapping transactions against one shared file.

Each worker repeatedly begins a transaction, registers the target, appends a
tagged line and commits. With --inject-rate above zero some operations also
modify the target outside their transaction, which must be detected as a
conflict and rolled back.

Workers are not serialized against each other. The summary reports committed
appends that are missing from the final file as lost updates.`,
	Args:    cobra.NoArgs,
	PreRunE: bindHarnessFlags,
	RunE:    runHarness,
}

func init() {
	rootCmd.AddCommand(harnessCmd)

	defaults := config.Default().Harness
	flags := harnessCmd.Flags()
	flags.IntP("workers", "w", defaults.Workers, "number of concurrent workers")
	flags.IntP("ops", "n", defaults.OpsPerWorker, "transactions per worker")
	flags.StringP("target", "t", defaults.TargetPath, "shared file every worker appends to")
	flags.Float64("inject-rate", defaults.InjectedConflictRate, "probability of forcing a conflict per operation (0-1)")
	flags.Uint64("seed", defaults.Seed, "seed for conflict injection")
	flags.Bool("watch", defaults.Watch, "count writes on the target with a file watcher")
	flags.Bool("reset", defaults.ResetTarget, "truncate the target before the run")
	flags.String("metrics-file", "", "write run metrics in Prometheus text format to this file")
}

// bindHarnessFlags lets explicitly set flags override the harness config.
func bindHarnessFlags(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	_ = viper.BindPFlag("harness.workers", flags.Lookup("workers"))
	_ = viper.BindPFlag("harness.ops_per_worker", flags.Lookup("ops"))
	_ = viper.BindPFlag("harness.target_path", flags.Lookup("target"))
	_ = viper.BindPFlag("harness.injected_conflict_rate", flags.Lookup("inject-rate"))
	_ = viper.BindPFlag("harness.seed", flags.Lookup("seed"))
	_ = viper.BindPFlag("harness.watch", flags.Lookup("watch"))
	_ = viper.BindPFlag("harness.reset_target", flags.Lookup("reset"))
	return nil
}

func runHarness(cmd *cobra.Command, args []string) error {
	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		viper.Set("metrics.enabled", true)
		viper.Set("metrics.textfile", path)
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	hc := rt.cfg.Harness
	rt.logger.Info("harness starting",
		"workers", hc.Workers,
		"ops_per_worker", hc.OpsPerWorker,
		"target", hc.TargetPath,
		"inject_rate", hc.InjectedConflictRate,
		"seed", hc.Seed,
	)

	res, runErr := harness.Run(cmd.Context(), harness.Config{
		Workers:              hc.Workers,
		OpsPerWorker:         hc.OpsPerWorker,
		TargetPath:           hc.TargetPath,
		InjectedConflictRate: hc.InjectedConflictRate,
		Seed:                 hc.Seed,
		ResetTarget:          hc.ResetTarget,
		Watch:                hc.Watch,
		Factory:              rt.factory(),
		Recorder:             rt.bus,
		Metrics:              rt.metrics,
	})
	if runErr == nil {
		renderHarnessSummary(cmd.OutOrStdout(), res, hc)
	}

	if err := rt.close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// renderHarnessSummary prints the totals followed by a per-worker table.
func renderHarnessSummary(w io.Writer, res harness.Result, hc config.HarnessConfig) {
	fmt.Fprintln(w, titleStyle.Render("Harness Summary"))
	fmt.Fprintln(w, strings.Repeat("─", 50))

	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("%-18s", label+":")), value)
	}
	row("Target", hc.TargetPath)
	row("Workers", fmt.Sprintf("%d x %d ops", len(res.Workers), hc.OpsPerWorker))
	row("Operations", fmt.Sprintf("%d", res.Operations))
	row("Committed", okStyle.Render(fmt.Sprintf("%d", res.Committed)))
	row("Conflicts", countStyle(res.TotalConflicts, warningStyle).Render(fmt.Sprintf("%d", res.TotalConflicts)))
	row("Injected", fmt.Sprintf("%d", res.Injected))
	row("Failures", countStyle(res.Failures, errorStyle).Render(fmt.Sprintf("%d", res.Failures)))
	row("Final lines", fmt.Sprintf("%d", res.FinalLines))
	row("Lost updates", countStyle(res.LostUpdates, errorStyle).Render(fmt.Sprintf("%d", res.LostUpdates)))
	if hc.Watch {
		row("Observed writes", fmt.Sprintf("%d", res.ObservedWrites))
	}
	row("Duration", res.Duration.Round(time.Millisecond).String())

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("Per Worker"))
	fmt.Fprintln(w, strings.Repeat("─", 50))
	fmt.Fprintln(w, labelStyle.Render(fmt.Sprintf("%-8s %6s %10s %10s %9s %9s", "worker", "ops", "committed", "conflicts", "injected", "failures")))
	for _, wr := range res.Workers {
		fmt.Fprintf(w, "%-8d %6d %10d %10d %9d %9d\n",
			wr.Worker, wr.Ops, wr.Committed, wr.Conflicts, wr.Injected, wr.Failures)
	}
}
