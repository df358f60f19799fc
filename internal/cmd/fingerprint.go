package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Iron-Ham/txguard/internal/config"
	"github.com/Iron-Ham/txguard/internal/fingerprint"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <path>...",
	Short: "Print the fingerprint of one or more files",
	Long: `Print the modification time, size and content digest of each file.

The digest algorithm is taken from fingerprint.algorithm and can be
overridden with --algorithm.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runFingerprint,
}

func init() {
	rootCmd.AddCommand(fingerprintCmd)
	fingerprintCmd.Flags().StringP("algorithm", "a", "",
		"digest algorithm ("+strings.Join(fingerprint.Algorithms(), ", ")+")")
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	algo, _ := cmd.Flags().GetString("algorithm")
	if algo == "" {
		algo = config.Get().Fingerprint.Algorithm
	}

	capturer, err := fingerprint.NewCapturer(afero.NewOsFs(), fingerprint.Algorithm(algo))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var failed int
	for _, path := range args {
		fp, err := capturer.Capture(path)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", errorStyle.Render("error:"), err)
			failed++
			continue
		}
		fmt.Fprintln(out, titleStyle.Render(path))
		fmt.Fprintf(out, "  %s %s\n", labelStyle.Render("modified: "), fp.ModifiedAt.Format(time.RFC3339Nano))
		fmt.Fprintf(out, "  %s %d\n", labelStyle.Render("size:     "), fp.Size)
		fmt.Fprintf(out, "  %s %s:%s\n", labelStyle.Render("digest:   "), capturer.Algorithm(), fp.Digest)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be fingerprinted", failed, len(args))
	}
	return nil
}
