package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kiri/internal/config"
	"kiri/internal/gateway/app"
	"kiri/internal/lane"
	"kiri/internal/task"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	verbose bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "lanectl",
		Short:         "Classify repositories into execution lanes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log pipeline activity to stderr")

	cmd.AddCommand(newClassifyCommand(opts))
	cmd.AddCommand(newReclassifyCommand(opts))
	cmd.AddCommand(newSweepCommand(opts))
	return cmd
}

// openPipeline builds an inline pipeline from the environment. Jobs run in
// the calling goroutine so every command finishes its work before exiting.
func openPipeline(ctx context.Context, opts *rootOptions) (*app.Pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger := zap.NewNop()
	if opts.verbose {
		if logger, err = cfg.NewLogger(); err != nil {
			return nil, err
		}
	}
	return app.NewPipeline(ctx, cfg, app.ExecutorInline, logger)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <repository-url>",
		Short: "Dry-run classification of a repository without storing or publishing anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			p, err := openPipeline(ctx, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			out, snap, err := p.Runner.Preview(ctx, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writePreviewJSON(cmd.OutOrStdout(), out, snap)
			}
			writeVerdict(cmd.OutOrStdout(), out.Verdict)
			fmt.Fprintf(cmd.OutOrStdout(), "tier:    %s\n", out.Tier)
			if out.Corrected {
				fmt.Fprintln(cmd.OutOrStdout(), "note:    verdict corrected by dependency validation")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "files:   %d\n", len(snap.FileList))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the verdict and snapshot as JSON")
	return cmd
}

func newReclassifyCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reclassify <project-id>...",
		Short: "Re-run classification for stored projects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			p, err := openPipeline(ctx, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			var failed int
			for _, id := range args {
				if rec, err := p.Projects.Get(ctx, id); err == nil {
					p.Introspector.Invalidate(rec.RepositoryURL)
				}
				out, err := p.Runner.Run(ctx, id)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", id, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%s\n", id, out.State, out.Verdict.Lane, out.Record.ExecutionURL)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d projects failed", failed, len(args))
			}
			return nil
		},
	}
	return cmd
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	var retry, syncMeta bool
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Retry stale pending projects and sync repository metadata once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			p, err := openPipeline(ctx, opts)
			if err != nil {
				return err
			}
			defer p.Close()

			if retry {
				n, err := p.Sweeper.RetryStale(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "re-enqueued %d stale projects\n", n)
			}
			if syncMeta {
				n, err := p.Sweeper.SyncMetadata(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "synced metadata for %d projects\n", n)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&retry, "retry", true, "Re-run classification for stale pending projects")
	cmd.Flags().BoolVar(&syncMeta, "sync", false, "Refresh stars, forks, language and topics")
	return cmd
}

func writeVerdict(w io.Writer, v lane.Verdict) {
	fmt.Fprintf(w, "lane:    %s (%s)\n", v.Lane, v.Lane.Label())
	fmt.Fprintf(w, "reason:  %s\n", v.Reason)
	if v.StartCommand != "" {
		fmt.Fprintf(w, "command: %s\n", v.StartCommand)
	}
}

func writePreviewJSON(w io.Writer, out task.Outcome, snap *lane.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Verdict   lane.Verdict   `json:"verdict"`
		Tier      string         `json:"tier"`
		Corrected bool           `json:"corrected"`
		Snapshot  *lane.Snapshot `json:"snapshot"`
	}{out.Verdict, out.Tier, out.Corrected, snap})
}
