package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"griddojo/internal/app"
	"griddojo/internal/prefetch"
)

var validFormats = []string{"text", "json"}

type rootOptions struct {
	cfg    app.Config
	format string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{cfg: app.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "griddojo",
		Short: "Grid Dojo - timed grid selection challenges in the terminal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.format, validFormats)
			}
			return opts.cfg.Validate()
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVar(&opts.cfg.DataDir, "data-dir", "", "directory for the progress database (default ~/.local/share/griddojo)")
	f.StringVar(&opts.cfg.PacksDir, "packs", opts.cfg.PacksDir, "directory containing challenge sets")
	f.StringVar(&opts.cfg.LogPath, "log", "", "write JSON-lines logs to this file")
	f.StringVar(&opts.cfg.SetID, "set", "", "challenge set id (default: last played)")
	f.StringVar(&opts.cfg.Mode, "mode", "", "game mode: classic|daily (default: last played)")
	f.StringVar(&opts.cfg.HydrateURL, "hydrate-url", "", "base URL of a remote challenge synthesizer")
	f.StringVar(&opts.cfg.HydratePath, "hydrate-path", "", "request path on the remote synthesizer (default /api/challenges/hydrate)")
	f.IntVar(&opts.cfg.HydrateLatencyMS, "hydrate-latency-ms", 0, "simulated latency for the local synthesizer")
	f.StringVar(&opts.cfg.NetworkQuality, "network", opts.cfg.NetworkQuality, "network quality: auto|slow|medium|fast|2g|3g|4g")
	f.IntVar(&opts.cfg.Prefetch.Concurrency, "concurrency", opts.cfg.Prefetch.Concurrency, "prefetch concurrency ceiling")
	f.IntVar(&opts.cfg.Prefetch.InitialBatch, "initial-batch", opts.cfg.Prefetch.InitialBatch, "challenges hydrated during warm-up")
	f.IntVar(&opts.cfg.Prefetch.WaveDelayMS, "wave-delay-ms", opts.cfg.Prefetch.WaveDelayMS, "pause between warm-up waves")
	f.IntVar(&opts.cfg.Prefetch.RequestTimeoutS, "request-timeout", opts.cfg.Prefetch.RequestTimeoutS, "hydration timeout in seconds")
	f.IntVar(&opts.cfg.Prefetch.LookAheadPad, "look-ahead-pad", opts.cfg.Prefetch.LookAheadPad, "challenges hydrated past the concurrency window")
	f.IntVar(&opts.cfg.ReportBuffer, "report-buffer", 0, "queued progress reports before dropping (default 64)")
	f.IntVar(&opts.cfg.Gameplay.DurationSeconds, "duration", 0, "run duration in seconds (default: set value)")
	f.IntVar(&opts.cfg.Gameplay.TimeBonusSeconds, "bonus", 0, "seconds added per solved challenge (default: set value)")
	f.IntVar(&opts.cfg.Gameplay.TimePenaltySeconds, "penalty", 0, "seconds removed per failed submission (default: set value)")
	f.IntVar(&opts.cfg.Gameplay.EndlessThreshold, "endless-threshold", 0, "pool size at which runs wrap around")
	f.StringVar(&opts.cfg.UI.StyleVariant, "style", opts.cfg.UI.StyleVariant, "ui style: modern_arcade|cozy_clean|retro_terminal")
	f.StringVar(&opts.cfg.UI.MotionLevel, "motion", opts.cfg.UI.MotionLevel, "animation level: full|reduced|off")
	f.BoolVar(&opts.cfg.ASCIIOnly, "ascii", false, "draw with ASCII only")
	f.BoolVar(&opts.cfg.DebugLayout, "debug-layout", false, "verbose ui diagnostics on stderr")
	f.BoolVar(&opts.cfg.Dev, "dev", false, "serve /__dev inspection endpoints while playing")
	f.StringVar(&opts.cfg.DevHTTP, "dev-http", opts.cfg.DevHTTP, "listen address for --dev")
	f.StringVar(&opts.format, "format", "text", "output format for sets/stats/warm (json|text)")

	cmd.AddCommand(newPlayCommand(opts))
	cmd.AddCommand(newSetsCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newWarmCommand(opts))
	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range validFormats {
		if f == format {
			return true
		}
	}
	return false
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func newPlayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Start the interactive game",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts)
		},
	}
}

func runPlay(parent context.Context, opts *rootOptions) error {
	ctx, cancel := signalContext(parent)
	defer cancel()

	a, err := app.New(opts.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Run(ctx)
}

func newSetsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sets",
		Short: "List available challenge sets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sets, err := app.ListSets(cmd.Context(), opts.cfg)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				type row struct {
					SetID      string `json:"set_id"`
					Name       string `json:"name"`
					Version    string `json:"version"`
					Challenges int    `json:"challenges"`
					Duration   int    `json:"duration_seconds"`
				}
				rows := make([]row, 0, len(sets))
				for _, s := range sets {
					rows = append(rows, row{s.SetID, s.Name, s.Version, len(s.Challenges), s.Defaults.DurationSeconds})
				}
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SET\tNAME\tCHALLENGES\tDURATION")
			for _, s := range sets {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%ds\n", s.SetID, s.Name, len(s.Challenges), s.Defaults.DurationSeconds)
			}
			return tw.Flush()
		},
	}
}

func newStatsCommand(opts *rootOptions) *cobra.Command {
	limit := 10
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show progress and best runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := app.ReadStats(cmd.Context(), opts.cfg, opts.cfg.SetID, limit)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			out := cmd.OutOrStdout()
			s := report.Summary
			fmt.Fprintf(out, "runs %d  finished %d  completed %d  solved %d  attempts %d  best %d\n",
				s.Runs, s.FinishedRuns, s.CompletedRuns, s.Solved, s.Attempts, s.BestScore)
			if last := report.LastRun; last != nil {
				fmt.Fprintf(out, "last run %s on %s (%s): %d points, %s\n",
					last.RunID, last.SetID, last.Mode, last.TotalScore, firstNonEmpty(last.Reason, "in progress"))
			}
			if len(report.TopRuns) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tSET\tMODE\tSOLVED\tACCURACY\tREASON\tSTARTED")
			for _, r := range report.TopRuns {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d/%d\t%.2f%%\t%s\t%s\n",
					r.TotalScore, r.SetID, r.Mode, r.Completed, r.Attempts, r.AccuracyPercent, r.Reason, r.StartTS.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", limit, "number of top runs to show")
	return cmd
}

func newWarmCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "warm",
		Short: "Warm the prefetch cache for a set and report progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			out := cmd.OutOrStdout()
			text := opts.format != "json"
			var mu sync.Mutex
			res, err := app.Warm(ctx, opts.cfg, func(s prefetch.Stats, progress float64) {
				mu.Lock()
				defer mu.Unlock()
				if text {
					fmt.Fprintf(out, "warm %3.0f%%  cached %d/%d  in-flight %d  concurrency %d  quality %s\n",
						progress*100, s.Cached, s.WarmTarget, s.InFlight, s.Concurrency, firstNonEmpty(string(s.Quality), "unknown"))
				}
			})
			if err != nil {
				return err
			}
			if !text {
				return writeJSON(out, res)
			}
			fmt.Fprintf(out, "warmed %s (%s): %d cached, %d failed in %s\n",
				res.SetID, res.Mode, res.Stats.Cached, res.Stats.Failed, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
