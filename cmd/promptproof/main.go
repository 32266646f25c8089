package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/spf13/cobra"

	"github.com/promptproof/promptproof/internal/grader"
	"github.com/promptproof/promptproof/internal/history"
	"github.com/promptproof/promptproof/internal/llm"
	"github.com/promptproof/promptproof/internal/report"
	"github.com/promptproof/promptproof/internal/runner"
	"github.com/promptproof/promptproof/internal/scenario"
	"github.com/promptproof/promptproof/internal/target"
)

const version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:           "promptproof",
		Short:         "Validate scripted prompts against a live chat agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the promptproof version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "promptproof %s\n", version)
		},
	})
	cmd.AddCommand(newRunCmd())
	return cmd
}

type runFlags struct {
	jsonPath     string
	markdownPath string
	historyPath  string
	headless     bool
	judgeModel   string
	runTimeout   time.Duration

	stabilizeInterval time.Duration
	stabilizeTimeout  time.Duration
	markerTimeout     time.Duration
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against its target and report per-prompt verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.jsonPath, "json", "", "write the JSON report to this file (- for stdout)")
	cmd.Flags().StringVar(&flags.markdownPath, "markdown", "", "write the Markdown report to this file")
	cmd.Flags().StringVar(&flags.historyPath, "history", "", "record outcomes in this SQLite database")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser headless")
	cmd.Flags().StringVar(&flags.judgeModel, "judge-model", "", "judgment model (default: provider default)")
	cmd.Flags().DurationVar(&flags.runTimeout, "run-timeout", 15*time.Minute, "overall run timeout")
	cmd.Flags().DurationVar(&flags.stabilizeInterval, "stabilize-interval", time.Second, "sampling interval for reply stabilization")
	cmd.Flags().DurationVar(&flags.stabilizeTimeout, "stabilize-timeout", time.Minute, "per-prompt stabilization timeout")
	cmd.Flags().DurationVar(&flags.markerTimeout, "marker-timeout", 15*time.Second, "per-marker resolution timeout")
	return cmd
}

func runScenario(ctx context.Context, path string, flags runFlags) error {
	logger := slog.Default()

	scn, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if scn.TargetURL == "" {
		return fmt.Errorf("scenario %s has no target_url", path)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, flags.runTimeout)
	defer cancel()

	handle, cleanup, err := openTarget(scn.TargetURL, flags.headless)
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline := &runner.Pipeline{
		Grader: buildGrader(ctx, flags.judgeModel, logger),
		Config: runner.Config{
			StabilizeInterval: flags.stabilizeInterval,
			StabilizeTimeout:  flags.stabilizeTimeout,
			MarkerTimeout:     flags.markerTimeout,
			Logger:            logger,
		},
	}

	rep := pipeline.RunJob(ctx, runner.Job{
		Name:    scn.Name,
		Target:  handle,
		Prompts: scn.PromptSpecs(),
	})

	if err := writeReports(rep, flags); err != nil {
		return err
	}
	if flags.historyPath != "" {
		if err := recordHistory(flags.historyPath, rep, logger); err != nil {
			return err
		}
	}

	s := rep.Summary
	logger.Info("run finished",
		"run_id", rep.RunID, "total", s.Total, "passed", s.Passed, "failed", s.Failed, "ungraded", s.Ungraded)
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d prompts failed", s.Failed, s.Total)
	}
	return nil
}

// openTarget launches a browser, opens the chat page, and wraps it as a
// target handle. The returned cleanup tears the browser down.
func openTarget(url string, headless bool) (target.Handle, func(), error) {
	l := launcher.New().Headless(headless)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, nil, fmt.Errorf("connect browser: %w", err)
	}
	cleanup := func() {
		_ = browser.Close()
		l.Cleanup()
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("open target page %s: %w", url, err)
	}

	return target.NewRodHandle(page, target.DefaultSelectors(), 0), cleanup, nil
}

// buildGrader wires the Gemini-backed judge when an API key is present.
// Without one the run still produces a report, just ungraded.
func buildGrader(ctx context.Context, model string, logger *slog.Logger) *grader.Grader {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		logger.Warn("GEMINI_API_KEY not set, results will be ungraded")
		return nil
	}

	provider, err := llm.NewGeminiProvider(ctx, apiKey, model)
	if err != nil {
		logger.Warn("judge provider unavailable, results will be ungraded", "err", err)
		return nil
	}

	limited, err := llm.NewRateLimitedProvider(provider, llm.RateLimiterConfig{
		RequestsPerMinute: 60,
		Burst:             5,
		MaxRetries:        2,
		InitialBackoff:    time.Second,
		MaxBackoff:        15 * time.Second,
	})
	if err != nil {
		logger.Warn("judge rate limiter misconfigured, results will be ungraded", "err", err)
		return nil
	}
	return grader.New(grader.NewLLMJudge(limited), logger)
}

func writeReports(rep *report.RunReport, flags runFlags) error {
	if flags.jsonPath != "" {
		data, err := report.GenerateJSON(rep)
		if err != nil {
			return err
		}
		if flags.jsonPath == "-" {
			fmt.Println(string(data))
		} else if err := os.WriteFile(flags.jsonPath, data, 0o644); err != nil {
			return fmt.Errorf("write JSON report: %w", err)
		}
	}

	if flags.markdownPath != "" {
		f, err := os.Create(flags.markdownPath)
		if err != nil {
			return fmt.Errorf("write Markdown report: %w", err)
		}
		defer f.Close()
		if err := report.GenerateMarkdown(f, rep); err != nil {
			return fmt.Errorf("write Markdown report: %w", err)
		}
	}
	return nil
}

func recordHistory(path string, rep *report.RunReport, logger *slog.Logger) error {
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.RecordRun(rep); err != nil {
		return err
	}
	logger.Debug("history recorded", "db", path, "entries", len(rep.Entries))
	return nil
}
