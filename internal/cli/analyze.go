package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/gramo/internal/control"
	"github.com/vietddude/gramo/internal/core/domain"
)

var (
	analyzeStyle       string
	analyzeGoal        string
	analyzeFocus       []string
	analyzeConcurrency int
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [files...]",
	Short: "Analyze files (or stdin) and print the results as JSON",
	Long: `Analyze runs the pipeline once per file. All files share one token budget,
so a large batch is paced by the configured tokens per minute.`,
	Run: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeStyle, "style", "", "target writing style (default from config)")
	analyzeCmd.Flags().StringVar(&analyzeGoal, "goal", "", "structural goal")
	analyzeCmd.Flags().StringSliceVar(&analyzeFocus, "focus", []string{"grammar", "style", "structure"}, "stages to run")
	analyzeCmd.Flags().IntVar(&analyzeConcurrency, "concurrency", 2, "files analyzed in parallel")
	rootCmd.AddCommand(analyzeCmd)
}

type fileResult struct {
	File   string                 `json:"file"`
	Result *domain.PipelineResult `json:"result,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func runAnalyze(cmd *cobra.Command, args []string) {
	if code := analyzeBatch(args); code != 0 {
		os.Exit(code)
	}
}

// analyzeBatch analyzes every file and returns the process exit code. The app
// is stopped before it returns.
func analyzeBatch(args []string) int {
	cfg := loadConfig()

	focus := make([]domain.StageName, 0, len(analyzeFocus))
	for _, f := range analyzeFocus {
		name, err := domain.ParseStageName(f)
		if err != nil {
			slog.Error("Invalid --focus", "error", err)
			return 1
		}
		focus = append(focus, name)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Gramo", "error", err)
		return 1
	}
	defer func() {
		if err := app.Stop(context.Background()); err != nil {
			slog.Error("Failed to stop Gramo", "error", err)
		}
	}()

	if len(args) == 0 {
		args = []string{"-"}
	}
	results := make([]fileResult, len(args))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(analyzeConcurrency, 1))
	for i, file := range args {
		g.Go(func() error {
			results[i] = analyzeFile(gctx, app, file, focus)
			return nil
		})
	}
	_ = g.Wait()

	failed, err := writeResults(os.Stdout, results)
	if err != nil {
		slog.Error("Failed to write result", "error", err)
		return 1
	}
	if failed > 0 {
		return 1
	}
	return 0
}

// writeResults prints one indented JSON document per result and returns how
// many of them failed.
func writeResults(w io.Writer, results []fileResult) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

func analyzeFile(ctx context.Context, app *control.App, file string, focus []domain.StageName) fileResult {
	out := fileResult{File: file}

	text, err := readInput(file)
	if err != nil {
		out.Error = err.Error()
		return out
	}

	res, err := app.Orchestrator().Analyze(ctx, domain.PipelineRequest{
		Text:       text,
		Style:      analyzeStyle,
		Goal:       analyzeGoal,
		FocusAreas: focus,
	})
	if err != nil {
		slog.Warn("Analysis failed", "file", file, "error", err)
		out.Error = err.Error()
		return out
	}
	out.Result = res
	return out
}

func readInput(file string) (string, error) {
	if file == "-" {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	return string(b), nil
}
