package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/vietddude/gramo/internal/infra/storage/postgres"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [id]",
	Short: "List recent analyses stored in PostgreSQL, or print one by id",
	Args:  cobra.MaximumNArgs(1),
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of analyses to list")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if cfg.Database.URL == "" {
		slog.Error("database.url is not configured")
		os.Exit(1)
	}

	ctx := context.Background()
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = db.Close()
	}()
	repo := postgres.NewAnalysisRepo(db)

	if len(args) == 1 {
		rec, err := repo.Get(ctx, args[0])
		if err != nil {
			slog.Error("Failed to load analysis", "id", args[0], "error", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(rec)
		return
	}

	recs, err := repo.List(ctx, historyLimit)
	if err != nil {
		slog.Error("Failed to list analyses", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tSTYLE\tSTAGES\tTEXT\tERROR")
	for _, r := range recs {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%v\t%s\t%s\n",
			r.ID, r.CreatedAt.Format(time.RFC3339), r.Style, r.FocusAreas, preview(r.OriginalText, 40), r.Error)
	}
	_ = w.Flush()
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
