package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/gramo/internal/control"
	"github.com/vietddude/gramo/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "gramo",
	Short: "Gramo text analysis service",
	Long:  `Gramo runs grammar, style and structure analysis over text with a rate limited language model.`,
	Run:   runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Run:   runServe,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads .env and the config file, then sets up logging.
// A missing config file falls back to defaults and the environment.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	var cfg *config.AppConfig
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg = config.Default()
		if err := cfg.Validate(); err != nil {
			stylelog.InitDefault()
			slog.Error("Invalid default config", "error", err)
			os.Exit(1)
		}
	} else {
		cfg, err = config.Load(cfgPath)
		if err != nil {
			stylelog.InitDefault()
			slog.Error("Failed to load config", "error", err)
			os.Exit(1)
		}
	}

	slogLevel := slog.LevelInfo
	switch {
	case isDebug || cfg.Logging.Level == "debug":
		slogLevel = slog.LevelDebug
	case cfg.Logging.Level == "warn":
		slogLevel = slog.LevelWarn
	case cfg.Logging.Level == "error":
		slogLevel = slog.LevelError
	}

	if cfg.Logging.Format == "json" {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	} else {
		stylelog.InitDefault(&tint.Options{
			Level:      slogLevel,
			TimeFormat: time.RFC3339,
		})
	}
	return cfg
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := control.New(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize Gramo", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		slog.Error("Failed to start Gramo", "error", err)
		os.Exit(1)
	}

	slog.Info("Gramo started", "config", cfgPath, "port", cfg.Server.Port)

	sig := <-sigChan
	slog.Info("Received signal, shutting down...", "signal", sig)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		slog.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
