// Command hiectl runs operator tasks against a gateway's PostgreSQL
// database, Redis and Kafka: schema migrations, transfer inspection and
// redrive, webhook test tokens and audit tailing.
package main

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

	"hie-gateway/internal/platform/config"
	"hie-gateway/internal/platform/database"
	"hie-gateway/internal/platform/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "hiectl",
		Short:         "Operate an hie-gateway deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(redriveCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(secretCmd())
	rootCmd.AddCommand(auditCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// env bundles what every command needs from the environment.
type env struct {
	cfg    config.Server
	logger *slog.Logger
}

func loadEnv() (env, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return env{}, err
	}
	return env{cfg: cfg, logger: logger.New(cfg.LogLevel)}, nil
}

func openDatabase(ctx context.Context, cfg config.Server) (*database.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return database.Open(ctx, cfg.Database)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
