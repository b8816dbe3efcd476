package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/target/bookshelf/config"
	"github.com/target/bookshelf/internal/bootstrap"
)

// app carries the collaborators shared by every subcommand. Tests replace the loaders.
type app struct {
	logger       *slog.Logger
	loadConfig   func() (config.AppConfig, error)
	openSessions func(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*sessionBackend, error)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	logger := bootstrap.InitLogger(os.Getenv("LOG_LEVEL"))

	root := newRootCmd(&app{
		logger:       logger,
		loadConfig:   bootstrap.LoadConfig,
		openSessions: openSessionBackend,
	})
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.ErrorContext(ctx, "command failed", "error", err)
		os.Exit(1) //nolint:forbidigo // CLI must propagate command execution failure to callers
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "bookshelf-admin",
		Short: "Operator tooling for the bookshelf navigation service",
		Long: `bookshelf-admin inspects the navigation table and manages browser sessions
in the configured session backend. Configuration is read from the same environment
variables as the server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newNavCmd(a), newSessionsCmd(a))
	return root
}
