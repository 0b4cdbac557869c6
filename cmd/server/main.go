package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"quiz-arena/internal/bootstrap"
)

type runners struct {
	serve   func(ctx context.Context, cfg *bootstrap.Config) error
	migrate func(cfg *bootstrap.Config) error
}

func main() {
	root := newRootCommand(runners{serve: serve, migrate: migrate})
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCommand(r runners) *cobra.Command {
	cfg := &bootstrap.Config{}

	root := &cobra.Command{
		Use:           "quiz-arena",
		Short:         "Multiplayer quiz game server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bootstrap.RegisterFlags(root.PersistentFlags(), cfg)
	bootstrap.ApplyEnv(root.PersistentFlags())
	root.SetGlobalNormalizationFunc(root.PersistentFlags().GetNormalizeFunc())

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP, websocket and worker server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return r.serve(ctx, cfg)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("--database-url is required")
			}
			return r.migrate(cfg)
		},
	})
	return root
}

func serve(ctx context.Context, cfg *bootstrap.Config) error {
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	app.Start(ctx)

	<-ctx.Done()
	logrus.Info("Shutdown signal received...")
	app.Shutdown()
	return nil
}

func migrate(cfg *bootstrap.Config) error {
	return bootstrap.Migrate(cfg, bootstrap.NewLogger(cfg))
}
