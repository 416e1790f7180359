// Command shopctl is the operator CLI: schema migrations, catalog seeding,
// admin accounts, one-off order maintenance and outbox dead-letter replay.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kitsuneprints/storefront-backend/internal/bootstrap"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

var Version = "dev"

func main() {
	if err := newRootCmd(openRuntime).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runtime is the database-backed state shared by every subcommand.
type runtime struct {
	cfg  *config.Config
	logg *logger.Logger
	db   *db.Client
	svcs *bootstrap.Services
}

func (r *runtime) Close() {
	if r == nil || r.db == nil {
		return
	}
	if err := r.db.Close(); err != nil {
		r.logg.Error(context.Background(), "error closing database", err)
	}
}

type opener func(ctx context.Context) (*runtime, error)

func openRuntime(ctx context.Context) (*runtime, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	cfg.Service.Kind = "shopctl"

	logg := logger.New(logger.Options{
		ServiceName: "shopctl",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      logger.FormatConsole,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	svcs, err := bootstrap.NewServices(bootstrap.Params{Config: cfg, Logger: logg, DB: client})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("domain services: %w", err)
	}
	return &runtime{cfg: cfg, logg: logg, db: client, svcs: svcs}, nil
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Operator tooling for the Kitsune Prints storefront",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(seedCmd(open))
	root.AddCommand(adminCmd(open))
	root.AddCommand(sweepCmd(open))
	root.AddCommand(paymentsCmd(open))
	root.AddCommand(outboxCmd(open))
	root.AddCommand(migrateCmd(open))
	return root
}
