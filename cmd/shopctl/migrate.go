package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"

	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/migrate"
)

func migrateCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply and inspect schema migrations",
	}

	withRunner := func(run func(cmd *cobra.Command, runner *migrate.Runner) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			rt, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			if rt.cfg.DB.Driver == db.DriverSQLite {
				if cmd.Name() != "up" {
					return fmt.Errorf("migrate %s is not supported for sqlite", cmd.Name())
				}
				if err := migrate.AutoMigrateModels(cmd.Context(), rt.db); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "sqlite schema migrated from models")
				return nil
			}
			sqlDB, err := rt.db.DB().DB()
			if err != nil {
				return err
			}
			runner, err := migrate.NewRunner(sqlDB, nil)
			if err != nil {
				return err
			}
			return run(cmd, runner)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
			results, err := runner.Up(cmd.Context())
			printResults(cmd.OutOrStdout(), results...)
			return err
		}),
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
			result, err := runner.Down(cmd.Context())
			printResults(cmd.OutOrStdout(), result)
			return err
		}),
	}
	to := &cobra.Command{
		Use:   "to <version>",
		Short: "Migrate up or down to a version (YYYYMMDDHHMMSS)",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := parseVersion(args[0])
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := parseVersion(args[0])
			return withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
				results, err := runner.To(cmd.Context(), target)
				printResults(cmd.OutOrStdout(), results...)
				return err
			})(cmd, args)
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "Show applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: withRunner(func(cmd *cobra.Command, runner *migrate.Runner) error {
			statuses, err := runner.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tSTATE\tAPPLIED AT\tFILE")
			for _, s := range statuses {
				applied := "-"
				if !s.AppliedAt.IsZero() {
					applied = s.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Source.Version, s.State, applied, s.Source.Path)
			}
			return tw.Flush()
		}),
	}

	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Write an empty migration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			path, err := migrate.CreateSQLMigration(dir, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "created", path)
			return nil
		},
	}
	create.Flags().String("dir", migrate.DefaultDir, "migrations directory")

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check migration file names and goose markers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := migrate.Source()
			if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
				source = os.DirFS(dir)
			}
			if err := migrate.Validate(source); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations valid")
			return nil
		},
	}
	validate.Flags().String("dir", "", "validate this directory instead of the bundled migrations")

	cmd.AddCommand(up, down, to, status, create, validate)
	return cmd
}

func parseVersion(raw string) (int64, error) {
	version, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || len(raw) != 14 {
		return 0, fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS)", raw)
	}
	return version, nil
}

func printResults(w io.Writer, results ...*goose.MigrationResult) {
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		fmt.Fprintf(w, "%-4s %d %s (%s)\n", r.Direction, r.Source.Version, r.Source.Path, r.Duration.Round(time.Millisecond))
	}
}
