package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/magabrotheeeer/host-lifecycle/internal/migrations"
	"github.com/magabrotheeeer/host-lifecycle/internal/storage/repository"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres schema",
	}

	withDB := func(fn func(db *repository.Storage, path string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver != "postgres" {
				return fmt.Errorf("migrations need the postgres driver, got %q", cfg.Storage.Driver)
			}
			db, err := repository.New(cfg.StorageConnectionString)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(db, cfg.MigrationsPath)
		}
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(db *repository.Storage, path string) error {
			if err := migrations.Run(db.DB, path); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "migrations applied")
			return nil
		}),
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: withDB(func(db *repository.Storage, path string) error {
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive, got %d", steps)
			}
			if err := migrations.Steps(db.DB, path, -steps); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "rolled back %d migration(s)\n", steps)
			return nil
		}),
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: withDB(func(db *repository.Storage, path string) error {
			v, dirty, err := migrations.Version(db.DB, path)
			if err != nil {
				return err
			}
			line := "version " + strconv.FormatUint(uint64(v), 10)
			if dirty {
				line += " (dirty)"
			}
			fmt.Fprintln(c.out, line)
			return nil
		}),
	}

	cmd.AddCommand(up, down, version)
	return cmd
}
