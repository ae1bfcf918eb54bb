package cmd

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/memoria/internal/config"
	"github.com/nextlevelbuilder/memoria/internal/store/pg"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema (sqlite migrates itself on open)",
	}
	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	return cmd
}

// openMigrator loads the config and builds a migrator for the postgres DSN.
func openMigrator() (*migrate.Migrate, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Database.Backend != config.BackendPostgres {
		return nil, nil, fmt.Errorf("migrations apply to the postgres backend; %s creates its schema on open", cfg.Database.Backend)
	}
	m, err := pg.NewMigrator(cfg.Database.PostgresDSN)
	if err != nil {
		return nil, nil, err
	}
	return m, cfg, nil
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, cfg, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil {
				if !errors.Is(err, migrate.ErrNoChange) {
					return fmt.Errorf("migrate up: %w", err)
				}
				fmt.Println("Schema is up to date.")
			} else {
				printVersion(m)
			}

			dims, err := pg.ProvisionDimensions(cmd.Context(), cfg.Database.PostgresDSN, cfg.Embedding.Dimensions)
			if err != nil {
				return err
			}
			fmt.Printf("Embedding column: vector(%d)\n", dims)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	var all bool
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (drops stored memories)",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()

			if all {
				err = m.Down()
			} else {
				err = m.Steps(-steps)
			}
			if err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}
			printVersion(m)
			return nil
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.Flags().BoolVar(&all, "all", false, "roll back every migration")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, _, err := openMigrator()
			if err != nil {
				return err
			}
			defer m.Close()
			printVersion(m)
			return nil
		},
	}
}

func printVersion(m *migrate.Migrate) {
	v, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		fmt.Println("Schema version: none (no migrations applied)")
	case err != nil:
		fmt.Printf("Schema version: unknown (%s)\n", err)
	case dirty:
		fmt.Printf("Schema version: %d (dirty, fix manually and force)\n", v)
	default:
		fmt.Printf("Schema version: %d\n", v)
	}
}
