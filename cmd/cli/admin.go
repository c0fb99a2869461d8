package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iho/clinicalledger/internal/infrastructure/auth"
	"github.com/iho/clinicalledger/internal/infrastructure/config"
	"github.com/iho/clinicalledger/internal/infrastructure/logger"
	"github.com/iho/clinicalledger/internal/infrastructure/postgres"
)

// migrator is the schema migration surface used by the migrate commands.
type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
}

// newMigrator is swapped in tests.
var newMigrator = func(cfg *config.Config, log zerolog.Logger) migrator {
	return postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log)
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema (reads DATABASE_URL and MIGRATIONS_PATH)",
	}

	run := func(fn func(m migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.NewWithWriter(logger.Config{Level: cfg.LogLevel, Format: "console"}, cmd.ErrOrStderr())
			return fn(newMigrator(cfg, log))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(m migrator) error { return m.Up() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Args:  cobra.NoArgs,
			RunE:  run(func(m migrator) error { return m.Down() }),
		},
	)

	showVersion := &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
	}
	showVersion.RunE = run(func(m migrator) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		fmt.Fprintf(showVersion.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
		return nil
	})
	cmd.AddCommand(showVersion)

	return cmd
}

func tokenCmd() *cobra.Command {
	var name, role string

	cmd := &cobra.Command{
		Use:   "token <actor-id>",
		Short: "Sign a bearer token for a practitioner (reads JWT_SECRET)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.JWTSecret == "" {
				return fmt.Errorf("JWT_SECRET is not set")
			}

			token, err := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTExpiration).Generate(args[0], name, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", "", "Role claim")
	return cmd
}
