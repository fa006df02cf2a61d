package commands

import (
	"database/sql"
	"fmt"

	"geminivoice-go/internal/migrations"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
)

// NewMigrateCommand manages the PostgreSQL storage schema.
func NewMigrateCommand(opts *Options) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL storage schema",
	}
	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (default: storage.postgres_dsn)")

	open := func() (*sql.DB, error) {
		if dsn == "" {
			cfg, err := opts.load()
			if err != nil {
				return nil, err
			}
			dsn = cfg.Storage.PostgresDSN
		}
		if dsn == "" {
			return nil, fmt.Errorf("no DSN: pass --dsn or set storage.postgres_dsn")
		}
		return sql.Open("postgres", dsn)
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := open()
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrations.Down(db, steps); err != nil {
				return fmt.Errorf("migrate down: %w", err)
			}
			printf(cmd.OutOrStdout(), "rolled back %d step(s)\n", steps)
			return nil
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of steps to roll back")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := open()
				if err != nil {
					return err
				}
				defer db.Close()
				if err := migrations.Up(db); err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				printf(cmd.OutOrStdout(), "migrations applied\n")
				return nil
			},
		},
		down,
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				db, err := open()
				if err != nil {
					return err
				}
				defer db.Close()
				st, err := migrations.CurrentStatus(db)
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				state := "clean"
				if st.Dirty {
					state = "dirty"
				}
				printf(cmd.OutOrStdout(), "current version: %d of %d (%s)\n", st.Version, st.Latest, state)
				if st.Pending() {
					printf(cmd.OutOrStdout(), "run `voicectl migrate up` to apply pending versions\n")
				}
				return nil
			},
		},
	)
	return cmd
}
