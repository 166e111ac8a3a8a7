package main

import (
	"database/sql"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coopfund/backoffice/internal/platform/database"
	"github.com/coopfund/backoffice/internal/platform/migrations"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(e *env, db *sql.DB) error {
				if err := migrations.Up(db); err != nil {
					return err
				}
				e.out.Success("schema is up to date")
				return nil
			})
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			return withDatabase(cmd, func(e *env, db *sql.DB) error {
				if err := migrations.Down(db, steps); err != nil {
					return err
				}
				e.out.Success(fmt.Sprintf("rolled back %d migration(s)", steps))
				return nil
			})
		},
	}
	down.Flags().Int("steps", 1, "Number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withDatabase(cmd, func(e *env, db *sql.DB) error {
				v, dirty, err := migrations.Version(db)
				if err != nil {
					return err
				}
				return e.out.Result(map[string]interface{}{"version": v, "dirty": dirty}, func(w io.Writer) {
					if dirty {
						fmt.Fprintf(w, "version %d (dirty)\n", v)
						return
					}
					fmt.Fprintf(w, "version %d\n", v)
				})
			})
		},
	})
	return cmd
}

// withDatabase opens only the local database; the migrate commands must work
// before the schema the services expect exists.
func withDatabase(cmd *cobra.Command, fn func(e *env, db *sql.DB) error) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	db, err := database.Open(cmd.Context(), e.cfg.Database.DSN, e.cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(e, db.DB)
}
