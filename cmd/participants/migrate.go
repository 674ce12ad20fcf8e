package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/careaccess/participants/internal/cli"
	portalsql "github.com/careaccess/participants/sql"
)

var (
	migrateDB     string
	migrateDryRun bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the participant schema",
	Long: `Apply the participant relations and the aggregate view to PostgreSQL.

Both files are idempotent; re-running migrate on an up-to-date database is a
no-op.`,
	Example: `  # Apply the schema
  participants migrate --db postgres://localhost/portal

  # Preview the SQL without applying
  participants migrate --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateDryRun {
			fmt.Fprintln(os.Stderr, "-- Dry-run mode: SQL will be output but not applied")
			fmt.Fprintln(os.Stderr, "")
			fmt.Println(portalsql.SchemaSQL)
			fmt.Println(portalsql.StatusInfosViewSQL)
			return nil
		}

		dsn, err := resolveDSN(migrateDB)
		if err != nil {
			return err
		}
		return runMigrate(dsn)
	},
}

func init() {
	f := migrateCmd.Flags()
	f.StringVar(&migrateDB, "db", "", "database URL")
	f.BoolVar(&migrateDryRun, "dry-run", false, "output schema SQL without applying")
}

func runMigrate(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	if !quiet {
		fmt.Println("Applying participant schema...")
	}

	// The view depends on the relations, so order matters.
	if _, err := db.ExecContext(ctx, portalsql.SchemaSQL); err != nil {
		return cli.GeneralError("applying relations", err)
	}
	if _, err := db.ExecContext(ctx, portalsql.StatusInfosViewSQL); err != nil {
		return cli.GeneralError("applying aggregate view", err)
	}

	if !quiet {
		fmt.Println("Participant schema applied successfully.")
	}
	return nil
}
