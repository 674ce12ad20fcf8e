package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/careaccess/participants/internal/cli"
	"github.com/careaccess/participants/internal/doctor"
)

var (
	doctorDB      string
	doctorVerbose bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run health checks",
	Long:  `Run health checks on the participant query infrastructure.`,
	Example: `  # Run health checks
  participants doctor --db postgres://localhost/portal

  # Run with verbose output
  participants doctor --db postgres://localhost/portal --verbose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verboseFlag := doctorVerbose || cfg.Doctor.Verbose

		dsn, err := resolveDSN(doctorDB)
		if err != nil {
			return err
		}

		return runDoctor(dsn, verboseFlag)
	},
}

func init() {
	f := doctorCmd.Flags()
	f.StringVar(&doctorDB, "db", "", "database URL")
	f.BoolVar(&doctorVerbose, "verbose", false, "show detailed output")
}

func runDoctor(dsn string, verboseFlag bool) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return cli.DBConnectError("connecting to database", err)
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()

	if !quiet {
		fmt.Println("participants doctor - Health Check")
	}

	d := doctor.New(db)
	report, err := d.Run(ctx)
	if err != nil {
		return cli.GeneralError("running doctor", err)
	}

	report.Print(os.Stdout, verboseFlag)

	if report.HasErrors() {
		return cli.GeneralError("health checks failed", nil)
	}

	return nil
}
