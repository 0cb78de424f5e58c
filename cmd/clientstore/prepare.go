package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/datastore/mysql"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/log"
	"github.com/spf13/cobra"
)

func createPrepareCmd(configManager config.Manager) *cobra.Command {
	prepareCmd := &cobra.Command{
		Use:   "prepare",
		Short: "Subcommands for initializing clientstore infrastructure",
		Long: `
Subcommands for initializing clientstore infrastructure

To setup clientstore infrastructure, use one of the available commands.
`,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	noPrompt := false

	dbCmd := &cobra.Command{
		Use:   "db",
		Short: "Given correct database configurations, prepare the databases for use",
		Long:  ``,
		Run: func(cmd *cobra.Command, args []string) {
			config := configManager.LoadConfig()
			logger := initLogger(config)

			ds, err := mysql.New(config.Mysql, clock.C, mysql.Logger(log.With(logger, "component", "mysql")))
			if err != nil {
				initFatal(err, "creating db connection")
			}
			defer ds.Close()

			status, err := ds.MigrationStatus(cmd.Context())
			if err != nil {
				initFatal(err, "retrieving migration status")
			}

			if !prepareMigrationStatusCheck(status, noPrompt, config.Mysql.Database) {
				return
			}

			if err := ds.MigrateTables(cmd.Context()); err != nil {
				initFatal(err, "migrating db schema")
			}

			fmt.Println("Migrations completed.")
		},
	}

	dbCmd.PersistentFlags().BoolVar(&noPrompt, "no-prompt", false, "disable prompting before migrations (for use in scripts)")

	prepareCmd.AddCommand(dbCmd)

	return prepareCmd
}

// prepareMigrationStatusCheck reports the migration status and returns
// whether migrations should be applied.
func prepareMigrationStatusCheck(status *fleet.MigrationStatus, noPrompt bool, dbName string) bool {
	switch status.StatusCode {
	case fleet.NoMigrationsCompleted:
		// OK
	case fleet.AllMigrationsCompleted:
		fmt.Printf("Migrations already completed for %q. Nothing to do.\n", dbName)
		return false
	case fleet.SomeMigrationsCompleted:
		if !noPrompt {
			fmt.Printf("################################################################################\n"+
				"# WARNING:\n"+
				"#   This will perform %q database migrations. Please back up your data before\n"+
				"#   continuing.\n"+
				"#\n"+
				"#   Missing migrations: %v.\n"+
				"#\n"+
				"#   Press Enter to continue, or Control-c to exit.\n"+
				"################################################################################\n",
				dbName, status.Missing)
			bufio.NewScanner(os.Stdin).Scan()
		}
	case fleet.UnknownMigrations:
		fmt.Printf("################################################################################\n"+
			"# WARNING:\n"+
			"#   Your %q database has unrecognized migrations. This could happen when\n"+
			"#   running an older version of clientstore on a newer migrated database.\n"+
			"#\n"+
			"#   Unknown migrations: %v.\n"+
			"################################################################################\n",
			dbName, status.Unknown)
		os.Exit(1)
	}
	return true
}
