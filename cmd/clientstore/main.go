// Command clientstore administers the client record store: it prepares the
// database and inspects the stored clients.
package main

import (
	"fmt"
	"os"

	"github.com/fleetdm/clientstore/server/config"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
)

func createRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "clientstore",
		Short: "clientstore client record store",
		Long: `clientstore keeps the metadata, snapshots, startup info, crash reports,
keywords and labels of the clients of a fleet.

Configurable Options:

Options may be supplied in a yaml configuration file or via environment
variables. You only need to define the configuration values for which you
wish to override the default value.
`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to a configuration file")

	return rootCmd
}

func main() {
	rootCmd := createRootCmd()

	configManager := config.NewManager(rootCmd)

	rootCmd.AddCommand(createPrepareCmd(configManager))
	rootCmd.AddCommand(createConfigDumpCmd(configManager))
	rootCmd.AddCommand(createClientsCmd(configManager))
	rootCmd.AddCommand(createClientCmd(configManager))
	rootCmd.AddCommand(createHistoryCmd(configManager))
	rootCmd.AddCommand(createLabelsCmd(configManager))
	rootCmd.AddCommand(createKeywordsCmd(configManager))
	rootCmd.AddCommand(createImportCmd(configManager))
	rootCmd.AddCommand(createStatsCmd(configManager))
	rootCmd.AddCommand(createHealthCmd(configManager))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initFatal prints an error message and exits with a non-zero status.
func initFatal(err error, message string) {
	fmt.Printf("Error %s: %v\n", message, err)
	os.Exit(1)
}

func initLogger(conf config.ClientStoreConfig) log.Logger {
	var logger log.Logger
	if conf.Logging.JSON {
		logger = log.NewJSONLogger(os.Stderr)
	} else {
		logger = log.NewLogfmtLogger(os.Stderr)
	}

	if conf.Logging.Debug {
		logger = level.NewFilter(logger, level.AllowDebug())
	} else {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	logger = log.With(logger, "ts", log.DefaultTimestampUTC)
	logger = log.With(logger, "component", "clientstore")
	return logger
}
