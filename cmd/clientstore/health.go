package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/health"
	"github.com/spf13/cobra"
)

func createHealthCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the datastore is reachable",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := configManager.LoadConfig()
			logger := initLogger(conf)

			ds, err := newDatastore(conf, logger)
			if err != nil {
				return err
			}
			defer ds.Close()

			checkers := map[string]health.Checker{ds.Name(): ds}
			if failing := health.Failing(logger, checkers); len(failing) > 0 {
				return errors.New("failing health checks: " + strings.Join(failing, ", "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}
