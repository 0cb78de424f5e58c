package main

import (
	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/spf13/cobra"
)

func labelRows(labels []fleet.ClientLabel) [][]string {
	rows := make([][]string, 0, len(labels))
	for _, l := range labels {
		rows = append(rows, []string{l.Owner, l.Name})
	}
	return rows
}

func createLabelsCmd(configManager config.Manager) *cobra.Command {
	labelsCmd := &cobra.Command{
		Use:   "labels [client-id]",
		Short: "List the labels of a client, or every label in use",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()

			var (
				labels []fleet.ClientLabel
				err    error
			)
			if len(args) == 1 {
				labels, err = svc.ReadClientLabels(cmd.Context(), args[0])
			} else {
				labels, err = svc.ReadAllClientLabels(cmd.Context())
			}
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), []string{"Owner", "Name"}, labelRows(labels))
			return nil
		},
	}

	var owner string
	addCmd := &cobra.Command{
		Use:   "add <client-id> <name>...",
		Short: "Attach labels to a client",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()
			return svc.AddClientLabels(cmd.Context(), args[0], owner, args[1:])
		},
	}
	removeCmd := &cobra.Command{
		Use:   "remove <client-id> <name>...",
		Short: "Detach labels from a client",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()
			return svc.RemoveClientLabels(cmd.Context(), args[0], owner, args[1:])
		},
	}
	for _, c := range []*cobra.Command{addCmd, removeCmd} {
		c.Flags().StringVar(&owner, "owner", "", "Owner of the labels")
		c.MarkFlagRequired("owner") //nolint:errcheck
		labelsCmd.AddCommand(c)
	}
	return labelsCmd
}
