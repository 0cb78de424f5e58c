package main

import (
	"sort"
	"strings"
	"time"

	"github.com/fleetdm/clientstore/server/config"
	"github.com/spf13/cobra"
)

func keywordRows(keywords []string, res map[string][]string) [][]string {
	rows := make([][]string, 0, len(keywords))
	seen := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		if seen[kw] {
			continue
		}
		seen[kw] = true
		ids := append([]string(nil), res[kw]...)
		sort.Strings(ids)
		rows = append(rows, []string{kw, strings.Join(ids, ",")})
	}
	return rows
}

func createKeywordsCmd(configManager config.Manager) *cobra.Command {
	keywordsCmd := &cobra.Command{
		Use:   "keywords",
		Short: "Search and edit the keyword index",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help() //nolint:errcheck
		},
	}

	var since time.Duration
	searchCmd := &cobra.Command{
		Use:   "search <keyword>...",
		Short: "List the clients associated with each keyword",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()

			var startTime *time.Time
			if since > 0 {
				t := time.Now().Add(-since)
				startTime = &t
			}
			res, err := svc.ListClientsForKeywords(cmd.Context(), args, startTime)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), []string{"Keyword", "Clients"}, keywordRows(args, res))
			return nil
		},
	}
	searchCmd.Flags().DurationVar(&since, "since", 0, "Only match associations added within this duration")

	addCmd := &cobra.Command{
		Use:   "add <client-id> <keyword>...",
		Short: "Associate keywords with a client",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()
			return svc.AddClientKeywords(cmd.Context(), args[0], args[1:])
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <client-id> <keyword>",
		Short: "Remove a keyword association from a client",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()
			return svc.RemoveClientKeyword(cmd.Context(), args[0], args[1])
		},
	}

	keywordsCmd.AddCommand(searchCmd, addCmd, removeCmd)
	return keywordsCmd
}
