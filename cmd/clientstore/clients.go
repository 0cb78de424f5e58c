package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/spf13/cobra"
)

func createClientsCmd(configManager config.Manager) *cobra.Command {
	var (
		batchSize int
		pingedIn  time.Duration
	)
	clientsCmd := &cobra.Command{
		Use:   "clients",
		Short: "List every registered client",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()

			var minPing *time.Time
			if pingedIn > 0 {
				t := time.Now().Add(-pingedIn)
				minPing = &t
			}

			var infos []*fleet.ClientFullInfo
			for info, err := range svc.IterateAllClientsFullInfo(cmd.Context(), batchSize) {
				if err != nil {
					return err
				}
				if minPing != nil && (info.Metadata.Ping == nil || info.Metadata.Ping.Before(*minPing)) {
					continue
				}
				infos = append(infos, info)
			}
			printTable(cmd.OutOrStdout(), clientColumns, clientRows(infos))
			return nil
		},
	}
	clientsCmd.Flags().IntVar(&batchSize, "batch-size", 0, "Number of clients read per page (defaults to datastore.iteration_batch_size)")
	clientsCmd.Flags().DurationVar(&pingedIn, "pinged-within", 0, "Only list clients that pinged within this duration")
	return clientsCmd
}

func createClientCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "client <client-id>",
		Short: "Print everything known about a client as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()

			info, err := svc.ReadClientFullInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), info)
		},
	}
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseTimeRange(from, to string) (fleet.TimeRange, error) {
	var tr fleet.TimeRange
	if from != "" {
		t, err := time.Parse(time.RFC3339Nano, from)
		if err != nil {
			return tr, fmt.Errorf("parse --from: %w", err)
		}
		tr.From = &t
	}
	if to != "" {
		t, err := time.Parse(time.RFC3339Nano, to)
		if err != nil {
			return tr, fmt.Errorf("parse --to: %w", err)
		}
		tr.To = &t
	}
	if tr.From != nil && tr.To != nil && tr.To.Before(*tr.From) {
		return tr, errors.New("--to is before --from")
	}
	return tr, nil
}

func createHistoryCmd(configManager config.Manager) *cobra.Command {
	var kind, from, to string
	historyCmd := &cobra.Command{
		Use:   "history <client-id>",
		Short: "List the history of a client, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := fleet.ParseRecordKind(kind)
			if err != nil {
				return err
			}
			tr, err := parseTimeRange(from, to)
			if err != nil {
				return err
			}

			svc, done := openService(configManager)
			defer done()

			recs, err := svc.ReadClientRecordHistory(cmd.Context(), args[0], k, tr)
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), historyColumns, historyRows(recs))
			return nil
		},
	}
	historyCmd.Flags().StringVar(&kind, "kind", fleet.RecordKindSnapshot.String(), "Record kind (snapshot, startup_info, crash)")
	historyCmd.Flags().StringVar(&from, "from", "", "Only list records at or after this RFC 3339 time")
	historyCmd.Flags().StringVar(&to, "to", "", "Only list records at or before this RFC 3339 time")
	return historyCmd
}

func createStatsCmd(configManager config.Manager) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print counts of clients and labels",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, done := openService(configManager)
			defer done()

			n, err := svc.CountClients(cmd.Context())
			if err != nil {
				return err
			}
			labels, err := svc.ReadAllClientLabels(cmd.Context())
			if err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), []string{"Clients", "Labels"}, [][]string{
				{fmt.Sprint(n), fmt.Sprint(len(labels))},
			})
			return nil
		},
	}
}
