package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/contexts/ctxdb"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/spf13/cobra"
)

// importRecords decodes a stream of JSON records of the given kind from r and
// appends each one to the history of its client. Unknown clients are
// registered first when register is set.
func importRecords(ctx context.Context, svc fleet.Service, kind fleet.RecordKind, r io.Reader, register bool) (int, error) {
	// registrations must be visible to the next record of the same client
	ctx = ctxdb.RequirePrimary(ctx, true)
	ctx = ctxdb.BypassCachedMysql(ctx, true)

	dec := json.NewDecoder(r)
	var n int
	for {
		rec, err := fleet.NewClientRecord(kind)
		if err != nil {
			return n, err
		}
		if err := dec.Decode(rec); err != nil {
			if errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, fmt.Errorf("decode record %d: %w", n, err)
		}

		clientID := rec.RecordClientID()
		if register {
			if _, err := svc.ReadClientMetadata(ctx, clientID); fleet.IsUnknownClient(err) {
				update := fleet.ClientMetadataUpdate{FirstSeen: ptr.Time(time.Now())}
				if err := svc.WriteClientMetadata(ctx, clientID, update); err != nil {
					return n, err
				}
			} else if err != nil {
				return n, err
			}
		}

		var at *time.Time
		if ts := rec.RecordTimestamp(); !ts.IsZero() {
			at = &ts
		}
		if _, err := svc.AppendClientRecord(ctx, clientID, rec, at); err != nil {
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		n++
	}
}

func createImportCmd(configManager config.Manager) *cobra.Command {
	var (
		kind     string
		register bool
	)
	importCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Append a stream of JSON records to the client histories",
		Long: `
Append a stream of JSON records to the client histories.

The file holds one JSON object per record, each carrying its client_id.
Records without a timestamp are stored at the current time. Use - to read
from stdin.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := fleet.ParseRecordKind(kind)
			if err != nil {
				return err
			}

			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			svc, done := openService(configManager)
			defer done()

			n, err := importRecords(cmd.Context(), svc, k, r, register)
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s records.\n", n, k)
			return err
		},
	}
	importCmd.Flags().StringVar(&kind, "kind", fleet.RecordKindSnapshot.String(), "Record kind (snapshot, startup_info, crash)")
	importCmd.Flags().BoolVar(&register, "register", false, "Register unknown clients before importing their records")
	return importCmd
}
