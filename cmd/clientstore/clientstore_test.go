package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/config"
	"github.com/fleetdm/clientstore/server/datastore/inmem"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/service"
	"github.com/go-kit/log"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) fleet.Service {
	t.Helper()
	ds, err := inmem.New(clock.C)
	require.NoError(t, err)
	return service.NewService(ds, log.NewNopLogger(), clock.C)
}

const importStream = `
{"client_id": "C.0000000000000001", "timestamp": "2025-03-01T12:00:00Z", "kernel": "6.1.0", "knowledge_base": {"fqdn": "web-1.example.com", "os": "Linux"}}
{"client_id": "C.0000000000000002", "timestamp": "2025-03-01T12:05:00Z", "kernel": "10.0.19045", "knowledge_base": {"fqdn": "desk-7.example.com", "os": "Windows"}}
{"client_id": "C.0000000000000001", "timestamp": "2025-03-02T08:00:00Z", "kernel": "6.1.1", "knowledge_base": {"fqdn": "web-1.example.com", "os": "Linux"}}
`

func TestImportRecords(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	// without registration the first record fails
	n, err := importRecords(ctx, svc, fleet.RecordKindSnapshot, strings.NewReader(importStream), false)
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err))
	assert.Zero(t, n)

	n, err = importRecords(ctx, svc, fleet.RecordKindSnapshot, strings.NewReader(importStream), true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := svc.CountClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	snap, err := svc.ReadClientSnapshot(ctx, "C.0000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "6.1.1", snap.Kernel)

	recs, err := svc.ReadClientRecordHistory(ctx, "C.0000000000000001", fleet.RecordKindSnapshot, fleet.TimeRange{})
	require.NoError(t, err)
	want := [][]string{
		{"2025-03-02T08:00:00Z", "snapshot", "web-1.example.com 6.1.1"},
		{"2025-03-01T12:00:00Z", "snapshot", "web-1.example.com 6.1.0"},
	}
	if diff := cmp.Diff(want, historyRows(recs)); diff != "" {
		t.Errorf("history rows mismatch (-want +got):\n%s", diff)
	}

	// the snapshot import also filled the startup history
	recs, err = svc.ReadClientRecordHistory(ctx, "C.0000000000000002", fleet.RecordKindStartupInfo, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestImportRecordsMalformed(t *testing.T) {
	svc := newTestService(t)
	n, err := importRecords(context.Background(), svc, fleet.RecordKindCrash, strings.NewReader(`{"client_id": "C.0000000000000001",`), true)
	require.Error(t, err)
	assert.Zero(t, n)

	n, err = importRecords(context.Background(), svc, fleet.RecordKindCrash, strings.NewReader(`{"client_id": "bogus"}`), true)
	var target *fleet.MalformedClientIDError
	require.ErrorAs(t, err, &target)
	assert.Zero(t, n)
}

func TestClientRows(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	ping := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ip, err := fleet.NewNetworkAddress("10.1.2.3")
	require.NoError(t, err)
	require.NoError(t, svc.WriteClientMetadata(ctx, "C.0000000000000001", fleet.ClientMetadataUpdate{LastPing: &ping, LastIP: ip}))
	require.NoError(t, svc.WriteClientMetadata(ctx, "C.0000000000000002", fleet.ClientMetadataUpdate{}))
	require.NoError(t, svc.AddClientLabels(ctx, "C.0000000000000001", "admin", []string{"prod", "db"}))
	_, err = svc.WriteClientStartupInfo(ctx, "C.0000000000000001", &fleet.StartupInfo{
		ClientInfo: fleet.ClientInformation{ClientName: "agent", ClientVersion: 3400},
	})
	require.NoError(t, err)

	var infos []*fleet.ClientFullInfo
	for info, err := range svc.IterateAllClientsFullInfo(ctx, 1) {
		require.NoError(t, err)
		infos = append(infos, info)
	}

	want := [][]string{
		{"C.0000000000000001", "", "", "3400", "10.1.2.3", "2025-03-01T12:00:00Z", "admin:db,admin:prod"},
		{"C.0000000000000002", "", "", "", "", "-", ""},
	}
	if diff := cmp.Diff(want, clientRows(infos)); diff != "" {
		t.Errorf("client rows mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	printTable(&buf, clientColumns, clientRows(infos))
	out := buf.String()
	assert.Contains(t, out, "CLIENT ID")
	assert.Contains(t, out, "C.0000000000000002")
}

func TestKeywordRows(t *testing.T) {
	rows := keywordRows(
		[]string{"linux", "web", "linux", "none"},
		map[string][]string{
			"linux": {"C.0000000000000002", "C.0000000000000001"},
			"web":   {"C.0000000000000001"},
			"none":  {},
		},
	)
	want := [][]string{
		{"linux", "C.0000000000000001,C.0000000000000002"},
		{"web", "C.0000000000000001"},
		{"none", ""},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("keyword rows mismatch (-want +got):\n%s", diff)
	}
}

func TestParseTimeRange(t *testing.T) {
	tr, err := parseTimeRange("", "")
	require.NoError(t, err)
	assert.Nil(t, tr.From)
	assert.Nil(t, tr.To)

	tr, err = parseTimeRange("2025-03-01T12:00:00Z", "2025-03-01T13:00:00.000001Z")
	require.NoError(t, err)
	assert.True(t, time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC).Equal(*tr.From))
	assert.True(t, time.Date(2025, 3, 1, 13, 0, 0, 1000, time.UTC).Equal(*tr.To))

	_, err = parseTimeRange("yesterday", "")
	require.Error(t, err)
	_, err = parseTimeRange("2025-03-02T00:00:00Z", "2025-03-01T00:00:00Z")
	require.Error(t, err)
}

func TestNewDatastoreInmem(t *testing.T) {
	conf := config.TestConfig()
	ds, err := newDatastore(conf, log.NewNopLogger())
	require.NoError(t, err)
	require.NoError(t, ds.HealthCheck())
	require.NoError(t, ds.Close())

	conf.Datastore.Backend = "postgres"
	_, err = newDatastore(conf, log.NewNopLogger())
	require.Error(t, err)
}
