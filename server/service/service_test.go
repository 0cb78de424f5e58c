package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/datastore/inmem"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/mock"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID  = "C.fc413187fefa1dcf"
	otherClientID = "C.0000000000000002"
)

func newTestService(t *testing.T, ds fleet.Datastore, opts ...Option) *Service {
	t.Helper()
	return NewService(ds, log.NewNopLogger(), clock.C, opts...).(*Service)
}

func newInmemService(t *testing.T) (*Service, *inmem.Datastore) {
	t.Helper()
	ds, err := inmem.New(clock.C)
	require.NoError(t, err)
	return newTestService(t, ds), ds
}

func TestNewServiceDefaults(t *testing.T) {
	svc := newTestService(t, new(mock.DataStore))
	assert.Equal(t, fleet.DefaultIterationBatchSize, svc.batchSize(0))
	assert.Equal(t, fleet.DefaultIterationBatchSize, svc.batchSize(-1))
	assert.Equal(t, 7, svc.batchSize(7))

	svc = newTestService(t, new(mock.DataStore), WithIterationBatchSize(100))
	assert.Equal(t, 100, svc.batchSize(0))

	svc = newTestService(t, new(mock.DataStore), WithIterationBatchSize(0))
	assert.Equal(t, fleet.DefaultIterationBatchSize, svc.batchSize(0))
}

func TestAppendClientRecordsChecksBeforeWriting(t *testing.T) {
	ds := new(mock.DataStore)
	ds.AppendClientRecordsFunc = func(ctx context.Context, clientID string, recs []fleet.ClientRecord) error {
		return nil
	}
	svc := newTestService(t, ds)
	ctx := context.Background()
	ts := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name  string
		kind  fleet.RecordKind
		recs  []fleet.ClientRecord
		check func(t *testing.T, err error)
	}{
		{
			name: "empty",
			kind: fleet.RecordKindCrash,
			check: func(t *testing.T, err error) {
				var target *fleet.EmptyBatchError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			name: "malformed id",
			kind: fleet.RecordKindCrash,
			recs: []fleet.ClientRecord{&fleet.ClientCrash{ClientID: "C.nope", Timestamp: ts}},
			check: func(t *testing.T, err error) {
				var target *fleet.MalformedClientIDError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			name: "mixed ids before missing timestamps",
			kind: fleet.RecordKindCrash,
			recs: []fleet.ClientRecord{
				&fleet.ClientCrash{ClientID: testClientID},
				&fleet.ClientCrash{ClientID: otherClientID},
			},
			check: func(t *testing.T, err error) {
				var target *fleet.NonUniformIDError
				require.ErrorAs(t, err, &target)
			},
		},
		{
			name: "missing timestamp",
			kind: fleet.RecordKindCrash,
			recs: []fleet.ClientRecord{
				&fleet.ClientCrash{ClientID: testClientID, Timestamp: ts},
				&fleet.ClientCrash{ClientID: testClientID},
			},
			check: func(t *testing.T, err error) {
				var target *fleet.MissingTimestampError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, 1, target.Index)
			},
		},
		{
			name: "wrong kind",
			kind: fleet.RecordKindCrash,
			recs: []fleet.ClientRecord{
				&fleet.StartupInfo{ClientID: testClientID, Timestamp: ts},
			},
			check: func(t *testing.T, err error) {
				var target *fleet.TypeMismatchError
				require.ErrorAs(t, err, &target)
				assert.Equal(t, "records[0]", target.Field)
			},
		},
		{
			name: "nil record",
			kind: fleet.RecordKindCrash,
			recs: []fleet.ClientRecord{&fleet.ClientCrash{ClientID: testClientID, Timestamp: ts}, nil},
			check: func(t *testing.T, err error) {
				var target *fleet.NonUniformIDError
				require.ErrorAs(t, err, &target)
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ds.AppendClientRecordsFuncInvoked = false
			err := svc.AppendClientRecords(ctx, c.kind, c.recs)
			require.Error(t, err)
			c.check(t, err)
			assert.False(t, ds.AppendClientRecordsFuncInvoked)
		})
	}

	// A valid batch reaches the datastore with truncated timestamps.
	var got []fleet.ClientRecord
	ds.AppendClientRecordsFunc = func(ctx context.Context, clientID string, recs []fleet.ClientRecord) error {
		assert.Equal(t, testClientID, clientID)
		got = recs
		return nil
	}
	err := svc.AppendClientRecords(ctx, fleet.RecordKindCrash, []fleet.ClientRecord{
		&fleet.ClientCrash{ClientID: testClientID, Timestamp: ts.Add(1500 * time.Nanosecond)},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, ts.Add(time.Microsecond).Equal(got[0].RecordTimestamp()))
}

func TestDatastoreErrorsKeepTheirType(t *testing.T) {
	ds := new(mock.DataStore)
	ds.AppendClientRecordFunc = func(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
		return time.Time{}, &fleet.UnknownClientError{ClientID: clientID}
	}
	ds.MultiReadLatestClientRecordsFunc = func(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (map[string]fleet.ClientRecord, error) {
		return nil, errors.New("connection refused")
	}
	svc := newTestService(t, ds)

	_, err := svc.WriteClientCrashInfo(context.Background(), &fleet.ClientCrash{ClientID: testClientID})
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err))
	assert.True(t, fleet.IsNotFound(err))

	_, err = svc.ReadClientSnapshot(context.Background(), testClientID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, fleet.IsNotFound(err))
}

func TestNilTypedRecords(t *testing.T) {
	svc := newTestService(t, new(mock.DataStore))
	ctx := context.Background()

	var tme *fleet.TypeMismatchError
	_, err := svc.WriteClientSnapshot(ctx, nil)
	require.ErrorAs(t, err, &tme)
	_, err = svc.WriteClientStartupInfo(ctx, testClientID, nil)
	require.ErrorAs(t, err, &tme)
	_, err = svc.WriteClientCrashInfo(ctx, nil)
	require.ErrorAs(t, err, &tme)
	_, err = svc.AppendClientRecord(ctx, testClientID, nil, nil)
	require.ErrorAs(t, err, &tme)
}

func TestAppendTimestampArgument(t *testing.T) {
	ds := new(mock.DataStore)
	var stored []time.Time
	ds.AppendClientRecordFunc = func(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
		stored = append(stored, rec.RecordTimestamp())
		return rec.RecordTimestamp(), nil
	}
	svc := newTestService(t, ds)
	ctx := context.Background()

	recorded := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	explicit := time.Date(2025, 3, 2, 12, 0, 0, 1500, time.UTC)

	_, err := svc.WriteClientCrashInfo(ctx, &fleet.ClientCrash{ClientID: testClientID, Timestamp: recorded})
	require.NoError(t, err)
	_, err = svc.WriteClientSnapshot(ctx, &fleet.ClientSnapshot{ClientID: testClientID, Timestamp: recorded})
	require.NoError(t, err)
	_, err = svc.WriteClientStartupInfo(ctx, testClientID, &fleet.StartupInfo{Timestamp: recorded})
	require.NoError(t, err)
	_, err = svc.AppendClientRecord(ctx, testClientID, &fleet.ClientCrash{Timestamp: recorded}, &explicit)
	require.NoError(t, err)

	require.Len(t, stored, 4)
	for i := 0; i < 3; i++ {
		assert.True(t, stored[i].IsZero(), "write %d stored at %s", i, stored[i])
	}
	assert.Equal(t, fleet.TruncateTimestamp(explicit), stored[3])
}

func TestAppendClientRecordDoesNotModifyInput(t *testing.T) {
	svc, _ := newInmemService(t)
	ctx := context.Background()
	require.NoError(t, svc.WriteClientMetadata(ctx, testClientID, fleet.ClientMetadataUpdate{}))

	snap := &fleet.ClientSnapshot{Kernel: "1"}
	ts, err := svc.AppendClientRecord(ctx, testClientID, snap, nil)
	require.NoError(t, err)
	assert.False(t, ts.IsZero())
	assert.Empty(t, snap.ClientID)
	assert.True(t, snap.Timestamp.IsZero())

	got, err := svc.ReadClientSnapshot(ctx, testClientID)
	require.NoError(t, err)
	assert.Equal(t, testClientID, got.ClientID)
	assert.Equal(t, testClientID, got.StartupInfo.ClientID)
}

func TestListClientsForKeywordsCanonicalLookup(t *testing.T) {
	const (
		nfc = "caf\u00e9"
		nfd = "cafe\u0301"
	)
	ds := new(mock.DataStore)
	var requested []string
	ds.ListClientsForKeywordsFunc = func(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error) {
		requested = keywords
		return map[string][]string{nfc: {testClientID}}, nil
	}
	svc := newTestService(t, ds)

	res, err := svc.ListClientsForKeywords(context.Background(), []string{nfc, nfd, "other"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		nfc:     {testClientID},
		nfd:     {testClientID},
		"other": {},
	}, res)
	assert.Equal(t, []string{nfc, nfc, "other"}, requested)
}

func TestClientIDPaging(t *testing.T) {
	ids := []string{
		"C.0000000000000001", "C.0000000000000002", "C.0000000000000003",
		"C.0000000000000004", "C.0000000000000005",
	}
	ds := new(mock.DataStore)
	var calls []string
	ds.ListClientIDsFunc = func(ctx context.Context, afterID string, limit int) ([]string, error) {
		calls = append(calls, afterID)
		var page []string
		for _, id := range ids {
			if id > afterID && len(page) < limit {
				page = append(page, id)
			}
		}
		return page, nil
	}
	svc := newTestService(t, ds)
	ctx := context.Background()

	var got []string
	for id, err := range svc.ListAllClientIDs(ctx, 2) {
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, ids, got)
	assert.Equal(t, []string{"", "C.0000000000000002", "C.0000000000000004"}, calls)

	// an exact multiple of the batch size needs one extra empty page
	calls = nil
	got = got[:0]
	for id, err := range svc.ListAllClientIDs(ctx, 5) {
		require.NoError(t, err)
		got = append(got, id)
	}
	assert.Equal(t, ids, got)
	assert.Equal(t, []string{"", "C.0000000000000005"}, calls)

	// stopping early does not fetch more pages
	calls = nil
	for range svc.ListAllClientIDs(ctx, 2) {
		break
	}
	assert.Equal(t, []string{""}, calls)
}

func TestIterateAllClientsFullInfoPropagatesErrors(t *testing.T) {
	ds := new(mock.DataStore)
	ds.ListClientIDsFunc = func(ctx context.Context, afterID string, limit int) ([]string, error) {
		return []string{testClientID}, nil
	}
	ds.MultiReadClientMetadataFunc = func(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
		return map[string]*fleet.ClientMetadata{testClientID: {ClientID: testClientID}}, nil
	}
	ds.MultiReadLatestClientRecordsFunc = func(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (map[string]fleet.ClientRecord, error) {
		return map[string]fleet.ClientRecord{}, nil
	}
	ds.MultiReadClientLabelsFunc = func(ctx context.Context, clientIDs []string) (map[string][]fleet.ClientLabel, error) {
		return nil, errors.New("labels unavailable")
	}
	svc := newTestService(t, ds)

	var n int
	var iterErr error
	for _, err := range svc.IterateAllClientsFullInfo(context.Background(), 10) {
		if err != nil {
			iterErr = err
			break
		}
		n++
	}
	assert.Zero(t, n)
	require.Error(t, iterErr)
	assert.Contains(t, iterErr.Error(), "labels unavailable")
}

func TestFullInfoWithInmem(t *testing.T) {
	svc, _ := newInmemService(t)
	ctx := context.Background()

	ping := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, svc.WriteClientMetadata(ctx, testClientID, fleet.ClientMetadataUpdate{LastPing: &ping}))
	require.NoError(t, svc.WriteClientMetadata(ctx, otherClientID, fleet.ClientMetadataUpdate{}))
	require.NoError(t, svc.AddClientLabels(ctx, testClientID, "admin", []string{"prod"}))

	infos, err := svc.MultiReadClientFullInfo(ctx, []string{testClientID, otherClientID, "C.00000000000000ff"}, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, []fleet.ClientLabel{{Owner: "admin", Name: "prod"}}, infos[testClientID].Labels)
	assert.Equal(t, []fleet.ClientLabel{}, infos[otherClientID].Labels)
	assert.Nil(t, infos[otherClientID].LastSnapshot)

	// cutoffs are compared at microsecond precision, like stored pings
	cutoff := ping.Add(time.Nanosecond)
	infos, err = svc.MultiReadClientFullInfo(ctx, []string{testClientID, otherClientID}, &cutoff)
	require.NoError(t, err)
	assert.Contains(t, infos, testClientID)

	cutoff = ping.Add(time.Microsecond)
	infos, err = svc.MultiReadClientFullInfo(ctx, []string{testClientID, otherClientID}, &cutoff)
	require.NoError(t, err)
	assert.Empty(t, infos)

	infos, err = svc.MultiReadClientFullInfo(ctx, []string{testClientID, otherClientID}, &ping)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Contains(t, infos, testClientID)

	_, err = svc.ReadClientFullInfo(ctx, "C.00000000000000ff")
	assert.True(t, fleet.IsUnknownClient(err))
}

func TestKeywordLengthLimit(t *testing.T) {
	svc, _ := newInmemService(t)
	ctx := context.Background()
	require.NoError(t, svc.WriteClientMetadata(ctx, testClientID, fleet.ClientMetadataUpdate{}))

	// the limit counts characters, not bytes
	longest := strings.Repeat("\u00e9", fleet.MaxKeywordLength)
	tooLong := longest + "x"

	var iae *fleet.InvalidArgumentError
	err := svc.AddClientKeywords(ctx, testClientID, []string{"ok", tooLong})
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, "keyword", iae.Name)
	res, err := svc.ListClientsForKeywords(ctx, []string{"ok"}, nil)
	require.NoError(t, err)
	assert.Empty(t, res["ok"])

	require.NoError(t, svc.AddClientKeywords(ctx, testClientID, []string{longest}))
	res, err = svc.ListClientsForKeywords(ctx, []string{longest, tooLong}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{testClientID}, res[longest])
	assert.Empty(t, res[tooLong])

	err = svc.AddClientLabels(ctx, testClientID, "admin", []string{tooLong})
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, "label name", iae.Name)
	err = svc.AddClientLabels(ctx, testClientID, tooLong, []string{"prod"})
	require.ErrorAs(t, err, &iae)
	assert.Equal(t, "label owner", iae.Name)

	labels, err := svc.ReadClientLabels(ctx, testClientID)
	require.NoError(t, err)
	assert.Empty(t, labels)
}
