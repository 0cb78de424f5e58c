package inmem

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/datastore/datastoretest"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInmem(t *testing.T) {
	datastoretest.RunTests(t, func(t *testing.T) fleet.Datastore {
		ds, err := New(clock.C)
		require.NoError(t, err)
		t.Cleanup(func() { require.NoError(t, ds.Drop(context.Background())) })
		return ds
	})
}

func TestAppendReturnsCopies(t *testing.T) {
	ctx := context.Background()
	ds, err := New(clock.C)
	require.NoError(t, err)

	id := "C.0000000000000001"
	require.NoError(t, ds.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))

	snap := &fleet.ClientSnapshot{ClientID: id, Kernel: "1", KnowledgeBase: fleet.KnowledgeBase{Users: []string{"root"}}}
	ts, err := ds.AppendClientRecord(ctx, id, snap)
	require.NoError(t, err)
	assert.True(t, snap.Timestamp.IsZero())

	snap.KnowledgeBase.Users[0] = "mutated"
	recs, err := ds.MultiReadLatestClientRecords(ctx, []string{id}, fleet.RecordKindSnapshot)
	require.NoError(t, err)
	got := recs[id].(*fleet.ClientSnapshot)
	assert.Equal(t, []string{"root"}, got.KnowledgeBase.Users)
	assert.True(t, ts.Equal(got.Timestamp))

	got.Kernel = "mutated"
	recs, err = ds.MultiReadLatestClientRecords(ctx, []string{id}, fleet.RecordKindSnapshot)
	require.NoError(t, err)
	assert.Equal(t, "1", recs[id].(*fleet.ClientSnapshot).Kernel)

	mds, err := ds.MultiReadClientMetadata(ctx, []string{id})
	require.NoError(t, err)
	mds[id].LastSnapshotTimestamp = nil
	mds, err = ds.MultiReadClientMetadata(ctx, []string{id})
	require.NoError(t, err)
	assert.NotNil(t, mds[id].LastSnapshotTimestamp)
}

func TestAutoTimestampWithMockClock(t *testing.T) {
	ctx := context.Background()
	mockClock := clock.NewMockClock()
	ds, err := New(mockClock)
	require.NoError(t, err)

	id := "C.0000000000000001"
	require.NoError(t, ds.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))

	// The clock does not move, so every timestamp after the first one is
	// derived from the previous one.
	now := fleet.TruncateTimestamp(mockClock.Now())
	for i := 0; i < 3; i++ {
		ts, err := ds.AppendClientRecord(ctx, id, &fleet.ClientCrash{})
		require.NoError(t, err)
		assert.True(t, now.Add(time.Duration(i)*time.Microsecond).Equal(ts), "append %d: %s", i, ts)
	}

	mockClock.AddTime(time.Hour)
	ts, err := ds.AppendClientRecord(ctx, id, &fleet.ClientCrash{})
	require.NoError(t, err)
	assert.True(t, now.Add(time.Hour).Equal(ts))
}

func TestSnapshotAfterStartupInfoSameMicrosecond(t *testing.T) {
	ctx := context.Background()
	mockClock := clock.NewMockClock()
	ds, err := New(mockClock)
	require.NoError(t, err)

	id := "C.0000000000000001"
	require.NoError(t, ds.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))

	sts, err := ds.AppendClientRecord(ctx, id, &fleet.StartupInfo{BootTime: 1})
	require.NoError(t, err)
	ts, err := ds.AppendClientRecord(ctx, id, &fleet.ClientSnapshot{Kernel: "1", StartupInfo: fleet.StartupInfo{BootTime: 2}})
	require.NoError(t, err)
	require.True(t, ts.After(sts), "%s not after %s", ts, sts)

	// the startup info embedded in the snapshot does not replace the one
	// written on its own
	history, err := ds.ReadClientRecordHistory(ctx, id, fleet.RecordKindStartupInfo, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, uint64(2), history[0].(*fleet.StartupInfo).BootTime)
	assert.Equal(t, uint64(1), history[1].(*fleet.StartupInfo).BootTime)
}

func TestConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	ds, err := New(clock.C)
	require.NoError(t, err)

	id := "C.0000000000000001"
	require.NoError(t, ds.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))

	const n = 50
	var wg sync.WaitGroup
	stamps := make([]time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ts, err := ds.AppendClientRecord(ctx, id, &fleet.ClientCrash{})
			assert.NoError(t, err)
			stamps[i] = ts
		}(i)
	}
	wg.Wait()

	distinct := make(map[int64]struct{}, n)
	for _, ts := range stamps {
		distinct[ts.UnixMicro()] = struct{}{}
	}
	assert.Len(t, distinct, n)

	history, err := ds.ReadClientRecordHistory(ctx, id, fleet.RecordKindCrash, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, history, n)
}

func TestListClientIDsPaging(t *testing.T) {
	ctx := context.Background()
	ds, err := New(clock.C)
	require.NoError(t, err)

	for _, id := range []string{"C.0000000000000003", "C.0000000000000001", "C.0000000000000004", "C.0000000000000002"} {
		require.NoError(t, ds.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))
	}
	// rewriting a known client does not add it twice
	require.NoError(t, ds.WriteClientMetadata(ctx, "C.0000000000000002", fleet.ClientMetadataUpdate{}))

	ids, err := ds.ListClientIDs(ctx, "", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.0000000000000001", "C.0000000000000002", "C.0000000000000003"}, ids)

	ids, err = ds.ListClientIDs(ctx, ids[len(ids)-1], 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.0000000000000004"}, ids)

	ids, err = ds.ListClientIDs(ctx, "C.0000000000000004", 3)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// the cursor does not have to be a registered id
	ids, err = ds.ListClientIDs(ctx, "C.00000000000000025", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.0000000000000003", "C.0000000000000004"}, ids)

	// the returned page is a copy
	ids[0] = "mutated"
	ids, err = ds.ListClientIDs(ctx, "", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"C.0000000000000001"}, ids)

	require.NoError(t, ds.Drop(ctx))
	ids, err = ds.ListClientIDs(ctx, "", 0)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
