package datastoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAppendUnknownClient(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(7)

	_, err := svc.WriteClientSnapshot(ctx, newSnapshot(id, time.Time{}, "1.0"))
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	_, err = svc.WriteClientStartupInfo(ctx, id, &fleet.StartupInfo{BootTime: 1})
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	_, err = svc.WriteClientCrashInfo(ctx, &fleet.ClientCrash{ClientID: id, CrashMessage: "boom"})
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	// Reads of unknown clients are empty rather than failing.
	snap, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, snap)

	history, err := svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Empty(t, history)

	n, err := svc.CountClients(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testAutoTimestamps(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	var written []time.Time
	for i := 0; i < 5; i++ {
		ts, err := svc.WriteClientCrashInfo(ctx, &fleet.ClientCrash{ClientID: id, CrashMessage: "crash"})
		require.NoError(t, err)
		require.False(t, ts.IsZero())
		assert.Equal(t, ts, ts.Truncate(time.Microsecond))
		if len(written) > 0 {
			require.True(t, ts.After(written[len(written)-1]), "%s not after %s", ts, written[len(written)-1])
		}
		written = append(written, ts)
	}

	history, err := svc.ReadClientCrashInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, micros(written[4], written[3], written[2], written[1], written[0]), timestamps(history))

	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	requireTimeEqual(t, written[4], md.LastCrashTimestamp)

	latest, err := svc.ReadClientCrashInfo(ctx, id)
	require.NoError(t, err)
	assert.True(t, written[4].Equal(latest.Timestamp))
	assert.Equal(t, id, latest.ClientID)
}

func testHistoryInclusive(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	t1, t2, t3 := at(time.Hour), at(2*time.Hour), at(3*time.Hour)
	for _, ts := range []time.Time{t2, t1, t3} {
		appendAt(t, svc, newSnapshot(id, time.Time{}, ts.Format(time.Kitchen)), ts)
	}

	cases := []struct {
		name     string
		tr       fleet.TimeRange
		expected []int64
	}{
		{"unbounded", fleet.TimeRange{}, micros(t3, t2, t1)},
		{"both ends inclusive", fleet.TimeRange{From: &t1, To: &t3}, micros(t3, t2, t1)},
		{"single point", fleet.TimeRange{From: &t2, To: &t2}, micros(t2)},
		{"from only", fleet.TimeRange{From: &t2}, micros(t3, t2)},
		{"to only", fleet.TimeRange{To: &t2}, micros(t2, t1)},
		{"sub-microsecond from", fleet.TimeRange{From: ptr.Time(t2.Add(time.Nanosecond))}, micros(t3, t2)},
		{"sub-microsecond to", fleet.TimeRange{To: ptr.Time(t2.Add(time.Nanosecond))}, micros(t2, t1)},
		{"next microsecond from", fleet.TimeRange{From: ptr.Time(t2.Add(time.Microsecond))}, micros(t3)},
		{"empty range", fleet.TimeRange{From: &t3, To: &t1}, micros()},
		{"before everything", fleet.TimeRange{To: ptr.Time(at(0))}, micros()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			history, err := svc.ReadClientSnapshotHistory(ctx, id, c.tr)
			require.NoError(t, err)
			assert.Equal(t, c.expected, timestamps(history))
		})
	}
}

func testBackfillPointer(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	appendAt(t, svc, newSnapshot(id, time.Time{}, "2"), at(2*time.Hour))

	// An older record is stored but does not become the latest.
	ts := appendAt(t, svc, newSnapshot(id, time.Time{}, "1"), at(time.Hour))
	assert.True(t, at(time.Hour).Equal(ts))

	snap, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2", snap.Kernel)
	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	requireTimeEqual(t, at(2*time.Hour), md.LastSnapshotTimestamp)

	history, err := svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, snapshotKernels(history))

	// A newer one does.
	appendAt(t, svc, newSnapshot(id, time.Time{}, "3"), at(3*time.Hour))
	snap, err = svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "3", snap.Kernel)
	md, err = svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	requireTimeEqual(t, at(3*time.Hour), md.LastSnapshotTimestamp)

	// An automatic timestamp is after the latest record even if that record
	// was backfilled into the future.
	future := time.Now().Add(24 * time.Hour)
	appendAt(t, svc, &fleet.ClientCrash{ClientID: id}, future)
	ts, err = svc.WriteClientCrashInfo(ctx, &fleet.ClientCrash{ClientID: id})
	require.NoError(t, err)
	assert.True(t, ts.After(future))
}

func testSameTimestampReplaces(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	appendAt(t, svc, &fleet.ClientCrash{ClientID: id, CrashMessage: "first"}, at(time.Hour))
	appendAt(t, svc, &fleet.ClientCrash{ClientID: id, CrashMessage: "second"}, at(time.Hour))

	history, err := svc.ReadClientCrashInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "second", history[0].CrashMessage)

	latest, err := svc.ReadClientCrashInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.CrashMessage)
}

func testBatchValidation(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id, other := clientID(1), clientID(2)
	registerClient(t, svc, id)
	registerClient(t, svc, other)

	var ebe *fleet.EmptyBatchError
	err := svc.WriteClientSnapshotHistory(ctx, nil)
	require.True(t, errors.As(err, &ebe), "%v", err)

	var nue *fleet.NonUniformIDError
	err = svc.WriteClientSnapshotHistory(ctx, []*fleet.ClientSnapshot{
		newSnapshot(id, at(time.Hour), "1"),
		newSnapshot(other, at(2*time.Hour), "2"),
	})
	require.True(t, errors.As(err, &nue), "%v", err)
	assert.Equal(t, id, nue.Expected)
	assert.Equal(t, other, nue.Got)

	var mte *fleet.MissingTimestampError
	err = svc.WriteClientSnapshotHistory(ctx, []*fleet.ClientSnapshot{
		newSnapshot(id, at(time.Hour), "1"),
		newSnapshot(id, time.Time{}, "2"),
	})
	require.True(t, errors.As(err, &mte), "%v", err)
	assert.Equal(t, 1, mte.Index)

	var tme *fleet.TypeMismatchError
	err = svc.AppendClientRecords(ctx, fleet.RecordKindSnapshot, []fleet.ClientRecord{
		newSnapshot(id, at(time.Hour), "1"),
		&fleet.ClientCrash{ClientID: id, Timestamp: at(2 * time.Hour)},
	})
	require.True(t, errors.As(err, &tme), "%v", err)
	assert.Equal(t, "snapshot", tme.Expected)
	assert.Equal(t, "crash", tme.Got)

	// Missing timestamps are reported before kind mismatches.
	err = svc.AppendClientRecords(ctx, fleet.RecordKindSnapshot, []fleet.ClientRecord{
		&fleet.ClientCrash{ClientID: id, Timestamp: at(2 * time.Hour)},
		newSnapshot(id, time.Time{}, "1"),
	})
	require.True(t, errors.As(err, &mte), "%v", err)

	err = svc.WriteClientSnapshotHistory(ctx, []*fleet.ClientSnapshot{
		newSnapshot(clientID(3), at(time.Hour), "1"),
	})
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	// None of the rejected batches left anything behind.
	for _, cid := range []string{id, other} {
		history, err := svc.ReadClientSnapshotHistory(ctx, cid, fleet.TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, history)
		startups, err := svc.ReadClientStartupInfoHistory(ctx, cid, fleet.TimeRange{})
		require.NoError(t, err)
		assert.Empty(t, startups)
		md, err := svc.ReadClientMetadata(ctx, cid)
		require.NoError(t, err)
		assert.Nil(t, md.LastSnapshotTimestamp)
	}
}

func testBatchWrite(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	batch := []*fleet.ClientSnapshot{
		newSnapshot(id, at(time.Hour), "1"),
		newSnapshot(id, at(3*time.Hour), "3"),
		newSnapshot(id, at(2*time.Hour), "2"),
	}
	require.NoError(t, svc.WriteClientSnapshotHistory(ctx, batch))

	history, err := svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, snapshotKernels(history))

	snap, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "3", snap.Kernel)

	// The caller's records are not modified.
	assert.True(t, at(time.Hour).Equal(batch[0].Timestamp))
	assert.True(t, batch[0].StartupInfo.Timestamp.IsZero())
}

func testKernelHistory(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	ts1, err := svc.WriteClientSnapshot(ctx, newSnapshot(id, time.Time{}, "12.3"))
	require.NoError(t, err)
	ts2, err := svc.WriteClientSnapshot(ctx, newSnapshot(id, time.Time{}, "12.4"))
	require.NoError(t, err)
	require.True(t, ts2.After(ts1))

	history, err := svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, []string{"12.4", "12.3"}, snapshotKernels(history))
	assert.Equal(t, micros(ts2, ts1), timestamps(history))

	history, err = svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{To: &ts1})
	require.NoError(t, err)
	assert.Equal(t, []string{"12.3"}, snapshotKernels(history))

	snap, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "12.4", snap.Kernel)
	assert.Equal(t, "host-"+id+".example.com", snap.KnowledgeBase.FQDN)
}

func testSnapshotUpdatesStartupInfo(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	snap := newSnapshot(id, time.Time{}, "5.10")
	snap.StartupInfo.ClientInfo.Labels = []string{"linux", "prod"}
	ts, err := svc.WriteClientSnapshot(ctx, snap)
	require.NoError(t, err)

	startups, err := svc.ReadClientStartupInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, startups, 1)
	assert.True(t, ts.Equal(startups[0].Timestamp))
	assert.Equal(t, id, startups[0].ClientID)
	assert.Equal(t, []string{"linux", "prod"}, startups[0].ClientInfo.Labels)

	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	requireTimeEqual(t, ts, md.LastSnapshotTimestamp)
	requireTimeEqual(t, ts, md.StartupInfoTimestamp)

	read, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.True(t, ts.Equal(read.StartupInfo.Timestamp))
	assert.Equal(t, uint64(1234), read.StartupInfo.BootTime)

	// A startup info written on its own moves only the startup pointer.
	sts, err := svc.WriteClientStartupInfo(ctx, id, &fleet.StartupInfo{BootTime: 5678})
	require.NoError(t, err)
	require.True(t, sts.After(ts))

	startup, err := svc.ReadClientStartupInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(5678), startup.BootTime)
	read, err = svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1234), read.StartupInfo.BootTime)
}

func testIndependentPointers(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	appendAt(t, svc, &fleet.StartupInfo{ClientID: id, BootTime: 2}, at(2*time.Hour))

	// A batch of older snapshots does not take over the startup pointer.
	require.NoError(t, svc.WriteClientSnapshotHistory(ctx, []*fleet.ClientSnapshot{
		newSnapshot(id, at(time.Hour), "1"),
	}))

	startup, err := svc.ReadClientStartupInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), startup.BootTime)
	snap, err := svc.ReadClientSnapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1", snap.Kernel)

	startups, err := svc.ReadClientStartupInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, micros(at(2*time.Hour), at(time.Hour)), timestamps(startups))

	info, err := svc.ReadClientFullInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "1", info.LastSnapshot.Kernel)
	assert.Equal(t, uint64(2), info.LastStartupInfo.BootTime)
}

func testCrashInfo(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	crash, err := svc.ReadClientCrashInfo(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, crash)

	in := &fleet.ClientCrash{
		ClientID:     id,
		Timestamp:    at(time.Hour),
		SessionID:    "aff4:/flows/F:1234",
		CrashType:    "Client Crash",
		CrashMessage: "Client killed during transaction",
		Backtrace:    "goroutine 1 [running]",
		NannyStatus:  "Nanny is OK",
	}
	appendAt(t, svc, in, in.Timestamp)

	crash, err = svc.ReadClientCrashInfo(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, crash)
	assert.True(t, in.Timestamp.Equal(crash.Timestamp))
	crash.Timestamp = in.Timestamp
	assert.Equal(t, in, crash)

	// Generic access returns the same record.
	rec, err := svc.ReadLatestClientRecord(ctx, id, fleet.RecordKindCrash)
	require.NoError(t, err)
	assert.Equal(t, fleet.RecordKindCrash, rec.Kind())
	recs, err := svc.ReadClientRecordHistory(ctx, id, fleet.RecordKindCrash, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func testMultiReadClientSnapshot(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	withSnap, without, unknown := clientID(1), clientID(2), clientID(3)
	registerClient(t, svc, withSnap)
	registerClient(t, svc, without)

	_, err := svc.WriteClientSnapshot(ctx, newSnapshot(withSnap, at(time.Hour), "1"))
	require.NoError(t, err)

	snaps, err := svc.MultiReadClientSnapshot(ctx, []string{withSnap, without, unknown})
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	require.NotNil(t, snaps[withSnap])
	assert.Equal(t, "1", snaps[withSnap].Kernel)
	assert.Nil(t, snaps[without])
	assert.Nil(t, snaps[unknown])
}

func testRewriteAppendsHistory(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	snap := newSnapshot(id, time.Time{}, "12.3")
	snap.StartupInfo.BootTime = 123
	_, err := svc.WriteClientSnapshot(ctx, snap)
	require.NoError(t, err)

	// A snapshot that was read back carries its timestamp. Writing it again
	// appends to the history instead of replacing the stored entry.
	for i, kernel := range []string{"12.4", "12.5"} {
		read, err := svc.ReadClientSnapshot(ctx, id)
		require.NoError(t, err)
		require.False(t, read.Timestamp.IsZero())
		read.Kernel = kernel
		read.StartupInfo.BootTime = uint64(124 + i)
		ts, err := svc.WriteClientSnapshot(ctx, read)
		require.NoError(t, err)
		assert.True(t, ts.After(read.Timestamp), "%s not after %s", ts, read.Timestamp)
	}

	history, err := svc.ReadClientSnapshotHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, []string{"12.5", "12.4", "12.3"}, snapshotKernels(history))

	startups, err := svc.ReadClientStartupInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	require.Len(t, startups, 3)
	assert.Equal(t, uint64(125), startups[0].BootTime)
	assert.Equal(t, uint64(123), startups[2].BootTime)

	// The same crash written three times is three history entries.
	crash := &fleet.ClientCrash{ClientID: id, Timestamp: at(time.Hour), CrashMessage: "boom"}
	var written []time.Time
	for i := 0; i < 3; i++ {
		ts, err := svc.WriteClientCrashInfo(ctx, crash)
		require.NoError(t, err)
		written = append(written, ts)
	}
	assert.True(t, at(time.Hour).Equal(crash.Timestamp))
	crashes, err := svc.ReadClientCrashInfoHistory(ctx, id, fleet.TimeRange{})
	require.NoError(t, err)
	assert.Equal(t, micros(written[2], written[1], written[0]), timestamps(crashes))
}

func testSubMicrosecondBounds(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{LastPing: ptr.Time(subMicro)}))

	ts := appendAt(t, svc, &fleet.ClientCrash{ClientID: id, CrashMessage: "boom"}, subMicro)
	assert.True(t, fleet.TruncateTimestamp(subMicro).Equal(ts))

	for _, tr := range []fleet.TimeRange{
		{From: &subMicro, To: &subMicro},
		{From: &subMicro},
		{To: &subMicro},
	} {
		crashes, err := svc.ReadClientCrashInfoHistory(ctx, id, tr)
		require.NoError(t, err)
		assert.Len(t, crashes, 1)
	}

	infos, err := svc.MultiReadClientFullInfo(ctx, []string{id}, &subMicro)
	require.NoError(t, err)
	assert.Contains(t, infos, id)

	infos, err = svc.MultiReadClientFullInfo(ctx, []string{id}, ptr.Time(subMicro.Add(time.Microsecond)))
	require.NoError(t, err)
	assert.NotContains(t, infos, id)
}
