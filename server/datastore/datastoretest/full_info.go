package datastoretest

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFullInfo(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	bare, full := clientID(1), clientID(2)
	registerClient(t, svc, bare)
	registerClient(t, svc, full)

	info, err := svc.ReadClientFullInfo(ctx, bare)
	require.NoError(t, err)
	require.NotNil(t, info.Metadata)
	assert.Equal(t, bare, info.Metadata.ClientID)
	assert.Nil(t, info.LastSnapshot)
	assert.Nil(t, info.LastStartupInfo)
	assert.Empty(t, info.Labels)

	appendAt(t, svc, newSnapshot(full, time.Time{}, "6.1"), at(time.Hour))
	appendAt(t, svc, &fleet.StartupInfo{ClientID: full, BootTime: 99}, at(2*time.Hour))
	require.NoError(t, svc.AddClientLabels(ctx, full, "admin", []string{"prod"}))

	info, err = svc.ReadClientFullInfo(ctx, full)
	require.NoError(t, err)
	require.NotNil(t, info.LastSnapshot)
	assert.Equal(t, "6.1", info.LastSnapshot.Kernel)
	require.NotNil(t, info.LastStartupInfo)
	assert.Equal(t, uint64(99), info.LastStartupInfo.BootTime)
	assert.Equal(t, []fleet.ClientLabel{{Owner: "admin", Name: "prod"}}, info.Labels)
	requireTimeEqual(t, at(time.Hour), info.Metadata.LastSnapshotTimestamp)
	requireTimeEqual(t, at(2*time.Hour), info.Metadata.StartupInfoTimestamp)

	_, err = svc.ReadClientFullInfo(ctx, clientID(3))
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	infos, err := svc.MultiReadClientFullInfo(ctx, []string{bare, full, clientID(3)}, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Nil(t, infos[bare].LastSnapshot)
	assert.Equal(t, "6.1", infos[full].LastSnapshot.Kernel)
}

func testFullInfoPingCutoff(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	early, exact, late, never := clientID(1), clientID(2), clientID(3), clientID(4)
	cutoff := at(time.Hour)

	for id, ping := range map[string]*time.Time{
		early: ptr.Time(cutoff.Add(-time.Microsecond)),
		exact: ptr.Time(cutoff),
		late:  ptr.Time(cutoff.Add(time.Minute)),
		never: nil,
	} {
		require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{LastPing: ping}))
	}

	ids := []string{early, exact, late, never}
	infos, err := svc.MultiReadClientFullInfo(ctx, ids, &cutoff)
	require.NoError(t, err)
	var got []string
	for id := range infos {
		got = append(got, id)
	}
	sort.Strings(got)
	assert.Equal(t, []string{exact, late}, got)

	infos, err = svc.MultiReadClientFullInfo(ctx, ids, nil)
	require.NoError(t, err)
	assert.Len(t, infos, 4)
}

func testIterateAllClientsFullInfo(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)

	for i := 1; i <= 10; i++ {
		id := clientID(i)
		registerClient(t, svc, id)
		require.NoError(t, svc.AddClientLabels(ctx, id, "admin", []string{"all"}))
		if i%2 == 0 {
			appendAt(t, svc, newSnapshot(id, time.Time{}, "k"), at(time.Duration(i)*time.Hour))
		}
	}

	collect := func(batchSize int) map[string]*fleet.ClientFullInfo {
		res := make(map[string]*fleet.ClientFullInfo)
		for info, err := range svc.IterateAllClientsFullInfo(ctx, batchSize) {
			require.NoError(t, err)
			require.NotContains(t, res, info.Metadata.ClientID)
			res[info.Metadata.ClientID] = info
		}
		return res
	}

	all := collect(0)
	require.Len(t, all, 10)
	for _, batchSize := range []int{1, 2, 3, 10, 11} {
		paged := collect(batchSize)
		require.Len(t, paged, 10, "batch size %d", batchSize)
		for id, info := range all {
			require.Contains(t, paged, id)
			assert.Equal(t, info.LastSnapshot != nil, paged[id].LastSnapshot != nil)
			assert.Equal(t, info.Labels, paged[id].Labels)
		}
	}
	assert.NotNil(t, all[clientID(2)].LastSnapshot)
	assert.Nil(t, all[clientID(3)].LastSnapshot)
}

func testIterateAllClientSnapshots(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)

	var expected []string
	for i := 1; i <= 10; i++ {
		id := clientID(i)
		registerClient(t, svc, id)
		if i%3 == 0 {
			appendAt(t, svc, newSnapshot(id, time.Time{}, "k"), at(time.Hour))
			expected = append(expected, id)
		}
	}

	for _, batchSize := range []int{0, 2, 4} {
		var got []string
		for snap, err := range svc.IterateAllClientSnapshots(ctx, batchSize) {
			require.NoError(t, err)
			got = append(got, snap.ClientID)
		}
		sort.Strings(got)
		assert.Equal(t, expected, got, "batch size %d", batchSize)
	}
}
