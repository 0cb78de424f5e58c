package fleet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordKindString(t *testing.T) {
	for _, k := range RecordKinds {
		parsed, err := ParseRecordKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)

		rec, err := NewClientRecord(k)
		require.NoError(t, err)
		assert.Equal(t, k, rec.Kind())
	}
	assert.Equal(t, "RecordKind(9)", RecordKind(9).String())

	_, err := ParseRecordKind("kernel")
	require.Error(t, err)
	_, err = NewClientRecord(RecordKind(0))
	require.Error(t, err)
}

func TestClientSnapshotEmbedsStartupInfo(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := &ClientSnapshot{Kernel: "6.1.0"}
	snap.SetRecordClientID("C.0000000000000001")
	snap.SetRecordTimestamp(ts)

	assert.Equal(t, "C.0000000000000001", snap.StartupInfo.ClientID)
	assert.Equal(t, ts, snap.StartupInfo.Timestamp)
	assert.Equal(t, ts, snap.RecordTimestamp())
}

func TestClientSnapshotClone(t *testing.T) {
	addr, err := NewNetworkAddress("fe80::1")
	require.NoError(t, err)
	snap := &ClientSnapshot{
		ClientID:      "C.0000000000000001",
		KnowledgeBase: KnowledgeBase{Users: []string{"alice"}},
		Interfaces: []NetworkInterface{
			{Name: "eth0", Addresses: []NetworkAddress{*addr}},
		},
		Volumes: []Volume{{Name: "/", SizeBytes: 10}},
		StartupInfo: StartupInfo{
			ClientInfo: ClientInformation{Labels: []string{"linux"}},
		},
	}

	clone := snap.CloneRecord().(*ClientSnapshot)
	require.Equal(t, snap, clone)

	clone.KnowledgeBase.Users[0] = "bob"
	clone.Interfaces[0].Addresses[0].PackedBytes[0] = 0
	clone.Volumes[0].SizeBytes = 20
	clone.StartupInfo.ClientInfo.Labels[0] = "windows"

	assert.Equal(t, "alice", snap.KnowledgeBase.Users[0])
	assert.Equal(t, "fe80::1", snap.Interfaces[0].Addresses[0].String())
	assert.EqualValues(t, 10, snap.Volumes[0].SizeBytes)
	assert.Equal(t, "linux", snap.StartupInfo.ClientInfo.Labels[0])

	var nilSnap *ClientSnapshot
	assert.Nil(t, nilSnap.Clone())
}

func TestClientCrashClone(t *testing.T) {
	crash := &ClientCrash{ClientID: "C.0000000000000001", CrashMessage: "oom"}
	clone := crash.CloneRecord()
	clone.SetRecordClientID("C.0000000000000002")
	assert.Equal(t, "C.0000000000000001", crash.ClientID)
	assert.Equal(t, RecordKindCrash, clone.Kind())
}

func TestNextTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 1500, time.UTC)
	truncated := TruncateTimestamp(now)

	none := func(RecordKind) *time.Time { return nil }
	assert.True(t, truncated.Equal(NextTimestamp(now, RecordKindCrash, none)))

	// a snapshot is also placed after the latest startup info
	pointers := map[RecordKind]*time.Time{
		RecordKindStartupInfo: &truncated,
	}
	latest := func(k RecordKind) *time.Time { return pointers[k] }
	assert.True(t, truncated.Add(time.Microsecond).Equal(NextTimestamp(now, RecordKindSnapshot, latest)))
	assert.True(t, truncated.Add(time.Microsecond).Equal(NextTimestamp(now, RecordKindStartupInfo, latest)))
	assert.True(t, truncated.Equal(NextTimestamp(now, RecordKindCrash, latest)))
	assert.Equal(t, []RecordKind{RecordKindSnapshot, RecordKindStartupInfo}, RecordKindSnapshot.WrittenKinds())
}
