package datastoretest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMetadataRoundTrip(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)

	ip, err := fleet.NewNetworkAddress("8.8.8.8")
	require.NoError(t, err)

	update := fleet.ClientMetadataUpdate{
		Certificate:       []byte("-----BEGIN CERTIFICATE-----"),
		FleetspeakEnabled: ptr.Bool(true),
		FirstSeen:         ptr.Time(at(0)),
		LastPing:          ptr.Time(at(time.Hour + 123456789*time.Nanosecond)),
		LastClock:         ptr.Time(at(2 * time.Hour)),
		LastForeman:       ptr.Time(at(3 * time.Hour)),
		LastIP:            ip,
	}
	require.NoError(t, svc.WriteClientMetadata(ctx, id, update))

	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, md.ClientID)
	assert.Equal(t, update.Certificate, md.Certificate)
	assert.True(t, md.FleetspeakEnabled)
	requireTimeEqual(t, at(0), md.FirstSeen)
	// Sub-second precision is kept down to the microsecond.
	requireTimeEqual(t, at(time.Hour+123456*time.Microsecond), md.Ping)
	requireTimeEqual(t, at(2*time.Hour), md.Clock)
	requireTimeEqual(t, at(3*time.Hour), md.LastForemanTime)
	require.NotNil(t, md.IP)
	assert.True(t, ip.Equal(md.IP))
	assert.Equal(t, "8.8.8.8", md.IP.String())
	assert.Nil(t, md.LastSnapshotTimestamp)
	assert.Nil(t, md.StartupInfoTimestamp)
	assert.Nil(t, md.LastCrashTimestamp)
}

func testMetadataPartialMerge(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)

	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{
		Certificate:       []byte("cert"),
		FleetspeakEnabled: ptr.Bool(true),
		FirstSeen:         ptr.Time(at(0)),
	}))
	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{
		LastPing: ptr.Time(at(time.Minute)),
	}))
	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{
		FleetspeakEnabled: ptr.Bool(false),
		LastPing:          ptr.Time(at(2 * time.Minute)),
	}))

	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("cert"), md.Certificate)
	assert.False(t, md.FleetspeakEnabled)
	requireTimeEqual(t, at(0), md.FirstSeen)
	requireTimeEqual(t, at(2*time.Minute), md.Ping)
	assert.Nil(t, md.Clock)
	assert.Nil(t, md.IP)

	// An empty update registers nothing new but still succeeds.
	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{}))
	md2, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, md.Certificate, md2.Certificate)
	requireTimeEqual(t, at(2*time.Minute), md2.Ping)
}

func testMetadataUnknownClient(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)

	_, err := svc.ReadClientMetadata(ctx, clientID(42))
	require.Error(t, err)
	assert.True(t, fleet.IsUnknownClient(err))
	assert.True(t, fleet.IsNotFound(err))

	registerClient(t, svc, clientID(1))
	mds, err := svc.MultiReadClientMetadata(ctx, []string{clientID(1), clientID(42)})
	require.NoError(t, err)
	require.Len(t, mds, 1)
	assert.Contains(t, mds, clientID(1))
}

func testMalformedClientIDs(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)

	for _, id := range []string{"", "C.", "C.123", "C.FC413187FEFA1DCF", "c.fc413187fefa1dcf", "C.fc413187fefa1dcf0", "X.fc413187fefa1dcf"} {
		var mce *fleet.MalformedClientIDError

		err := svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{})
		require.True(t, errors.As(err, &mce), "write metadata %q: %v", id, err)

		_, err = svc.ReadClientMetadata(ctx, id)
		require.True(t, errors.As(err, &mce), "read metadata %q: %v", id, err)

		_, err = svc.MultiReadClientMetadata(ctx, []string{clientID(1), id})
		require.True(t, errors.As(err, &mce), "multi read metadata %q: %v", id, err)

		_, err = svc.WriteClientSnapshot(ctx, newSnapshot(id, time.Time{}, "1.0"))
		require.True(t, errors.As(err, &mce), "write snapshot %q: %v", id, err)

		err = svc.AddClientKeywords(ctx, id, []string{"foo"})
		require.True(t, errors.As(err, &mce), "add keywords %q: %v", id, err)

		err = svc.AddClientLabels(ctx, id, "owner", []string{"foo"})
		require.True(t, errors.As(err, &mce), "add labels %q: %v", id, err)

		_, err = svc.ReadClientFullInfo(ctx, id)
		require.True(t, errors.As(err, &mce), "read full info %q: %v", id, err)
	}

	n, err := svc.CountClients(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testStructuredAddress(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)

	err := svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{
		LastIP: &fleet.NetworkAddress{Family: fleet.AddressFamilyINET, PackedBytes: []byte("8.8.8.8")},
	})
	var tme *fleet.TypeMismatchError
	require.True(t, errors.As(err, &tme), "%v", err)
	assert.Equal(t, "ip", tme.Field)

	// Nothing was written.
	_, err = svc.ReadClientMetadata(ctx, id)
	require.True(t, fleet.IsUnknownClient(err))

	ip6, err := fleet.NewNetworkAddress("2001:db8::1")
	require.NoError(t, err)
	require.NoError(t, svc.WriteClientMetadata(ctx, id, fleet.ClientMetadataUpdate{LastIP: ip6}))
	md, err := svc.ReadClientMetadata(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fleet.AddressFamilyINET6, md.IP.Family)
	assert.Equal(t, "2001:db8::1", md.IP.String())
}

func testListAllClientIDs(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)

	var expected []string
	for i := 10; i > 0; i-- {
		registerClient(t, svc, clientID(i))
		expected = append(expected, clientID(i))
	}
	sort.Strings(expected)

	n, err := svc.CountClients(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	collect := func(batchSize int) []string {
		var ids []string
		for id, err := range svc.ListAllClientIDs(ctx, batchSize) {
			require.NoError(t, err)
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	assert.Equal(t, expected, collect(0))
	assert.Equal(t, expected, collect(2))
	assert.Equal(t, expected, collect(3))
	assert.Equal(t, expected, collect(10))
	assert.Equal(t, expected, collect(100))

	// Stopping early is allowed.
	var seen int
	for _, err := range svc.ListAllClientIDs(ctx, 2) {
		require.NoError(t, err)
		seen++
		if seen == 3 {
			break
		}
	}
	assert.Equal(t, 3, seen)
}
