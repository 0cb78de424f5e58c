package datastoretest

import (
	"context"
	"testing"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/fleetdm/clientstore/server/service"
	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKeywords(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	c1, c2, c3 := clientID(1), clientID(2), clientID(3)
	for _, id := range []string{c1, c2, c3} {
		registerClient(t, svc, id)
	}

	require.NoError(t, svc.AddClientKeywords(ctx, c1, []string{"linux", "host-1.example.com"}))
	require.NoError(t, svc.AddClientKeywords(ctx, c2, []string{"linux", "windows", "linux"}))
	require.NoError(t, svc.AddClientKeywords(ctx, c3, nil))

	res, err := svc.ListClientsForKeywords(ctx, []string{"linux", "windows", "host-1.example.com", "macos"}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"linux":              {c1, c2},
		"windows":            {c2},
		"host-1.example.com": {c1},
		"macos":              {},
	}, res)

	require.NoError(t, svc.RemoveClientKeyword(ctx, c1, "linux"))
	// Removing an association that does not exist is not an error.
	require.NoError(t, svc.RemoveClientKeyword(ctx, c1, "linux"))
	require.NoError(t, svc.RemoveClientKeyword(ctx, c3, "linux"))
	require.NoError(t, svc.RemoveClientKeyword(ctx, clientID(99), "linux"))

	res, err = svc.ListClientsForKeywords(ctx, []string{"linux"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{c2}, res["linux"])

	err = svc.AddClientKeywords(ctx, clientID(99), []string{"linux"})
	assert.True(t, fleet.IsUnknownClient(err), "%v", err)

	res, err = svc.ListClientsForKeywords(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func testKeywordsStartTime(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	mockClock := clock.NewMockClock()
	svc := service.NewService(ds, log.NewNopLogger(), mockClock)
	c1, c2 := clientID(1), clientID(2)
	registerClient(t, svc, c1)
	registerClient(t, svc, c2)

	require.NoError(t, svc.AddClientKeywords(ctx, c1, []string{"foo"}))
	first := fleet.TruncateTimestamp(mockClock.Now())

	mockClock.AddTime(time.Hour)
	require.NoError(t, svc.AddClientKeywords(ctx, c2, []string{"foo"}))
	second := fleet.TruncateTimestamp(mockClock.Now())

	cases := []struct {
		name      string
		startTime *time.Time
		expected  []string
	}{
		{"no cutoff", nil, []string{c1, c2}},
		{"cutoff at first association", &first, []string{c1, c2}},
		{"cutoff between", ptr.Time(first.Add(time.Minute)), []string{c2}},
		{"cutoff at second association", &second, []string{c2}},
		{"cutoff within the second association's microsecond", ptr.Time(second.Add(time.Nanosecond)), []string{c2}},
		{"cutoff after everything", ptr.Time(second.Add(time.Microsecond)), []string{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			res, err := svc.ListClientsForKeywords(ctx, []string{"foo"}, c.startTime)
			require.NoError(t, err)
			assert.Equal(t, c.expected, res["foo"])
		})
	}

	// Re-adding refreshes the association time.
	mockClock.AddTime(time.Hour)
	require.NoError(t, svc.AddClientKeywords(ctx, c1, []string{"foo"}))
	res, err := svc.ListClientsForKeywords(ctx, []string{"foo"}, ptr.Time(second.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, []string{c1}, res["foo"])

	// Move the clock to 500ns past a whole microsecond. An association made
	// then is found from that instant, and from an earlier instant within the
	// same microsecond.
	mockClock.AddTime(time.Hour + time.Duration(1500-mockClock.Now().Nanosecond()%1000))
	addedAt := mockClock.Now()
	require.NoError(t, svc.AddClientKeywords(ctx, c2, []string{"bar"}))
	for _, start := range []time.Time{addedAt, addedAt.Add(-200 * time.Nanosecond)} {
		res, err := svc.ListClientsForKeywords(ctx, []string{"bar"}, &start)
		require.NoError(t, err)
		assert.Equal(t, []string{c2}, res["bar"], "start time %s", start)
	}
}

func testKeywordsUnicode(t *testing.T, ds fleet.Datastore) {
	ctx := context.Background()
	svc := newService(ds)
	id := clientID(1)
	registerClient(t, svc, id)

	nfc := "caf\u00e9"
	nfd := "cafe\u0301"
	fromBytes := string([]byte{0x63, 0x61, 0x66, 0xc3, 0xa9})

	require.NoError(t, svc.AddClientKeywords(ctx, id, []string{nfd, "測試"}))

	res, err := svc.ListClientsForKeywords(ctx, []string{nfc, nfd, fromBytes, "測試"}, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, []string{id}, res[nfc])
	assert.Equal(t, []string{id}, res[nfd])
	assert.Equal(t, []string{id}, res[fromBytes])
	assert.Equal(t, []string{id}, res["測試"])

	require.NoError(t, svc.RemoveClientKeyword(ctx, id, nfc))
	res, err = svc.ListClientsForKeywords(ctx, []string{nfd}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{}, res[nfd])
}
