package fleet

import (
	"testing"
	"time"

	"github.com/fleetdm/clientstore/server/ptr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateClientID(t *testing.T) {
	for _, id := range []string{"C.0000000000000000", "C.fc413187fefa1dcf", "C.ffffffffffffffff"} {
		assert.NoError(t, ValidateClientID(id), id)
	}
	for _, id := range []string{
		"",
		"C.",
		"C.fc413187fefa1dc",
		"C.fc413187fefa1dcf0",
		"C.FC413187FEFA1DCF",
		"c.fc413187fefa1dcf",
		"C.fc413187fefa1dcg",
		" C.fc413187fefa1dcf",
		"aff4:/C.fc413187fefa1dcf",
	} {
		err := ValidateClientID(id)
		var target *MalformedClientIDError
		require.ErrorAs(t, err, &target, id)
		assert.Equal(t, id, target.ClientID)
	}
}

func TestTimeRangeContains(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	from, to := base, base.Add(time.Hour)

	cases := []struct {
		name string
		tr   TimeRange
		ts   time.Time
		want bool
	}{
		{"unbounded", TimeRange{}, base, true},
		{"at from", TimeRange{From: &from, To: &to}, from, true},
		{"at to", TimeRange{From: &from, To: &to}, to, true},
		{"before from", TimeRange{From: &from}, from.Add(-time.Microsecond), false},
		{"after to", TimeRange{To: &to}, to.Add(time.Microsecond), false},
		{"inside", TimeRange{From: &from, To: &to}, from.Add(time.Minute), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.tr.Contains(c.ts))
		})
	}
}

func TestTimeRangeNormalize(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	n := TimeRange{}.Normalize()
	assert.Nil(t, n.From)
	assert.Nil(t, n.To)

	n = TimeRange{From: ptr.Time(base), To: ptr.Time(base)}.Normalize()
	assert.True(t, base.Equal(*n.From))
	assert.True(t, base.Equal(*n.To))

	n = TimeRange{From: ptr.Time(base.Add(1500 * time.Nanosecond)), To: ptr.Time(base.Add(2500 * time.Nanosecond))}.Normalize()
	assert.True(t, base.Add(time.Microsecond).Equal(*n.From))
	assert.True(t, base.Add(2*time.Microsecond).Equal(*n.To))

	// a timestamp written at a sub-microsecond instant is inside a range
	// bounded by that same instant
	at := base.Add(500 * time.Nanosecond)
	n = TimeRange{From: &at, To: &at}.Normalize()
	assert.True(t, n.Contains(TruncateTimestamp(at)))

	loc := time.FixedZone("UTC+2", 2*60*60)
	n = TimeRange{From: ptr.Time(base.In(loc))}.Normalize()
	assert.Equal(t, time.UTC, n.From.Location())
	assert.True(t, base.Equal(*n.From))
}

func TestTruncateTimestamp(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	ts := time.Date(2025, 3, 1, 7, 0, 0, 1999, loc)
	got := TruncateTimestamp(ts)
	assert.Equal(t, time.UTC, got.Location())
	assert.Equal(t, time.Date(2025, 3, 1, 12, 0, 0, 1000, time.UTC), got)
}

func TestClientMetadataMerge(t *testing.T) {
	first := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	md := &ClientMetadata{ClientID: "C.0000000000000001"}
	md.Merge(ClientMetadataUpdate{
		Certificate:       []byte("cert"),
		FleetspeakEnabled: ptr.Bool(true),
		FirstSeen:         &first,
	})
	assert.Equal(t, []byte("cert"), md.Certificate)
	assert.True(t, md.FleetspeakEnabled)
	require.NotNil(t, md.FirstSeen)
	assert.True(t, first.Equal(*md.FirstSeen))
	assert.Nil(t, md.Ping)

	ip, err := NewNetworkAddress("10.0.0.1")
	require.NoError(t, err)
	md.Merge(ClientMetadataUpdate{FleetspeakEnabled: ptr.Bool(false), LastIP: ip})
	assert.False(t, md.FleetspeakEnabled)
	assert.Equal(t, []byte("cert"), md.Certificate)
	assert.True(t, first.Equal(*md.FirstSeen))
	assert.Equal(t, "10.0.0.1", md.IP.String())

	// the update is copied, not aliased
	ip.PackedBytes[0] = 192
	first = first.Add(time.Hour)
	assert.Equal(t, "10.0.0.1", md.IP.String())
	assert.False(t, first.Equal(*md.FirstSeen))
}

func TestClientMetadataLatestTimestamps(t *testing.T) {
	md := &ClientMetadata{}
	for _, k := range RecordKinds {
		assert.Nil(t, md.LatestTimestamp(k))
	}
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	md.SetLatestTimestamp(RecordKindCrash, ts)
	assert.Nil(t, md.LatestTimestamp(RecordKindSnapshot))
	assert.Nil(t, md.LatestTimestamp(RecordKindStartupInfo))
	require.NotNil(t, md.LatestTimestamp(RecordKindCrash))
	assert.True(t, ts.Equal(*md.LatestTimestamp(RecordKindCrash)))

	clone := md.Clone()
	clone.SetLatestTimestamp(RecordKindCrash, ts.Add(time.Hour))
	assert.True(t, ts.Equal(*md.LatestTimestamp(RecordKindCrash)))
}

func TestSortClientLabels(t *testing.T) {
	labels := []ClientLabel{
		{Owner: "b", Name: "x"},
		{Owner: "a", Name: "z"},
		{Owner: "a", Name: "y"},
	}
	SortClientLabels(labels)
	assert.Equal(t, []ClientLabel{
		{Owner: "a", Name: "y"},
		{Owner: "a", Name: "z"},
		{Owner: "b", Name: "x"},
	}, labels)
}

func TestCanonicalKeyword(t *testing.T) {
	const (
		nfc = "caf\u00e9"
		nfd = "cafe\u0301"
	)
	assert.NotEqual(t, nfc, nfd)
	assert.Equal(t, nfc, CanonicalKeyword(nfc))
	assert.Equal(t, nfc, CanonicalKeyword(nfd))
	assert.Equal(t, nfc, CanonicalKeywordBytes([]byte(nfd)))
	assert.Equal(t, "\u6e2c\u8a66", CanonicalKeyword("\u6e2c\u8a66"))
	assert.Equal(t, "a\ufffdb", CanonicalKeyword("a\xffb"))
	assert.Equal(t, "", CanonicalKeyword(""))
}
