package fleet

import (
	"bytes"
	"regexp"
	"sort"
	"time"
)

// DefaultIterationBatchSize is the page size used when iterating over the
// whole fleet and the caller did not request a specific size.
const DefaultIterationBatchSize = 5000

var clientIDRegexp = regexp.MustCompile(`^C\.[0-9a-f]{16}$`)

// ValidateClientID returns a *MalformedClientIDError if id is not of the
// form "C." followed by 16 lowercase hexadecimal digits.
func ValidateClientID(id string) error {
	if !clientIDRegexp.MatchString(id) {
		return &MalformedClientIDError{ClientID: id}
	}
	return nil
}

// ClientMetadata is the single mutable row kept for every registered client.
// The three "latest" timestamps are pointers into the client's histories and
// are only ever moved by appends to those histories.
type ClientMetadata struct {
	ClientID          string          `json:"client_id" db:"client_id"`
	Certificate       []byte          `json:"certificate,omitempty" db:"certificate"`
	FleetspeakEnabled bool            `json:"fleetspeak_enabled" db:"fleetspeak_enabled"`
	FirstSeen         *time.Time      `json:"first_seen,omitempty" db:"first_seen"`
	Ping              *time.Time      `json:"ping,omitempty" db:"last_ping"`
	Clock             *time.Time      `json:"clock,omitempty" db:"last_clock"`
	LastForemanTime   *time.Time      `json:"last_foreman_time,omitempty" db:"last_foreman"`
	IP                *NetworkAddress `json:"ip,omitempty" db:"-"`

	LastSnapshotTimestamp *time.Time `json:"last_snapshot_timestamp,omitempty" db:"last_snapshot_timestamp"`
	StartupInfoTimestamp  *time.Time `json:"startup_info_timestamp,omitempty" db:"last_startup_timestamp"`
	LastCrashTimestamp    *time.Time `json:"last_crash_timestamp,omitempty" db:"last_crash_timestamp"`
}

// LatestTimestamp returns the latest pointer kept for records of kind k.
func (m *ClientMetadata) LatestTimestamp(k RecordKind) *time.Time {
	switch k {
	case RecordKindSnapshot:
		return m.LastSnapshotTimestamp
	case RecordKindStartupInfo:
		return m.StartupInfoTimestamp
	case RecordKindCrash:
		return m.LastCrashTimestamp
	}
	return nil
}

// SetLatestTimestamp moves the latest pointer of kind k to ts.
func (m *ClientMetadata) SetLatestTimestamp(k RecordKind, ts time.Time) {
	switch k {
	case RecordKindSnapshot:
		m.LastSnapshotTimestamp = &ts
	case RecordKindStartupInfo:
		m.StartupInfoTimestamp = &ts
	case RecordKindCrash:
		m.LastCrashTimestamp = &ts
	}
}

// Merge applies the fields set in u to m.
func (m *ClientMetadata) Merge(u ClientMetadataUpdate) {
	if u.Certificate != nil {
		m.Certificate = bytes.Clone(u.Certificate)
	}
	if u.FleetspeakEnabled != nil {
		m.FleetspeakEnabled = *u.FleetspeakEnabled
	}
	if u.FirstSeen != nil {
		m.FirstSeen = copyTime(u.FirstSeen)
	}
	if u.LastPing != nil {
		m.Ping = copyTime(u.LastPing)
	}
	if u.LastClock != nil {
		m.Clock = copyTime(u.LastClock)
	}
	if u.LastForeman != nil {
		m.LastForemanTime = copyTime(u.LastForeman)
	}
	if u.LastIP != nil {
		m.IP = u.LastIP.Clone()
	}
}

func (m *ClientMetadata) Clone() *ClientMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Certificate = bytes.Clone(m.Certificate)
	c.FirstSeen = copyTime(m.FirstSeen)
	c.Ping = copyTime(m.Ping)
	c.Clock = copyTime(m.Clock)
	c.LastForemanTime = copyTime(m.LastForemanTime)
	c.IP = m.IP.Clone()
	c.LastSnapshotTimestamp = copyTime(m.LastSnapshotTimestamp)
	c.StartupInfoTimestamp = copyTime(m.StartupInfoTimestamp)
	c.LastCrashTimestamp = copyTime(m.LastCrashTimestamp)
	return &c
}

// ClientMetadataUpdate is a partial write of a client's metadata. Nil fields
// are left untouched.
type ClientMetadataUpdate struct {
	Certificate       []byte
	FleetspeakEnabled *bool
	FirstSeen         *time.Time
	LastPing          *time.Time
	LastClock         *time.Time
	LastForeman       *time.Time
	LastIP            *NetworkAddress
}

// TruncateTimes rounds every time field down to the microsecond precision
// kept by the datastores.
func (u *ClientMetadataUpdate) TruncateTimes() {
	for _, t := range []**time.Time{&u.FirstSeen, &u.LastPing, &u.LastClock, &u.LastForeman} {
		if *t != nil {
			v := TruncateTimestamp(**t)
			*t = &v
		}
	}
}

// ClientLabel is an owner-scoped tag attached to a client.
type ClientLabel struct {
	Owner string `json:"owner" db:"owner"`
	Name  string `json:"name" db:"name"`
}

// SortClientLabels sorts labels by owner, then name.
func SortClientLabels(labels []ClientLabel) {
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Owner != labels[j].Owner {
			return labels[i].Owner < labels[j].Owner
		}
		return labels[i].Name < labels[j].Name
	})
}

// ClientFullInfo is the read-only aggregate of everything known about a
// client. Any of the sub-records other than Metadata may be nil.
type ClientFullInfo struct {
	Metadata        *ClientMetadata `json:"metadata"`
	LastSnapshot    *ClientSnapshot `json:"last_snapshot,omitempty"`
	LastStartupInfo *StartupInfo    `json:"last_startup_info,omitempty"`
	Labels          []ClientLabel   `json:"labels"`
}

// TimeRange restricts a history read to From <= ts <= To. A nil bound is
// unbounded on that side.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether ts falls within the range, both ends inclusive.
func (r TimeRange) Contains(ts time.Time) bool {
	if r.From != nil && ts.Before(*r.From) {
		return false
	}
	if r.To != nil && ts.After(*r.To) {
		return false
	}
	return true
}

// TruncateTimestamp returns t in UTC rounded down to microseconds.
func TruncateTimestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Normalize truncates the bounds of r to the microsecond precision of stored
// timestamps, the same way written timestamps are truncated, so that a record
// written at instant T is within a bound of exactly T.
func (r TimeRange) Normalize() TimeRange {
	var n TimeRange
	if r.From != nil {
		from := TruncateTimestamp(*r.From)
		n.From = &from
	}
	if r.To != nil {
		to := TruncateTimestamp(*r.To)
		n.To = &to
	}
	return n
}
