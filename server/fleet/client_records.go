package fleet

import (
	"fmt"
	"time"
)

// RecordKind identifies one of the per-client histories.
type RecordKind int

const (
	RecordKindSnapshot RecordKind = iota + 1
	RecordKindStartupInfo
	RecordKindCrash
)

// RecordKinds lists every kind of client history.
var RecordKinds = []RecordKind{RecordKindSnapshot, RecordKindStartupInfo, RecordKindCrash}

func (k RecordKind) String() string {
	switch k {
	case RecordKindSnapshot:
		return "snapshot"
	case RecordKindStartupInfo:
		return "startup_info"
	case RecordKindCrash:
		return "crash"
	}
	return fmt.Sprintf("RecordKind(%d)", int(k))
}

// WrittenKinds returns the histories a record of kind k is written to. A
// snapshot also writes its embedded startup info.
func (k RecordKind) WrittenKinds() []RecordKind {
	if k == RecordKindSnapshot {
		return []RecordKind{RecordKindSnapshot, RecordKindStartupInfo}
	}
	return []RecordKind{k}
}

// NextTimestamp returns now truncated to microseconds, moved forward if needed
// so that it is strictly after every latest pointer that a record of kind k
// would move.
func NextTimestamp(now time.Time, k RecordKind, latest func(RecordKind) *time.Time) time.Time {
	ts := TruncateTimestamp(now)
	for _, wk := range k.WrittenKinds() {
		if l := latest(wk); l != nil && !ts.After(*l) {
			ts = l.Add(time.Microsecond)
		}
	}
	return ts
}

// ParseRecordKind is the inverse of RecordKind.String.
func ParseRecordKind(s string) (RecordKind, error) {
	for _, k := range RecordKinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown record kind %q", s)
}

// NewClientRecord returns an empty record of kind k, suitable as a decoding
// target.
func NewClientRecord(k RecordKind) (ClientRecord, error) {
	switch k {
	case RecordKindSnapshot:
		return &ClientSnapshot{}, nil
	case RecordKindStartupInfo:
		return &StartupInfo{}, nil
	case RecordKindCrash:
		return &ClientCrash{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %d", int(k))
}

// ClientRecord is a timestamped entry of a client history.
type ClientRecord interface {
	Kind() RecordKind
	RecordClientID() string
	SetRecordClientID(string)
	RecordTimestamp() time.Time
	SetRecordTimestamp(time.Time)
	CloneRecord() ClientRecord
}

var (
	_ ClientRecord = (*ClientSnapshot)(nil)
	_ ClientRecord = (*StartupInfo)(nil)
	_ ClientRecord = (*ClientCrash)(nil)
)

// ClientSnapshot is a full capture of a client's state.
type ClientSnapshot struct {
	ClientID      string             `json:"client_id"`
	Timestamp     time.Time          `json:"timestamp"`
	Kernel        string             `json:"kernel,omitempty"`
	OSRelease     string             `json:"os_release,omitempty"`
	OSVersion     string             `json:"os_version,omitempty"`
	Arch          string             `json:"arch,omitempty"`
	MemorySize    uint64             `json:"memory_size,omitempty"`
	KnowledgeBase KnowledgeBase      `json:"knowledge_base"`
	Interfaces    []NetworkInterface `json:"interfaces,omitempty"`
	Volumes       []Volume           `json:"volumes,omitempty"`
	HardwareInfo  HardwareInfo       `json:"hardware_info"`
	StartupInfo   StartupInfo        `json:"startup_info"`
}

type KnowledgeBase struct {
	FQDN           string   `json:"fqdn,omitempty"`
	OS             string   `json:"os,omitempty"`
	OSMajorVersion uint32   `json:"os_major_version,omitempty"`
	OSMinorVersion uint32   `json:"os_minor_version,omitempty"`
	Users          []string `json:"users,omitempty"`
}

type NetworkInterface struct {
	Name       string           `json:"name"`
	MACAddress string           `json:"mac_address,omitempty"`
	Addresses  []NetworkAddress `json:"addresses,omitempty"`
}

type Volume struct {
	Name      string `json:"name"`
	SizeBytes uint64 `json:"size_bytes"`
}

type HardwareInfo struct {
	SerialNumber       string `json:"serial_number,omitempty"`
	SystemManufacturer string `json:"system_manufacturer,omitempty"`
	SystemProductName  string `json:"system_product_name,omitempty"`
}

func (s *ClientSnapshot) Kind() RecordKind           { return RecordKindSnapshot }
func (s *ClientSnapshot) RecordClientID() string     { return s.ClientID }
func (s *ClientSnapshot) RecordTimestamp() time.Time { return s.Timestamp }

// SetRecordClientID also sets the client id of the embedded startup info.
func (s *ClientSnapshot) SetRecordClientID(id string) {
	s.ClientID = id
	s.StartupInfo.ClientID = id
}

// SetRecordTimestamp also sets the timestamp of the embedded startup info,
// which is stored in the startup history alongside the snapshot.
func (s *ClientSnapshot) SetRecordTimestamp(ts time.Time) {
	s.Timestamp = ts
	s.StartupInfo.Timestamp = ts
}

func (s *ClientSnapshot) CloneRecord() ClientRecord { return s.Clone() }

func (s *ClientSnapshot) Clone() *ClientSnapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.KnowledgeBase.Users = append([]string(nil), s.KnowledgeBase.Users...)
	c.Volumes = append([]Volume(nil), s.Volumes...)
	if s.Interfaces != nil {
		c.Interfaces = make([]NetworkInterface, len(s.Interfaces))
		for i, iface := range s.Interfaces {
			c.Interfaces[i] = iface
			if iface.Addresses == nil {
				continue
			}
			c.Interfaces[i].Addresses = make([]NetworkAddress, len(iface.Addresses))
			for j, a := range iface.Addresses {
				c.Interfaces[i].Addresses[j] = *a.Clone()
			}
		}
	}
	c.StartupInfo = *s.StartupInfo.Clone()
	return &c
}

// StartupInfo is recorded every time a client boots. It is stored in its own
// history so it can be updated without rewriting the snapshot.
type StartupInfo struct {
	ClientID   string            `json:"client_id"`
	Timestamp  time.Time         `json:"timestamp"`
	BootTime   uint64            `json:"boot_time,omitempty"`
	ClientInfo ClientInformation `json:"client_info"`
}

type ClientInformation struct {
	ClientName    string   `json:"client_name,omitempty"`
	ClientVersion uint32   `json:"client_version,omitempty"`
	BuildTime     string   `json:"build_time,omitempty"`
	Labels        []string `json:"labels,omitempty"`
}

func (s *StartupInfo) Kind() RecordKind                { return RecordKindStartupInfo }
func (s *StartupInfo) RecordClientID() string          { return s.ClientID }
func (s *StartupInfo) SetRecordClientID(id string)     { s.ClientID = id }
func (s *StartupInfo) RecordTimestamp() time.Time      { return s.Timestamp }
func (s *StartupInfo) SetRecordTimestamp(ts time.Time) { s.Timestamp = ts }

func (s *StartupInfo) CloneRecord() ClientRecord { return s.Clone() }

func (s *StartupInfo) Clone() *StartupInfo {
	if s == nil {
		return nil
	}
	c := *s
	c.ClientInfo.Labels = append([]string(nil), s.ClientInfo.Labels...)
	return &c
}

// ClientCrash is a crash report sent by a client.
type ClientCrash struct {
	ClientID     string    `json:"client_id"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id,omitempty"`
	CrashType    string    `json:"crash_type,omitempty"`
	CrashMessage string    `json:"crash_message,omitempty"`
	Backtrace    string    `json:"backtrace,omitempty"`
	NannyStatus  string    `json:"nanny_status,omitempty"`
}

func (c *ClientCrash) Kind() RecordKind                { return RecordKindCrash }
func (c *ClientCrash) RecordClientID() string          { return c.ClientID }
func (c *ClientCrash) SetRecordClientID(id string)     { c.ClientID = id }
func (c *ClientCrash) RecordTimestamp() time.Time      { return c.Timestamp }
func (c *ClientCrash) SetRecordTimestamp(ts time.Time) { c.Timestamp = ts }

func (c *ClientCrash) CloneRecord() ClientRecord { return c.Clone() }

func (c *ClientCrash) Clone() *ClientCrash {
	if c == nil {
		return nil
	}
	cc := *c
	return &cc
}
