package fleet

import (
	"context"
	"time"

	"github.com/fleetdm/clientstore/server/health"
)

// Datastore is the storage contract satisfied by every client store backend.
// Implementations do not validate client ids or batch preconditions, that is
// the job of the Service. Every mutating call is atomic.
type Datastore interface {
	health.Checker

	///////////////////////////////////////////////////////////////////////////////
	// ClientMetadataStore

	// WriteClientMetadata creates the metadata row of the client if it does not
	// exist, and merges the set fields of update into it.
	WriteClientMetadata(ctx context.Context, clientID string, update ClientMetadataUpdate) error
	// MultiReadClientMetadata returns the metadata rows of the given clients.
	// Clients that are not registered are omitted from the result.
	MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*ClientMetadata, error)
	// ListClientIDs returns at most limit client ids greater than afterID, in
	// ascending order. An empty afterID starts from the beginning.
	ListClientIDs(ctx context.Context, afterID string, limit int) ([]string, error)
	CountClients(ctx context.Context) (int, error)

	///////////////////////////////////////////////////////////////////////////////
	// ClientRecordStore

	// AppendClientRecord appends rec to the history of its kind. A zero
	// timestamp is assigned by the store so that it is strictly greater than
	// the current latest record of that kind. The effective timestamp is
	// returned. If the client is not registered an *UnknownClientError is
	// returned.
	AppendClientRecord(ctx context.Context, clientID string, rec ClientRecord) (time.Time, error)
	// AppendClientRecords appends all recs in one unit. Every record must carry
	// an explicit timestamp.
	AppendClientRecords(ctx context.Context, clientID string, recs []ClientRecord) error
	// MultiReadLatestClientRecords returns the record pointed to by the latest
	// pointer of the given kind for each client that has one.
	MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind RecordKind) (map[string]ClientRecord, error)
	// ReadClientRecordHistory returns the records of the given kind within tr,
	// newest first.
	ReadClientRecordHistory(ctx context.Context, clientID string, kind RecordKind, tr TimeRange) ([]ClientRecord, error)

	///////////////////////////////////////////////////////////////////////////////
	// KeywordStore

	// AddClientKeywords associates the canonical keywords with the client at
	// ts, refreshing the timestamp of existing associations.
	AddClientKeywords(ctx context.Context, clientID string, keywords []string, ts time.Time) error
	RemoveClientKeyword(ctx context.Context, clientID string, keyword string) error
	// ListClientsForKeywords returns, per canonical keyword, the sorted ids of
	// the clients associated with it at or after startTime (if set).
	ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error)

	///////////////////////////////////////////////////////////////////////////////
	// LabelStore

	AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error
	RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error
	// MultiReadClientLabels returns the labels of each client, sorted by owner
	// and name. Clients without labels are omitted.
	MultiReadClientLabels(ctx context.Context, clientIDs []string) (map[string][]ClientLabel, error)
	// ReadAllClientLabels returns the distinct labels used across the fleet.
	ReadAllClientLabels(ctx context.Context) ([]ClientLabel, error)
}

// MigrationStatus is the state of the schema of a datastore compared to the
// migrations known to the running binary.
type MigrationStatus struct {
	// StatusCode holds the code for the migration status.
	//
	// If StatusCode is NoMigrationsCompleted or AllMigrationsCompleted
	// then all other fields are empty.
	//
	// If StatusCode is SomeMigrationsCompleted, then missing migrations
	// are available in Missing.
	//
	// If StatusCode is UnknownMigrations, then unknown migrations
	// are available in Unknown.
	StatusCode MigrationStatusCode `json:"status_code"`
	// Missing holds the migrations known to the binary but not applied.
	Missing []int64 `json:"missing"`
	// Unknown holds the applied migrations the binary does not know about.
	Unknown []int64 `json:"unknown"`
}

type MigrationStatusCode int

const (
	// NoMigrationsCompleted indicates the database has no migrations installed.
	NoMigrationsCompleted MigrationStatusCode = iota
	// SomeMigrationsCompleted indicates some (not all) migrations are missing.
	SomeMigrationsCompleted
	// AllMigrationsCompleted means all migrations have been installed successfully.
	AllMigrationsCompleted
	// UnknownMigrations means some unidentified migrations were detected on the database.
	UnknownMigrations
)
