package fleet

import (
	"context"
	"iter"
	"time"
)

// Service is the validated surface of the client record store.
type Service interface {
	ClientMetadataService
	ClientRecordService
	ClientKeywordService
	ClientLabelService
	ClientFullInfoService
}

type ClientMetadataService interface {
	WriteClientMetadata(ctx context.Context, clientID string, update ClientMetadataUpdate) error
	// ReadClientMetadata returns an *UnknownClientError if the client has never
	// been written.
	ReadClientMetadata(ctx context.Context, clientID string) (*ClientMetadata, error)
	MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*ClientMetadata, error)
	// ListAllClientIDs iterates over the ids of every registered client,
	// fetching batchSize ids at a time.
	ListAllClientIDs(ctx context.Context, batchSize int) iter.Seq2[string, error]
	CountClients(ctx context.Context) (int, error)
}

type ClientRecordService interface {
	// AppendClientRecord appends rec to the history of clientID at ts, or at a
	// time assigned by the store if ts is nil, and returns the timestamp it
	// was stored at. The timestamp carried by rec itself is ignored.
	AppendClientRecord(ctx context.Context, clientID string, rec ClientRecord, ts *time.Time) (time.Time, error)
	// AppendClientRecords appends records of the given kind that all belong
	// to the same client and all carry an explicit timestamp. Either every
	// record is stored or none is.
	AppendClientRecords(ctx context.Context, kind RecordKind, recs []ClientRecord) error
	ReadLatestClientRecord(ctx context.Context, clientID string, kind RecordKind) (ClientRecord, error)
	MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind RecordKind) (map[string]ClientRecord, error)
	ReadClientRecordHistory(ctx context.Context, clientID string, kind RecordKind, tr TimeRange) ([]ClientRecord, error)

	WriteClientSnapshot(ctx context.Context, snapshot *ClientSnapshot) (time.Time, error)
	ReadClientSnapshot(ctx context.Context, clientID string) (*ClientSnapshot, error)
	MultiReadClientSnapshot(ctx context.Context, clientIDs []string) (map[string]*ClientSnapshot, error)
	ReadClientSnapshotHistory(ctx context.Context, clientID string, tr TimeRange) ([]*ClientSnapshot, error)
	WriteClientSnapshotHistory(ctx context.Context, snapshots []*ClientSnapshot) error

	WriteClientStartupInfo(ctx context.Context, clientID string, info *StartupInfo) (time.Time, error)
	ReadClientStartupInfo(ctx context.Context, clientID string) (*StartupInfo, error)
	ReadClientStartupInfoHistory(ctx context.Context, clientID string, tr TimeRange) ([]*StartupInfo, error)

	WriteClientCrashInfo(ctx context.Context, crash *ClientCrash) (time.Time, error)
	ReadClientCrashInfo(ctx context.Context, clientID string) (*ClientCrash, error)
	ReadClientCrashInfoHistory(ctx context.Context, clientID string, tr TimeRange) ([]*ClientCrash, error)
}

type ClientKeywordService interface {
	AddClientKeywords(ctx context.Context, clientID string, keywords []string) error
	RemoveClientKeyword(ctx context.Context, clientID string, keyword string) error
	// ListClientsForKeywords returns a map keyed by the keywords as given by
	// the caller. Keywords without matches map to an empty slice.
	ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error)
}

type ClientLabelService interface {
	AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error
	RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error
	ReadClientLabels(ctx context.Context, clientID string) ([]ClientLabel, error)
	MultiReadClientLabels(ctx context.Context, clientIDs []string) (map[string][]ClientLabel, error)
	ReadAllClientLabels(ctx context.Context) ([]ClientLabel, error)
}

type ClientFullInfoService interface {
	ReadClientFullInfo(ctx context.Context, clientID string) (*ClientFullInfo, error)
	// MultiReadClientFullInfo omits unknown clients and, if minLastPing is set,
	// clients whose last ping is unset or earlier than it.
	MultiReadClientFullInfo(ctx context.Context, clientIDs []string, minLastPing *time.Time) (map[string]*ClientFullInfo, error)
	IterateAllClientsFullInfo(ctx context.Context, batchSize int) iter.Seq2[*ClientFullInfo, error]
	IterateAllClientSnapshots(ctx context.Context, batchSize int) iter.Seq2[*ClientSnapshot, error]
}
