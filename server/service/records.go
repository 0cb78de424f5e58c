package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
)

func (s *Service) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord, at *time.Time) (time.Time, error) {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return time.Time{}, err
	}
	if rec == nil {
		return time.Time{}, &fleet.TypeMismatchError{Field: "record", Expected: "client record", Got: "nil"}
	}

	// a zero timestamp asks the datastore to assign one
	rec = rec.CloneRecord()
	rec.SetRecordClientID(clientID)
	rec.SetRecordTimestamp(time.Time{})
	if at != nil && !at.IsZero() {
		rec.SetRecordTimestamp(fleet.TruncateTimestamp(*at))
	}

	ts, err := s.ds.AppendClientRecord(ctx, clientID, rec)
	if err != nil {
		return time.Time{}, ctxerr.Wrapf(ctx, err, "append %s record", rec.Kind())
	}
	return ts, nil
}

// AppendClientRecords checks every precondition of the batch before handing
// it to the datastore, which applies it in a single unit.
func (s *Service) AppendClientRecords(ctx context.Context, kind fleet.RecordKind, recs []fleet.ClientRecord) error {
	if len(recs) == 0 {
		return &fleet.EmptyBatchError{}
	}

	clientID := recordClientID(recs[0])
	for _, rec := range recs[1:] {
		if id := recordClientID(rec); id != clientID {
			return &fleet.NonUniformIDError{Expected: clientID, Got: id}
		}
	}
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}

	for i, rec := range recs {
		if rec == nil {
			return &fleet.TypeMismatchError{Field: fmt.Sprintf("records[%d]", i), Expected: kind.String(), Got: "nil"}
		}
		if rec.RecordTimestamp().IsZero() {
			return &fleet.MissingTimestampError{Index: i}
		}
	}
	for i, rec := range recs {
		if rec.Kind() != kind {
			return &fleet.TypeMismatchError{Field: fmt.Sprintf("records[%d]", i), Expected: kind.String(), Got: rec.Kind().String()}
		}
	}

	batch := make([]fleet.ClientRecord, 0, len(recs))
	for _, rec := range recs {
		rec = rec.CloneRecord()
		rec.SetRecordClientID(clientID)
		rec.SetRecordTimestamp(fleet.TruncateTimestamp(rec.RecordTimestamp()))
		batch = append(batch, rec)
	}

	return ctxerr.Wrapf(ctx, s.ds.AppendClientRecords(ctx, clientID, batch), "append %d %s records", len(batch), kind)
}

func recordClientID(rec fleet.ClientRecord) string {
	if rec == nil {
		return ""
	}
	return rec.RecordClientID()
}

func (s *Service) ReadLatestClientRecord(ctx context.Context, clientID string, kind fleet.RecordKind) (fleet.ClientRecord, error) {
	recs, err := s.MultiReadLatestClientRecords(ctx, []string{clientID}, kind)
	if err != nil {
		return nil, err
	}
	return recs[clientID], nil
}

func (s *Service) MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (map[string]fleet.ClientRecord, error) {
	if err := validateClientIDs(clientIDs); err != nil {
		return nil, err
	}
	recs, err := s.ds.MultiReadLatestClientRecords(ctx, clientIDs, kind)
	if err != nil {
		return nil, ctxerr.Wrapf(ctx, err, "multi read latest %s records", kind)
	}
	return recs, nil
}

func (s *Service) ReadClientRecordHistory(ctx context.Context, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) ([]fleet.ClientRecord, error) {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return nil, err
	}
	recs, err := s.ds.ReadClientRecordHistory(ctx, clientID, kind, tr.Normalize())
	if err != nil {
		return nil, ctxerr.Wrapf(ctx, err, "read %s history", kind)
	}
	if recs == nil {
		recs = []fleet.ClientRecord{}
	}
	return recs, nil
}

///////////////////////////////////////////////////////////////////////////////
// Snapshots

func (s *Service) WriteClientSnapshot(ctx context.Context, snapshot *fleet.ClientSnapshot) (time.Time, error) {
	if snapshot == nil {
		return time.Time{}, &fleet.TypeMismatchError{Field: "snapshot", Expected: "client snapshot", Got: "nil"}
	}
	return s.AppendClientRecord(ctx, snapshot.ClientID, snapshot, nil)
}

func (s *Service) ReadClientSnapshot(ctx context.Context, clientID string) (*fleet.ClientSnapshot, error) {
	rec, err := s.ReadLatestClientRecord(ctx, clientID, fleet.RecordKindSnapshot)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*fleet.ClientSnapshot), nil
}

// MultiReadClientSnapshot returns the latest snapshot of every requested
// client. Clients without a snapshot map to nil.
func (s *Service) MultiReadClientSnapshot(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientSnapshot, error) {
	recs, err := s.MultiReadLatestClientRecords(ctx, clientIDs, fleet.RecordKindSnapshot)
	if err != nil {
		return nil, err
	}
	res := make(map[string]*fleet.ClientSnapshot, len(clientIDs))
	for _, id := range clientIDs {
		res[id] = nil
		if rec, ok := recs[id]; ok {
			res[id] = rec.(*fleet.ClientSnapshot)
		}
	}
	return res, nil
}

func (s *Service) ReadClientSnapshotHistory(ctx context.Context, clientID string, tr fleet.TimeRange) ([]*fleet.ClientSnapshot, error) {
	return readHistory[*fleet.ClientSnapshot](ctx, s, clientID, fleet.RecordKindSnapshot, tr)
}

func (s *Service) WriteClientSnapshotHistory(ctx context.Context, snapshots []*fleet.ClientSnapshot) error {
	recs := make([]fleet.ClientRecord, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap == nil {
			recs = append(recs, nil)
			continue
		}
		recs = append(recs, snap)
	}
	return s.AppendClientRecords(ctx, fleet.RecordKindSnapshot, recs)
}

///////////////////////////////////////////////////////////////////////////////
// Startup info

func (s *Service) WriteClientStartupInfo(ctx context.Context, clientID string, info *fleet.StartupInfo) (time.Time, error) {
	if info == nil {
		return time.Time{}, &fleet.TypeMismatchError{Field: "startup_info", Expected: "startup info", Got: "nil"}
	}
	return s.AppendClientRecord(ctx, clientID, info, nil)
}

func (s *Service) ReadClientStartupInfo(ctx context.Context, clientID string) (*fleet.StartupInfo, error) {
	rec, err := s.ReadLatestClientRecord(ctx, clientID, fleet.RecordKindStartupInfo)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*fleet.StartupInfo), nil
}

func (s *Service) ReadClientStartupInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) ([]*fleet.StartupInfo, error) {
	return readHistory[*fleet.StartupInfo](ctx, s, clientID, fleet.RecordKindStartupInfo, tr)
}

///////////////////////////////////////////////////////////////////////////////
// Crashes

func (s *Service) WriteClientCrashInfo(ctx context.Context, crash *fleet.ClientCrash) (time.Time, error) {
	if crash == nil {
		return time.Time{}, &fleet.TypeMismatchError{Field: "crash", Expected: "client crash", Got: "nil"}
	}
	return s.AppendClientRecord(ctx, crash.ClientID, crash, nil)
}

func (s *Service) ReadClientCrashInfo(ctx context.Context, clientID string) (*fleet.ClientCrash, error) {
	rec, err := s.ReadLatestClientRecord(ctx, clientID, fleet.RecordKindCrash)
	if err != nil || rec == nil {
		return nil, err
	}
	return rec.(*fleet.ClientCrash), nil
}

func (s *Service) ReadClientCrashInfoHistory(ctx context.Context, clientID string, tr fleet.TimeRange) ([]*fleet.ClientCrash, error) {
	return readHistory[*fleet.ClientCrash](ctx, s, clientID, fleet.RecordKindCrash, tr)
}

func readHistory[T fleet.ClientRecord](ctx context.Context, s *Service, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) ([]T, error) {
	recs, err := s.ReadClientRecordHistory(ctx, clientID, kind, tr)
	if err != nil {
		return nil, err
	}
	res := make([]T, 0, len(recs))
	for _, rec := range recs {
		res = append(res, rec.(T))
	}
	return res, nil
}
