package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
)

func (d *Datastore) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := d.unknownClient(clientID); err != nil {
		return time.Time{}, err
	}

	rec = rec.CloneRecord()
	ts := rec.RecordTimestamp()
	if ts.IsZero() {
		ts = d.nextTimestamp(clientID, rec.Kind())
	}
	rec.SetRecordTimestamp(fleet.TruncateTimestamp(ts))
	d.appendRecord(clientID, rec)

	return rec.RecordTimestamp(), nil
}

func (d *Datastore) AppendClientRecords(ctx context.Context, clientID string, recs []fleet.ClientRecord) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := d.unknownClient(clientID); err != nil {
		return err
	}

	for _, rec := range recs {
		rec = rec.CloneRecord()
		rec.SetRecordTimestamp(fleet.TruncateTimestamp(rec.RecordTimestamp()))
		d.appendRecord(clientID, rec)
	}
	return nil
}

// nextTimestamp must be called with the lock held.
func (d *Datastore) nextTimestamp(clientID string, kind fleet.RecordKind) time.Time {
	return fleet.NextTimestamp(d.clock.Now(), kind, d.clients[clientID].LatestTimestamp)
}

// appendRecord stores rec, replacing any record of the same kind and
// timestamp, and moves the latest pointer if rec is newer. Snapshots also
// store their embedded startup info. Must be called with the write lock held.
func (d *Datastore) appendRecord(clientID string, rec fleet.ClientRecord) {
	kind := rec.Kind()
	ts := rec.RecordTimestamp()

	byClient := d.history[kind][clientID]
	if byClient == nil {
		byClient = make(map[int64]fleet.ClientRecord)
		d.history[kind][clientID] = byClient
	}
	byClient[ts.UnixMicro()] = rec

	md := d.clients[clientID]
	if latest := md.LatestTimestamp(kind); latest == nil || ts.After(*latest) {
		md.SetLatestTimestamp(kind, ts)
	}

	if snap, ok := rec.(*fleet.ClientSnapshot); ok {
		d.appendRecord(clientID, snap.StartupInfo.Clone())
	}
}

func (d *Datastore) MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (map[string]fleet.ClientRecord, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	res := make(map[string]fleet.ClientRecord, len(clientIDs))
	for _, id := range clientIDs {
		md, ok := d.clients[id]
		if !ok {
			continue
		}
		latest := md.LatestTimestamp(kind)
		if latest == nil {
			continue
		}
		if rec, ok := d.history[kind][id][latest.UnixMicro()]; ok {
			res[id] = rec.CloneRecord()
		}
	}
	return res, nil
}

func (d *Datastore) ReadClientRecordHistory(ctx context.Context, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) ([]fleet.ClientRecord, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	var res []fleet.ClientRecord
	for _, rec := range d.history[kind][clientID] {
		if tr.Contains(rec.RecordTimestamp()) {
			res = append(res, rec.CloneRecord())
		}
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].RecordTimestamp().After(res[j].RecordTimestamp())
	})
	return res, nil
}
