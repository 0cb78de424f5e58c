package mysql

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/jmoiron/sqlx"
)

type recordTable struct {
	name    string
	pointer string
}

var recordTables = map[fleet.RecordKind]recordTable{
	fleet.RecordKindSnapshot:    {name: "client_snapshot_history", pointer: "last_snapshot_timestamp"},
	fleet.RecordKindStartupInfo: {name: "client_startup_history", pointer: "last_startup_timestamp"},
	fleet.RecordKindCrash:       {name: "client_crash_history", pointer: "last_crash_timestamp"},
}

func tableForKind(kind fleet.RecordKind) (recordTable, error) {
	t, ok := recordTables[kind]
	if !ok {
		return recordTable{}, fmt.Errorf("no history table for record kind %s", kind)
	}
	return t, nil
}

type recordRow struct {
	ClientID  string    `db:"client_id"`
	Timestamp time.Time `db:"timestamp"`
	Data      []byte    `db:"data"`
}

func (r *recordRow) decode(kind fleet.RecordKind) (fleet.ClientRecord, error) {
	rec, err := fleet.NewClientRecord(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(r.Data, rec); err != nil {
		return nil, err
	}
	rec.SetRecordTimestamp(r.Timestamp.UTC())
	return rec, nil
}

func (d *Datastore) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
	var ts time.Time
	err := d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		pointers, err := lockClient(ctx, tx, clientID)
		if err != nil {
			return err
		}

		rec := rec.CloneRecord()
		ts = rec.RecordTimestamp()
		if ts.IsZero() {
			ts = fleet.NextTimestamp(d.clock.Now(), rec.Kind(), pointers.get)
		}
		ts = fleet.TruncateTimestamp(ts)
		rec.SetRecordTimestamp(ts)

		return insertRecord(ctx, tx, clientID, pointers, rec)
	})
	if err != nil {
		return time.Time{}, ctxerr.Wrapf(ctx, err, "append %s record of client %s", rec.Kind(), clientID)
	}
	return ts, nil
}

func (d *Datastore) AppendClientRecords(ctx context.Context, clientID string, recs []fleet.ClientRecord) error {
	err := d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		pointers, err := lockClient(ctx, tx, clientID)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rec = rec.CloneRecord()
			rec.SetRecordTimestamp(fleet.TruncateTimestamp(rec.RecordTimestamp()))
			if err := insertRecord(ctx, tx, clientID, pointers, rec); err != nil {
				return err
			}
		}
		return nil
	})
	return ctxerr.Wrapf(ctx, err, "append records of client %s", clientID)
}

// insertRecord stores rec, replacing any record of the same kind and
// timestamp, and moves the latest pointer if rec is newer. Snapshots also
// store their embedded startup info. The client row must be locked.
func insertRecord(ctx context.Context, tx sqlx.ExtContext, clientID string, pointers *latestPointers, rec fleet.ClientRecord) error {
	kind := rec.Kind()
	t, err := tableForKind(kind)
	if err != nil {
		return err
	}
	ts := rec.RecordTimestamp()

	data, err := json.Marshal(rec)
	if err != nil {
		return ctxerr.Wrapf(ctx, err, "marshal %s record", kind)
	}

	stmt := fmt.Sprintf(
		"INSERT INTO %s (client_id, `timestamp`, data) VALUES (?, ?, ?) ON DUPLICATE KEY UPDATE data = VALUES(data)",
		t.name,
	)
	if _, err := tx.ExecContext(ctx, stmt, clientID, ts, data); err != nil {
		if isChildForeignKeyError(err) {
			return ctxerr.Wrap(ctx, &fleet.UnknownClientError{ClientID: clientID, InternalErr: err}, "insert record")
		}
		return ctxerr.Wrapf(ctx, err, "insert into %s", t.name)
	}

	if latest := pointers.get(kind); latest == nil || ts.After(*latest) {
		stmt := fmt.Sprintf("UPDATE clients SET %s = ? WHERE client_id = ?", t.pointer)
		if _, err := tx.ExecContext(ctx, stmt, ts, clientID); err != nil {
			return ctxerr.Wrapf(ctx, err, "update %s", t.pointer)
		}
		pointers.set(kind, ts)
	}

	if snap, ok := rec.(*fleet.ClientSnapshot); ok {
		return insertRecord(ctx, tx, clientID, pointers, snap.StartupInfo.Clone())
	}
	return nil
}

func (d *Datastore) MultiReadLatestClientRecords(ctx context.Context, clientIDs []string, kind fleet.RecordKind) (map[string]fleet.ClientRecord, error) {
	t, err := tableForKind(kind)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "multi read latest records")
	}
	res := make(map[string]fleet.ClientRecord, len(clientIDs))
	if len(clientIDs) == 0 {
		return res, nil
	}

	stmt, args, err := dialect.From(goqu.T(t.name).As("h")).
		Select(goqu.I("h.client_id"), goqu.I("h.timestamp"), goqu.I("h.data")).
		Join(goqu.T("clients").As("c"), goqu.On(
			goqu.I("c.client_id").Eq(goqu.I("h.client_id")),
			goqu.I("c."+t.pointer).Eq(goqu.I("h.timestamp")),
		)).
		Where(goqu.I("h.client_id").In(clientIDs)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build latest records select")
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrapf(ctx, err, "select latest from %s", t.name)
	}
	for i := range rows {
		rec, err := rows[i].decode(kind)
		if err != nil {
			return nil, ctxerr.Wrapf(ctx, err, "decode %s record of client %s", kind, rows[i].ClientID)
		}
		res[rows[i].ClientID] = rec
	}
	return res, nil
}

func (d *Datastore) ReadClientRecordHistory(ctx context.Context, clientID string, kind fleet.RecordKind, tr fleet.TimeRange) ([]fleet.ClientRecord, error) {
	t, err := tableForKind(kind)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "read record history")
	}

	sel := dialect.From(t.name).
		Select("client_id", "timestamp", "data").
		Where(goqu.C("client_id").Eq(clientID)).
		Order(goqu.C("timestamp").Desc())
	if tr.From != nil {
		sel = sel.Where(goqu.C("timestamp").Gte(*tr.From))
	}
	if tr.To != nil {
		sel = sel.Where(goqu.C("timestamp").Lte(*tr.To))
	}
	stmt, args, err := sel.Prepared(true).ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build history select")
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrapf(ctx, err, "select history from %s", t.name)
	}
	res := make([]fleet.ClientRecord, 0, len(rows))
	for i := range rows {
		rec, err := rows[i].decode(kind)
		if err != nil {
			return nil, ctxerr.Wrapf(ctx, err, "decode %s record of client %s", kind, clientID)
		}
		res = append(res, rec)
	}
	return res, nil
}
