package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/jmoiron/sqlx"
	"gopkg.in/guregu/null.v3"
)

var clientColumns = []interface{}{
	"client_id",
	"certificate",
	"fleetspeak_enabled",
	"first_seen",
	"last_ping",
	"last_clock",
	"last_foreman",
	"last_ip",
	"last_snapshot_timestamp",
	"last_startup_timestamp",
	"last_crash_timestamp",
}

// clientRow is the scan target of a row of the clients table.
type clientRow struct {
	ClientID          string    `db:"client_id"`
	Certificate       []byte    `db:"certificate"`
	FleetspeakEnabled bool      `db:"fleetspeak_enabled"`
	FirstSeen         null.Time `db:"first_seen"`
	LastPing          null.Time `db:"last_ping"`
	LastClock         null.Time `db:"last_clock"`
	LastForeman       null.Time `db:"last_foreman"`
	LastIP            []byte    `db:"last_ip"`

	LastSnapshotTimestamp null.Time `db:"last_snapshot_timestamp"`
	LastStartupTimestamp  null.Time `db:"last_startup_timestamp"`
	LastCrashTimestamp    null.Time `db:"last_crash_timestamp"`
}

func (r *clientRow) toMetadata() (*fleet.ClientMetadata, error) {
	md := &fleet.ClientMetadata{
		ClientID:              r.ClientID,
		Certificate:           r.Certificate,
		FleetspeakEnabled:     r.FleetspeakEnabled,
		FirstSeen:             r.FirstSeen.Ptr(),
		Ping:                  r.LastPing.Ptr(),
		Clock:                 r.LastClock.Ptr(),
		LastForemanTime:       r.LastForeman.Ptr(),
		LastSnapshotTimestamp: r.LastSnapshotTimestamp.Ptr(),
		StartupInfoTimestamp:  r.LastStartupTimestamp.Ptr(),
		LastCrashTimestamp:    r.LastCrashTimestamp.Ptr(),
	}
	if len(r.LastIP) > 0 {
		var ip fleet.NetworkAddress
		if err := json.Unmarshal(r.LastIP, &ip); err != nil {
			return nil, err
		}
		md.IP = &ip
	}
	return md, nil
}

func (d *Datastore) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) error {
	update.TruncateTimes()

	row := goqu.Record{"client_id": clientID}
	set := goqu.Record{}
	add := func(col string, v interface{}) {
		row[col] = v
		set[col] = goqu.L("VALUES(?)", goqu.C(col))
	}
	if update.Certificate != nil {
		add("certificate", update.Certificate)
	}
	if update.FleetspeakEnabled != nil {
		add("fleetspeak_enabled", *update.FleetspeakEnabled)
	}
	if update.FirstSeen != nil {
		add("first_seen", *update.FirstSeen)
	}
	if update.LastPing != nil {
		add("last_ping", *update.LastPing)
	}
	if update.LastClock != nil {
		add("last_clock", *update.LastClock)
	}
	if update.LastForeman != nil {
		add("last_foreman", *update.LastForeman)
	}
	if update.LastIP != nil {
		ip, err := json.Marshal(update.LastIP)
		if err != nil {
			return ctxerr.Wrap(ctx, err, "marshal client ip")
		}
		add("last_ip", string(ip))
	}

	ins := dialect.Insert("clients").Rows(row)
	if len(set) > 0 {
		ins = ins.OnConflict(goqu.DoUpdate("client_id", set))
	} else {
		ins = ins.OnConflict(goqu.DoNothing())
	}
	stmt, args, err := ins.Prepared(true).ToSQL()
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build client metadata upsert")
	}
	if _, err := d.writer.ExecContext(ctx, stmt, args...); err != nil {
		return ctxerr.Wrapf(ctx, err, "write metadata of client %s", clientID)
	}
	return nil
}

func (d *Datastore) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
	res := make(map[string]*fleet.ClientMetadata, len(clientIDs))
	if len(clientIDs) == 0 {
		return res, nil
	}

	stmt, args, err := dialect.From("clients").
		Select(clientColumns...).
		Where(goqu.C("client_id").In(clientIDs)).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build client metadata select")
	}

	var rows []clientRow
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "select client metadata")
	}
	for i := range rows {
		md, err := rows[i].toMetadata()
		if err != nil {
			return nil, ctxerr.Wrapf(ctx, err, "decode metadata of client %s", rows[i].ClientID)
		}
		res[md.ClientID] = md
	}
	return res, nil
}

func (d *Datastore) ListClientIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = fleet.DefaultIterationBatchSize
	}
	var ids []string
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &ids,
		`SELECT client_id FROM clients WHERE client_id > ? ORDER BY client_id LIMIT ?`,
		afterID, limit,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list client ids")
	}
	return ids, nil
}

func (d *Datastore) CountClients(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, d.reader(ctx), &count, `SELECT COUNT(*) FROM clients`); err != nil {
		return 0, ctxerr.Wrap(ctx, err, "count clients")
	}
	return count, nil
}

// latestPointers is the locked state of a client needed to append records.
type latestPointers struct {
	Snapshot null.Time `db:"last_snapshot_timestamp"`
	Startup  null.Time `db:"last_startup_timestamp"`
	Crash    null.Time `db:"last_crash_timestamp"`
}

func (p *latestPointers) get(kind fleet.RecordKind) *time.Time {
	switch kind {
	case fleet.RecordKindSnapshot:
		return p.Snapshot.Ptr()
	case fleet.RecordKindStartupInfo:
		return p.Startup.Ptr()
	case fleet.RecordKindCrash:
		return p.Crash.Ptr()
	}
	return nil
}

func (p *latestPointers) set(kind fleet.RecordKind, ts time.Time) {
	switch kind {
	case fleet.RecordKindSnapshot:
		p.Snapshot = null.TimeFrom(ts)
	case fleet.RecordKindStartupInfo:
		p.Startup = null.TimeFrom(ts)
	case fleet.RecordKindCrash:
		p.Crash = null.TimeFrom(ts)
	}
}

// lockClient locks the row of the client for the rest of the transaction and
// returns its latest pointers. It returns an *fleet.UnknownClientError if the
// client is not registered.
func lockClient(ctx context.Context, tx sqlx.ExtContext, clientID string) (*latestPointers, error) {
	var p latestPointers
	err := sqlx.GetContext(ctx, tx, &p, `
		SELECT last_snapshot_timestamp, last_startup_timestamp, last_crash_timestamp
		FROM clients WHERE client_id = ? FOR UPDATE`, clientID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ctxerr.Wrap(ctx, &fleet.UnknownClientError{ClientID: clientID}, "lock client")
		}
		return nil, ctxerr.Wrap(ctx, err, "lock client")
	}
	return &p, nil
}

// ensureClient returns an *fleet.UnknownClientError if the client is not
// registered.
func ensureClient(ctx context.Context, q sqlx.QueryerContext, clientID string) error {
	var exists bool
	err := sqlx.GetContext(ctx, q, &exists, `SELECT EXISTS(SELECT 1 FROM clients WHERE client_id = ?)`, clientID)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "check client exists")
	}
	if !exists {
		return ctxerr.Wrap(ctx, &fleet.UnknownClientError{ClientID: clientID}, "check client exists")
	}
	return nil
}
