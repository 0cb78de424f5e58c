package mysql

import (
	"context"
	"sort"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/jmoiron/sqlx"
)

func (d *Datastore) AddClientKeywords(ctx context.Context, clientID string, keywords []string, ts time.Time) error {
	ts = fleet.TruncateTimestamp(ts)
	err := d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if err := ensureClient(ctx, tx, clientID); err != nil {
			return err
		}
		if len(keywords) == 0 {
			return nil
		}

		rows := make([]interface{}, 0, len(keywords))
		for _, kw := range keywords {
			rows = append(rows, goqu.Record{"client_id": clientID, "keyword": kw, "timestamp": ts})
		}
		stmt, args, err := dialect.Insert("client_keywords").
			Rows(rows...).
			OnConflict(goqu.DoUpdate("client_id", goqu.Record{"timestamp": goqu.L("VALUES(`timestamp`)")})).
			Prepared(true).ToSQL()
		if err != nil {
			return ctxerr.Wrap(ctx, err, "build keywords insert")
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			if isChildForeignKeyError(err) {
				return ctxerr.Wrap(ctx, &fleet.UnknownClientError{ClientID: clientID, InternalErr: err}, "insert keywords")
			}
			return ctxerr.Wrap(ctx, err, "insert keywords")
		}
		return nil
	})
	return ctxerr.Wrapf(ctx, err, "add keywords to client %s", clientID)
}

func (d *Datastore) RemoveClientKeyword(ctx context.Context, clientID string, keyword string) error {
	_, err := d.writer.ExecContext(ctx,
		`DELETE FROM client_keywords WHERE client_id = ? AND keyword = ?`,
		clientID, keyword,
	)
	return ctxerr.Wrapf(ctx, err, "remove keyword from client %s", clientID)
}

func (d *Datastore) ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error) {
	res := make(map[string][]string, len(keywords))
	if len(keywords) == 0 {
		return res, nil
	}
	for _, kw := range keywords {
		res[kw] = []string{}
	}

	sel := dialect.From("client_keywords").
		Select("keyword", "client_id").
		Where(goqu.C("keyword").In(keywords))
	if startTime != nil {
		sel = sel.Where(goqu.C("timestamp").Gte(*startTime))
	}
	stmt, args, err := sel.Prepared(true).ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build keywords select")
	}

	var rows []struct {
		Keyword  string `db:"keyword"`
		ClientID string `db:"client_id"`
	}
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "select clients for keywords")
	}
	for _, r := range rows {
		res[r.Keyword] = append(res[r.Keyword], r.ClientID)
	}
	for _, ids := range res {
		sort.Strings(ids)
	}
	return res, nil
}
