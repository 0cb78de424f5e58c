package mysql

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/jmoiron/sqlx"
)

func (d *Datastore) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	err := d.withRetryTxx(ctx, func(tx sqlx.ExtContext) error {
		if err := ensureClient(ctx, tx, clientID); err != nil {
			return err
		}
		if len(names) == 0 {
			return nil
		}

		values := strings.TrimSuffix(strings.Repeat("(?, ?, ?),", len(names)), ",")
		args := make([]interface{}, 0, 3*len(names))
		for _, name := range names {
			args = append(args, clientID, owner, name)
		}
		// INSERT IGNORE would also swallow foreign key errors.
		stmt := `INSERT INTO client_labels (client_id, owner, name) VALUES ` + values +
			` ON DUPLICATE KEY UPDATE name = VALUES(name)`
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			if isChildForeignKeyError(err) {
				return ctxerr.Wrap(ctx, &fleet.UnknownClientError{ClientID: clientID, InternalErr: err}, "insert labels")
			}
			return ctxerr.Wrap(ctx, err, "insert labels")
		}
		return nil
	})
	return ctxerr.Wrapf(ctx, err, "add labels to client %s", clientID)
}

func (d *Datastore) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	if len(names) == 0 {
		return nil
	}
	stmt, args, err := sqlx.In(
		`DELETE FROM client_labels WHERE client_id = ? AND owner = ? AND name IN (?)`,
		clientID, owner, names,
	)
	if err != nil {
		return ctxerr.Wrap(ctx, err, "build labels delete")
	}
	if _, err := d.writer.ExecContext(ctx, stmt, args...); err != nil {
		return ctxerr.Wrapf(ctx, err, "remove labels from client %s", clientID)
	}
	return nil
}

func (d *Datastore) MultiReadClientLabels(ctx context.Context, clientIDs []string) (map[string][]fleet.ClientLabel, error) {
	res := make(map[string][]fleet.ClientLabel, len(clientIDs))
	if len(clientIDs) == 0 {
		return res, nil
	}

	stmt, args, err := dialect.From("client_labels").
		Select("client_id", "owner", "name").
		Where(goqu.C("client_id").In(clientIDs)).
		Order(goqu.C("client_id").Asc(), goqu.C("owner").Asc(), goqu.C("name").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "build labels select")
	}

	var rows []struct {
		ClientID string `db:"client_id"`
		fleet.ClientLabel
	}
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &rows, stmt, args...); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "select client labels")
	}
	for _, r := range rows {
		res[r.ClientID] = append(res[r.ClientID], r.ClientLabel)
	}
	return res, nil
}

func (d *Datastore) ReadAllClientLabels(ctx context.Context) ([]fleet.ClientLabel, error) {
	labels := []fleet.ClientLabel{}
	if err := sqlx.SelectContext(ctx, d.reader(ctx), &labels,
		`SELECT DISTINCT owner, name FROM client_labels ORDER BY owner, name`,
	); err != nil {
		return nil, ctxerr.Wrap(ctx, err, "select all client labels")
	}
	return labels, nil
}
