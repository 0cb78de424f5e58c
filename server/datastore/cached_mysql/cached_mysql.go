// Package cached_mysql wraps a fleet.Datastore with a short-lived in-process
// cache for the reads that are repeated the most: the fleet-wide label list
// and client metadata.
package cached_mysql

import (
	"context"
	"time"

	"github.com/fleetdm/clientstore/server/contexts/ctxdb"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/patrickmn/go-cache"
)

type cachedMysql struct {
	fleet.Datastore

	c *cache.Cache

	labelsExp   time.Duration
	metadataExp time.Duration
}

const (
	allClientLabelsKey         = "AllClientLabels"
	clientMetadataKey          = "ClientMetadata"
	defaultAllLabelsExpiration = 1 * time.Minute
	defaultMetadataExpiration  = 1 * time.Second
)

type Option func(*cachedMysql)

// WithAllLabelsExpiration sets how long the fleet-wide label list is served
// from the cache.
func WithAllLabelsExpiration(d time.Duration) Option {
	return func(o *cachedMysql) {
		o.labelsExp = d
	}
}

// WithMetadataExpiration sets how long client metadata is served from the
// cache.
func WithMetadataExpiration(d time.Duration) Option {
	return func(o *cachedMysql) {
		o.metadataExp = d
	}
}

func New(ds fleet.Datastore, opts ...Option) fleet.Datastore {
	c := &cachedMysql{
		Datastore:   ds,
		c:           cache.New(5*time.Minute, 10*time.Minute),
		labelsExp:   defaultAllLabelsExpiration,
		metadataExp: defaultMetadataExpiration,
	}
	for _, fn := range opts {
		fn(c)
	}
	return c
}

func metadataKey(clientID string) string {
	return clientMetadataKey + "_" + clientID
}

func (ds *cachedMysql) ReadAllClientLabels(ctx context.Context) ([]fleet.ClientLabel, error) {
	if !ctxdb.IsCachedMysqlBypassed(ctx) {
		if cached, found := ds.c.Get(allClientLabelsKey); found {
			if labels, ok := cached.([]fleet.ClientLabel); ok {
				return append([]fleet.ClientLabel{}, labels...), nil
			}
		}
	}

	labels, err := ds.Datastore.ReadAllClientLabels(ctx)
	if err != nil {
		return nil, err
	}

	ds.c.Set(allClientLabelsKey, labels, ds.labelsExp)

	return append([]fleet.ClientLabel{}, labels...), nil
}

func (ds *cachedMysql) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	err := ds.Datastore.AddClientLabels(ctx, clientID, owner, names)
	ds.c.Delete(allClientLabelsKey)
	return err
}

func (ds *cachedMysql) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	err := ds.Datastore.RemoveClientLabels(ctx, clientID, owner, names)
	ds.c.Delete(allClientLabelsKey)
	return err
}

// MultiReadClientMetadata serves the cached clients and reads the others
// from the wrapped datastore in a single call.
func (ds *cachedMysql) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
	res := make(map[string]*fleet.ClientMetadata, len(clientIDs))
	var missing []string
	bypass := ctxdb.IsCachedMysqlBypassed(ctx)
	for _, id := range clientIDs {
		if cached, found := ds.c.Get(metadataKey(id)); found && !bypass {
			if md, ok := cached.(*fleet.ClientMetadata); ok {
				res[id] = md.Clone()
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return res, nil
	}

	mds, err := ds.Datastore.MultiReadClientMetadata(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, md := range mds {
		ds.c.Set(metadataKey(id), md.Clone(), ds.metadataExp)
		res[id] = md
	}
	return res, nil
}

func (ds *cachedMysql) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) error {
	err := ds.Datastore.WriteClientMetadata(ctx, clientID, update)
	ds.c.Delete(metadataKey(clientID))
	return err
}

// AppendClientRecord drops the cached metadata of the client, whose latest
// pointers may have moved.
func (ds *cachedMysql) AppendClientRecord(ctx context.Context, clientID string, rec fleet.ClientRecord) (time.Time, error) {
	ts, err := ds.Datastore.AppendClientRecord(ctx, clientID, rec)
	ds.c.Delete(metadataKey(clientID))
	return ts, err
}

func (ds *cachedMysql) AppendClientRecords(ctx context.Context, clientID string, recs []fleet.ClientRecord) error {
	err := ds.Datastore.AppendClientRecords(ctx, clientID, recs)
	ds.c.Delete(metadataKey(clientID))
	return err
}
