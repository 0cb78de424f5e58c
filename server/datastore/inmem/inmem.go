// Package inmem implements the client record store in process memory. It is
// meant for tests and single-process development setups.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/fleet"
)

type Datastore struct {
	mtx   sync.RWMutex
	clock clock.Clock

	clients map[string]*fleet.ClientMetadata
	// clientIDs holds the keys of clients in ascending order.
	clientIDs []string
	// history is indexed by kind, then client id, then timestamp in
	// microseconds since the epoch.
	history  map[fleet.RecordKind]map[string]map[int64]fleet.ClientRecord
	keywords map[string]map[string]time.Time
	labels   map[string]map[fleet.ClientLabel]struct{}
}

var _ fleet.Datastore = (*Datastore)(nil)

func New(c clock.Clock) (*Datastore, error) {
	if c == nil {
		c = clock.C
	}
	ds := &Datastore{
		clock: c,
	}

	if err := ds.MigrateTables(context.Background()); err != nil {
		return nil, err
	}

	return ds, nil
}

func (d *Datastore) Name() string {
	return "inmem"
}

// MigrateTables resets every table to an empty state.
func (d *Datastore) MigrateTables(ctx context.Context) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	d.clients = make(map[string]*fleet.ClientMetadata)
	d.clientIDs = nil
	d.history = make(map[fleet.RecordKind]map[string]map[int64]fleet.ClientRecord)
	for _, k := range fleet.RecordKinds {
		d.history[k] = make(map[string]map[int64]fleet.ClientRecord)
	}
	d.keywords = make(map[string]map[string]time.Time)
	d.labels = make(map[string]map[fleet.ClientLabel]struct{})

	return nil
}

func (d *Datastore) Drop(ctx context.Context) error {
	return d.MigrateTables(ctx)
}

func (d *Datastore) HealthCheck() error {
	return nil
}

func (d *Datastore) Close() error {
	return nil
}
