package inmem

import (
	"context"
	"slices"
	"sort"

	"github.com/fleetdm/clientstore/server/fleet"
)

func (d *Datastore) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	md, ok := d.clients[clientID]
	if !ok {
		md = &fleet.ClientMetadata{ClientID: clientID}
		d.clients[clientID] = md
		i := sort.SearchStrings(d.clientIDs, clientID)
		d.clientIDs = slices.Insert(d.clientIDs, i, clientID)
	}
	update.TruncateTimes()
	md.Merge(update)

	return nil
}

func (d *Datastore) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	res := make(map[string]*fleet.ClientMetadata, len(clientIDs))
	for _, id := range clientIDs {
		if md, ok := d.clients[id]; ok {
			res[id] = md.Clone()
		}
	}
	return res, nil
}

func (d *Datastore) ListClientIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	start := sort.SearchStrings(d.clientIDs, afterID)
	if start < len(d.clientIDs) && d.clientIDs[start] == afterID {
		start++
	}
	end := len(d.clientIDs)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return slices.Clone(d.clientIDs[start:end]), nil
}

func (d *Datastore) CountClients(ctx context.Context) (int, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	return len(d.clients), nil
}

// unknownClient must be called with the lock held.
func (d *Datastore) unknownClient(clientID string) error {
	if _, ok := d.clients[clientID]; !ok {
		return &fleet.UnknownClientError{ClientID: clientID}
	}
	return nil
}
