package inmem

import (
	"context"

	"github.com/fleetdm/clientstore/server/fleet"
)

func (d *Datastore) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := d.unknownClient(clientID); err != nil {
		return err
	}

	set := d.labels[clientID]
	if set == nil {
		set = make(map[fleet.ClientLabel]struct{})
		d.labels[clientID] = set
	}
	for _, name := range names {
		set[fleet.ClientLabel{Owner: owner, Name: name}] = struct{}{}
	}
	return nil
}

func (d *Datastore) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	set := d.labels[clientID]
	for _, name := range names {
		delete(set, fleet.ClientLabel{Owner: owner, Name: name})
	}
	if set != nil && len(set) == 0 {
		delete(d.labels, clientID)
	}
	return nil
}

func (d *Datastore) MultiReadClientLabels(ctx context.Context, clientIDs []string) (map[string][]fleet.ClientLabel, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	res := make(map[string][]fleet.ClientLabel, len(clientIDs))
	for _, id := range clientIDs {
		set := d.labels[id]
		if len(set) == 0 {
			continue
		}
		labels := make([]fleet.ClientLabel, 0, len(set))
		for l := range set {
			labels = append(labels, l)
		}
		fleet.SortClientLabels(labels)
		res[id] = labels
	}
	return res, nil
}

func (d *Datastore) ReadAllClientLabels(ctx context.Context) ([]fleet.ClientLabel, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	distinct := make(map[fleet.ClientLabel]struct{})
	for _, set := range d.labels {
		for l := range set {
			distinct[l] = struct{}{}
		}
	}
	labels := make([]fleet.ClientLabel, 0, len(distinct))
	for l := range distinct {
		labels = append(labels, l)
	}
	fleet.SortClientLabels(labels)
	return labels, nil
}
