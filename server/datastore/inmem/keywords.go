package inmem

import (
	"context"
	"sort"
	"time"

	"github.com/fleetdm/clientstore/server/fleet"
)

func (d *Datastore) AddClientKeywords(ctx context.Context, clientID string, keywords []string, ts time.Time) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if err := d.unknownClient(clientID); err != nil {
		return err
	}

	ts = fleet.TruncateTimestamp(ts)
	for _, kw := range keywords {
		byClient := d.keywords[kw]
		if byClient == nil {
			byClient = make(map[string]time.Time)
			d.keywords[kw] = byClient
		}
		byClient[clientID] = ts
	}
	return nil
}

func (d *Datastore) RemoveClientKeyword(ctx context.Context, clientID string, keyword string) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()

	if byClient, ok := d.keywords[keyword]; ok {
		delete(byClient, clientID)
		if len(byClient) == 0 {
			delete(d.keywords, keyword)
		}
	}
	return nil
}

func (d *Datastore) ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error) {
	d.mtx.RLock()
	defer d.mtx.RUnlock()

	res := make(map[string][]string, len(keywords))
	for _, kw := range keywords {
		ids := []string{}
		for id, ts := range d.keywords[kw] {
			if startTime != nil && ts.Before(*startTime) {
				continue
			}
			ids = append(ids, id)
		}
		sort.Strings(ids)
		res[kw] = ids
	}
	return res, nil
}
