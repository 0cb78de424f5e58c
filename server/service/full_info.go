package service

import (
	"context"
	"iter"
	"time"

	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
	"golang.org/x/sync/errgroup"
)

func (s *Service) ReadClientFullInfo(ctx context.Context, clientID string) (*fleet.ClientFullInfo, error) {
	infos, err := s.MultiReadClientFullInfo(ctx, []string{clientID}, nil)
	if err != nil {
		return nil, err
	}
	info, ok := infos[clientID]
	if !ok {
		return nil, &fleet.UnknownClientError{ClientID: clientID}
	}
	return info, nil
}

func (s *Service) MultiReadClientFullInfo(ctx context.Context, clientIDs []string, minLastPing *time.Time) (map[string]*fleet.ClientFullInfo, error) {
	if err := validateClientIDs(clientIDs); err != nil {
		return nil, err
	}
	return s.composeFullInfo(ctx, clientIDs, minLastPing)
}

// composeFullInfo reads the metadata of clientIDs and then fetches the
// sub-records of the remaining clients concurrently.
func (s *Service) composeFullInfo(ctx context.Context, clientIDs []string, minLastPing *time.Time) (map[string]*fleet.ClientFullInfo, error) {
	mds, err := s.ds.MultiReadClientMetadata(ctx, clientIDs)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "full info: read metadata")
	}

	var cutoff *time.Time
	if minLastPing != nil {
		cutoff = fleet.TimeRange{From: minLastPing}.Normalize().From
	}

	ids := make([]string, 0, len(mds))
	for _, id := range clientIDs {
		md, ok := mds[id]
		if !ok {
			continue
		}
		if cutoff != nil && (md.Ping == nil || md.Ping.Before(*cutoff)) {
			continue
		}
		ids = append(ids, id)
	}

	res := make(map[string]*fleet.ClientFullInfo, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	var (
		snapshots map[string]fleet.ClientRecord
		startups  map[string]fleet.ClientRecord
		labels    map[string][]fleet.ClientLabel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snapshots, err = s.ds.MultiReadLatestClientRecords(gctx, ids, fleet.RecordKindSnapshot)
		return ctxerr.Wrap(gctx, err, "full info: read snapshots")
	})
	g.Go(func() error {
		var err error
		startups, err = s.ds.MultiReadLatestClientRecords(gctx, ids, fleet.RecordKindStartupInfo)
		return ctxerr.Wrap(gctx, err, "full info: read startup info")
	})
	g.Go(func() error {
		var err error
		labels, err = s.ds.MultiReadClientLabels(gctx, ids)
		return ctxerr.Wrap(gctx, err, "full info: read labels")
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		info := &fleet.ClientFullInfo{
			Metadata: mds[id],
			Labels:   labels[id],
		}
		if info.Labels == nil {
			info.Labels = []fleet.ClientLabel{}
		}
		if rec, ok := snapshots[id]; ok {
			info.LastSnapshot = rec.(*fleet.ClientSnapshot)
		}
		if rec, ok := startups[id]; ok {
			info.LastStartupInfo = rec.(*fleet.StartupInfo)
		}
		res[id] = info
	}
	return res, nil
}

// IterateAllClientsFullInfo yields the full info of every registered client,
// one keyset page of batchSize clients at a time.
func (s *Service) IterateAllClientsFullInfo(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientFullInfo, error] {
	return func(yield func(*fleet.ClientFullInfo, error) bool) {
		for page, err := range s.clientIDPages(ctx, batchSize) {
			if err != nil {
				yield(nil, err)
				return
			}
			infos, err := s.composeFullInfo(ctx, page, nil)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, id := range page {
				info, ok := infos[id]
				if !ok {
					continue
				}
				if !yield(info, nil) {
					return
				}
			}
		}
	}
}

// IterateAllClientSnapshots yields the latest snapshot of every client that
// has one.
func (s *Service) IterateAllClientSnapshots(ctx context.Context, batchSize int) iter.Seq2[*fleet.ClientSnapshot, error] {
	return func(yield func(*fleet.ClientSnapshot, error) bool) {
		for page, err := range s.clientIDPages(ctx, batchSize) {
			if err != nil {
				yield(nil, err)
				return
			}
			snaps, err := s.ds.MultiReadLatestClientRecords(ctx, page, fleet.RecordKindSnapshot)
			if err != nil {
				yield(nil, ctxerr.Wrap(ctx, err, "iterate snapshots"))
				return
			}
			for _, id := range page {
				rec, ok := snaps[id]
				if !ok {
					continue
				}
				if !yield(rec.(*fleet.ClientSnapshot), nil) {
					return
				}
			}
		}
	}
}
