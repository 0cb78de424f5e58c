package service

import (
	"context"
	"iter"

	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
)

func (s *Service) WriteClientMetadata(ctx context.Context, clientID string, update fleet.ClientMetadataUpdate) error {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}
	if err := update.LastIP.Validate(); err != nil {
		return err
	}
	update.TruncateTimes()

	return ctxerr.Wrap(ctx, s.ds.WriteClientMetadata(ctx, clientID, update), "write client metadata")
}

func (s *Service) ReadClientMetadata(ctx context.Context, clientID string) (*fleet.ClientMetadata, error) {
	mds, err := s.MultiReadClientMetadata(ctx, []string{clientID})
	if err != nil {
		return nil, err
	}
	md, ok := mds[clientID]
	if !ok {
		return nil, &fleet.UnknownClientError{ClientID: clientID}
	}
	return md, nil
}

func (s *Service) MultiReadClientMetadata(ctx context.Context, clientIDs []string) (map[string]*fleet.ClientMetadata, error) {
	if err := validateClientIDs(clientIDs); err != nil {
		return nil, err
	}
	mds, err := s.ds.MultiReadClientMetadata(ctx, clientIDs)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "multi read client metadata")
	}
	return mds, nil
}

func (s *Service) ListAllClientIDs(ctx context.Context, batchSize int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for page, err := range s.clientIDPages(ctx, batchSize) {
			if err != nil {
				yield("", err)
				return
			}
			for _, id := range page {
				if !yield(id, nil) {
					return
				}
			}
		}
	}
}

func (s *Service) CountClients(ctx context.Context) (int, error) {
	n, err := s.ds.CountClients(ctx)
	if err != nil {
		return 0, ctxerr.Wrap(ctx, err, "count clients")
	}
	return n, nil
}

// clientIDPages yields the registered client ids in keyset pages of at most
// batchSize ids. No transaction is held between pages.
func (s *Service) clientIDPages(ctx context.Context, batchSize int) iter.Seq2[[]string, error] {
	batchSize = s.batchSize(batchSize)
	return func(yield func([]string, error) bool) {
		var after string
		for {
			ids, err := s.ds.ListClientIDs(ctx, after, batchSize)
			if err != nil {
				yield(nil, ctxerr.Wrap(ctx, err, "list client ids"))
				return
			}
			if len(ids) == 0 {
				return
			}
			if !yield(ids, nil) {
				return
			}
			if len(ids) < batchSize {
				return
			}
			after = ids[len(ids)-1]
		}
	}
}
