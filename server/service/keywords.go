package service

import (
	"context"
	"time"

	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
)

func (s *Service) AddClientKeywords(ctx context.Context, clientID string, keywords []string) error {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}

	canonical := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kw = fleet.CanonicalKeyword(kw)
		if err := fleet.ValidateKeywordLength("keyword", kw); err != nil {
			return err
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		canonical = append(canonical, kw)
	}

	now := fleet.TruncateTimestamp(s.clock.Now())
	return ctxerr.Wrap(ctx, s.ds.AddClientKeywords(ctx, clientID, canonical, now), "add client keywords")
}

func (s *Service) RemoveClientKeyword(ctx context.Context, clientID string, keyword string) error {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}
	return ctxerr.Wrap(ctx, s.ds.RemoveClientKeyword(ctx, clientID, fleet.CanonicalKeyword(keyword)), "remove client keyword")
}

// ListClientsForKeywords looks up the canonical form of every keyword but
// keys the result by the keyword as the caller spelled it.
func (s *Service) ListClientsForKeywords(ctx context.Context, keywords []string, startTime *time.Time) (map[string][]string, error) {
	canonical := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		canonical = append(canonical, fleet.CanonicalKeyword(kw))
	}

	if startTime != nil {
		startTime = fleet.TimeRange{From: startTime}.Normalize().From
	}

	byCanonical, err := s.ds.ListClientsForKeywords(ctx, canonical, startTime)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "list clients for keywords")
	}

	res := make(map[string][]string, len(keywords))
	for i, kw := range keywords {
		ids := byCanonical[canonical[i]]
		if ids == nil {
			ids = []string{}
		}
		res[kw] = ids
	}
	return res, nil
}
