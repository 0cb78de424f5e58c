package service

import (
	"context"

	"github.com/fleetdm/clientstore/server/contexts/ctxerr"
	"github.com/fleetdm/clientstore/server/fleet"
)

func canonicalLabelNames(names []string) []string {
	res := make([]string, 0, len(names))
	for _, name := range names {
		res = append(res, fleet.CanonicalKeyword(name))
	}
	return res
}

func (s *Service) AddClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}
	if err := fleet.ValidateKeywordLength("label owner", owner); err != nil {
		return err
	}
	canonical := canonicalLabelNames(names)
	for _, name := range canonical {
		if err := fleet.ValidateKeywordLength("label name", name); err != nil {
			return err
		}
	}
	return ctxerr.Wrap(ctx, s.ds.AddClientLabels(ctx, clientID, owner, canonical), "add client labels")
}

func (s *Service) RemoveClientLabels(ctx context.Context, clientID string, owner string, names []string) error {
	if err := fleet.ValidateClientID(clientID); err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}
	return ctxerr.Wrap(ctx, s.ds.RemoveClientLabels(ctx, clientID, owner, canonicalLabelNames(names)), "remove client labels")
}

func (s *Service) ReadClientLabels(ctx context.Context, clientID string) ([]fleet.ClientLabel, error) {
	byClient, err := s.MultiReadClientLabels(ctx, []string{clientID})
	if err != nil {
		return nil, err
	}
	if labels := byClient[clientID]; labels != nil {
		return labels, nil
	}
	return []fleet.ClientLabel{}, nil
}

func (s *Service) MultiReadClientLabels(ctx context.Context, clientIDs []string) (map[string][]fleet.ClientLabel, error) {
	if err := validateClientIDs(clientIDs); err != nil {
		return nil, err
	}
	labels, err := s.ds.MultiReadClientLabels(ctx, clientIDs)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "multi read client labels")
	}
	return labels, nil
}

func (s *Service) ReadAllClientLabels(ctx context.Context) ([]fleet.ClientLabel, error) {
	labels, err := s.ds.ReadAllClientLabels(ctx)
	if err != nil {
		return nil, ctxerr.Wrap(ctx, err, "read all client labels")
	}
	return labels, nil
}
