// Package service holds the implementation of the fleet.Service interface:
// the validated surface of the client record store.
package service

import (
	"github.com/WatchBeam/clock"
	"github.com/fleetdm/clientstore/server/fleet"
	"github.com/go-kit/log"
)

// Service is the struct implementing fleet.Service. Create a new one with NewService.
type Service struct {
	ds     fleet.Datastore
	logger log.Logger
	clock  clock.Clock

	iterationBatchSize int
}

// Option configures a Service.
type Option func(*Service)

// WithIterationBatchSize sets the page size used by the fleet iterators when
// the caller does not request one.
func WithIterationBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.iterationBatchSize = n
		}
	}
}

// NewService creates a new service backed by ds.
func NewService(ds fleet.Datastore, logger log.Logger, c clock.Clock, opts ...Option) fleet.Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	if c == nil {
		c = clock.C
	}
	svc := &Service{
		ds:                 ds,
		logger:             logger,
		clock:              c,
		iterationBatchSize: fleet.DefaultIterationBatchSize,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func validateClientIDs(ids []string) error {
	for _, id := range ids {
		if err := fleet.ValidateClientID(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) batchSize(n int) int {
	if n <= 0 {
		return s.iterationBatchSize
	}
	return n
}
