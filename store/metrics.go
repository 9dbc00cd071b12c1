package store

import (
	"github.com/egisj/Dotted-Version-Vectors/crdt"
	"github.com/go-kit/kit/metrics"
)

type metricsService struct {
	service          Service
	puts             metrics.Counter
	syncs            metrics.Counter
	resolves         metrics.Counter
	siblingsObserved metrics.Counter
}

// NewMetricsService wraps s with the supplied counters.
func NewMetricsService(s Service, puts metrics.Counter, syncs metrics.Counter, resolves metrics.Counter, siblingsObserved metrics.Counter) Service {
	return &metricsService{
		service:          s,
		puts:             puts,
		syncs:            syncs,
		resolves:         resolves,
		siblingsObserved: siblingsObserved,
	}
}

func (s *metricsService) Get(key string) (crdt.Clock, error) {
	return s.service.Get(key)
}

func (s *metricsService) Put(key string, value interface{}, context crdt.Causal) (crdt.Clock, error) {

	clock, err := s.service.Put(key, value, context)
	if err == nil {
		s.puts.Add(1)
		s.siblingsObserved.Add(float64(crdt.Size(clock)))
	}

	return clock, err
}

func (s *metricsService) SyncRemote(key string, remote crdt.Clock) error {

	err := s.service.SyncRemote(key, remote)
	if err == nil {
		s.syncs.Add(1)
	}

	return err
}

func (s *metricsService) Resolve(key string, f func([]interface{}) interface{}) (crdt.Clock, error) {

	clock, err := s.service.Resolve(key, f)
	if err == nil {
		s.resolves.Add(1)
	}

	return clock, err
}
