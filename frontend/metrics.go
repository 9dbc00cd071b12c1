package frontend

import (
	"net"

	"github.com/go-kit/kit/metrics"
)

// Structs

type metricsService struct {
	service Service
	gets    metrics.Counter
	puts    metrics.Counter
	syncs   metrics.Counter
}

// Functions

// NewMetricsService wraps s with the supplied counters.
func NewMetricsService(s Service, gets metrics.Counter, puts metrics.Counter, syncs metrics.Counter) Service {

	return &metricsService{
		service: s,
		gets:    gets,
		puts:    puts,
		syncs:   syncs,
	}
}

func (s *metricsService) Run(listener net.Listener, greeting string) error {
	return s.service.Run(listener, greeting)
}

func (s *metricsService) Get(c *Connection, key string) bool {

	ok := s.service.Get(c, key)
	if ok {
		s.gets.Add(1)
	}

	return ok
}

func (s *metricsService) Put(c *Connection, key string, causalToken string, value string) bool {

	ok := s.service.Put(c, key, causalToken, value)
	if ok {
		s.puts.Add(1)
	}

	return ok
}

func (s *metricsService) Sync(c *Connection, key string, causalToken string, values []string) bool {

	ok := s.service.Sync(c, key, causalToken, values)
	if ok {
		s.syncs.Add(1)
	}

	return ok
}
