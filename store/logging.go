package store

import (
	"github.com/egisj/Dotted-Version-Vectors/crdt"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

type loggingService struct {
	logger  log.Logger
	service Service
}

// Functions

// NewLoggingService wraps a provided existing
// service with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {

	return &loggingService{
		logger:  logger,
		service: s,
	}
}

// Get wraps this service's Get method
// with added logging capabilities.
func (s *loggingService) Get(key string) (crdt.Clock, error) {

	clock, err := s.service.Get(key)

	logger := log.With(s.logger, "method", "GET", "key", key)

	if err != nil {
		level.Info(logger).Log("msg", "failed to get key", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return clock, err
}

// Put wraps this service's Put method
// with added logging capabilities.
func (s *loggingService) Put(key string, value interface{}, context crdt.Causal) (crdt.Clock, error) {

	clock, err := s.service.Put(key, value, context)

	logger := log.With(s.logger, "method", "PUT", "key", key)

	if err != nil {
		level.Info(logger).Log("msg", "failed to put key", "err", err)
	} else {
		level.Debug(logger).Log("siblings", crdt.Size(clock))
	}

	return clock, err
}

// SyncRemote wraps this service's SyncRemote method
// with added logging capabilities.
func (s *loggingService) SyncRemote(key string, remote crdt.Clock) error {

	err := s.service.SyncRemote(key, remote)

	logger := log.With(s.logger, "method", "SYNC", "key", key)

	if err != nil {
		level.Info(logger).Log("msg", "failed to apply remote clock", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return err
}

// Resolve wraps this service's Resolve method
// with added logging capabilities.
func (s *loggingService) Resolve(key string, f func([]interface{}) interface{}) (crdt.Clock, error) {

	clock, err := s.service.Resolve(key, f)

	logger := log.With(s.logger, "method", "RESOLVE", "key", key)

	if err != nil {
		level.Info(logger).Log("msg", "failed to resolve key", "err", err)
	} else {
		level.Debug(logger).Log()
	}

	return clock, err
}
