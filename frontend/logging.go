package frontend

import (
	"net"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

type loggingService struct {
	logger  log.Logger
	service Service
}

// Functions

// NewLoggingService wraps a provided existing frontend service
// with the provided logger.
func NewLoggingService(s Service, logger log.Logger) Service {

	return &loggingService{
		logger:  logger,
		service: s,
	}
}

func (s *loggingService) Run(listener net.Listener, greeting string) error {
	return s.service.Run(listener, greeting)
}

func (s *loggingService) Get(c *Connection, key string) bool {

	ok := s.service.Get(c, key)

	logger := log.With(s.logger, "method", "GET", "key", key, "client", c.ClientAddr)
	level.Debug(logger).Log("ok", ok)

	return ok
}

func (s *loggingService) Put(c *Connection, key string, causalToken string, value string) bool {

	ok := s.service.Put(c, key, causalToken, value)

	logger := log.With(s.logger, "method", "PUT", "key", key, "client", c.ClientAddr)
	level.Debug(logger).Log("ok", ok)

	return ok
}

func (s *loggingService) Sync(c *Connection, key string, causalToken string, values []string) bool {

	ok := s.service.Sync(c, key, causalToken, values)

	logger := log.With(s.logger, "method", "SYNC", "key", key, "client", c.ClientAddr)
	level.Debug(logger).Log("ok", ok)

	return ok
}
