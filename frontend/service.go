package frontend

import (
	"bufio"
	"fmt"
	"net"
	"strings"

	"crypto/tls"

	"github.com/egisj/Dotted-Version-Vectors/crdt"
	"github.com/egisj/Dotted-Version-Vectors/store"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
)

// Structs

type service struct {
	logger log.Logger
	store  store.Service
}

// Interfaces

// Service defines the interface a frontend replica exposes to
// clients: a small line-oriented protocol proxied straight to
// the embedded store, without any IMAP or worker-routing concept.
type Service interface {

	// Run loops over incoming client connections and dispatches
	// each one to a goroutine handling its request lines.
	Run(listener net.Listener, greeting string) error

	// Get handles the "GET key" command.
	Get(c *Connection, key string) bool

	// Put handles the "PUT key causal value" command.
	Put(c *Connection, key string, causalToken string, value string) bool

	// Sync handles the "SYNC key causal values" command, folding
	// a client-reported remote Clock into the local one.
	Sync(c *Connection, key string, causalToken string, values []string) bool
}

// Functions

// NewService takes in a logger and the store to front and
// returns a service struct implementing Service.
func NewService(logger log.Logger, s store.Service) Service {

	return &service{
		logger: logger,
		store:  s,
	}
}

// Run loops over incoming requests at the frontend and
// dispatches each one to a goroutine taking care of the
// commands supplied by that client.
func (s *service) Run(listener net.Listener, greeting string) error {

	for {
		// Accept request or fail on error.
		conn, err := listener.Accept()
		if err != nil {
			return fmt.Errorf("[frontend.Run] accepting incoming connection failed with: %v", err)
		}

		// Dispatch into own goroutine.
		go s.handleConnection(conn, greeting)
	}
}

// handleConnection reads request lines from one client
// connection until it disconnects or sends QUIT, dispatching
// each recognized command to the matching Service method.
func (s *service) handleConnection(conn net.Conn, greeting string) {

	// Assert we are talking via a TLS connection.
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		level.Info(s.logger).Log("msg", "connection not accepted because it is no *tls.Conn")
		return
	}

	c := &Connection{
		IncConn:    tlsConn,
		IncReader:  bufio.NewReader(tlsConn),
		ClientAddr: tlsConn.RemoteAddr().String(),
	}

	if err := c.Send(fmt.Sprintf("OK %s", greeting)); err != nil {
		level.Error(s.logger).Log("msg", "error while sending greeting", "client", c.ClientAddr, "err", err)
		return
	}

	cmdOK := true

	for cmdOK {

		rawReq, err := c.Receive()
		if err != nil {

			if err.Error() == "EOF" {
				level.Debug(s.logger).Log("msg", "client disconnected", "client", c.ClientAddr)
			} else {
				level.Error(s.logger).Log("msg", "error while receiving text from client", "client", c.ClientAddr, "err", err)
			}

			break
		}

		fields := strings.Fields(rawReq)
		if len(fields) == 0 {
			continue
		}

		switch strings.ToUpper(fields[0]) {

		case "GET":
			if len(fields) != 2 {
				cmdOK = s.sendErr(c, "GET requires exactly one key argument")
				continue
			}
			cmdOK = s.Get(c, fields[1])

		case "PUT":
			if len(fields) < 4 {
				cmdOK = s.sendErr(c, "PUT requires a key, a causal token and a value")
				continue
			}
			cmdOK = s.Put(c, fields[1], fields[2], strings.Join(fields[3:], " "))

		case "SYNC":
			if len(fields) != 4 {
				cmdOK = s.sendErr(c, "SYNC requires a key, a causal token and comma-separated values")
				continue
			}
			cmdOK = s.Sync(c, fields[1], fields[2], strings.Split(fields[3], ","))

		case "QUIT":
			_ = c.Send("OK bye")
			cmdOK = false

		default:
			cmdOK = s.sendErr(c, fmt.Sprintf("unknown command %q", fields[0]))
		}
	}

	c.IncConn.Close()
}

// sendErr writes a tagged error response to the client. It
// returns false when even the error response could not be
// delivered, signalling the caller to tear down the connection.
func (s *service) sendErr(c *Connection, msg string) bool {

	if err := c.Send(fmt.Sprintf("ERR %s", msg)); err != nil {
		level.Error(s.logger).Log("msg", "error while sending error response", "client", c.ClientAddr, "err", err)
		return false
	}

	return true
}

// Get handles the GET key command: it fetches the current Clock
// for key from the store and reports its causal summary plus
// currently live values back to the client.
func (s *service) Get(c *Connection, key string) bool {

	clock, err := s.store.Get(key)
	if err != nil {
		return s.sendErr(c, err.Error())
	}

	causal := crdt.Join(clock)
	values := crdt.Values(clock)

	valStrs := make([]string, len(values))
	for i, v := range values {
		valStrs[i] = fmt.Sprintf("%v", v)
	}

	if err := c.Send(fmt.Sprintf("OK %s %s", causal.String(), strings.Join(valStrs, ","))); err != nil {
		level.Error(s.logger).Log("msg", "error while sending GET response", "client", c.ClientAddr, "err", err)
		return false
	}

	return true
}

// Put handles the PUT key causal value command: it applies value
// as a new write against the causal context the client last saw
// and reports the resulting causal summary back to the client.
func (s *service) Put(c *Connection, key string, causalToken string, value string) bool {

	causal, err := crdt.ParseCausal(causalToken)
	if err != nil {
		return s.sendErr(c, err.Error())
	}

	clock, err := s.store.Put(key, value, causal)
	if err != nil {
		return s.sendErr(c, err.Error())
	}

	if err := c.Send(fmt.Sprintf("OK %s", crdt.Join(clock).String())); err != nil {
		level.Error(s.logger).Log("msg", "error while sending PUT response", "client", c.ClientAddr, "err", err)
		return false
	}

	return true
}

// Sync handles the SYNC key causal values command: it folds a
// remote replica's reported Clock for key into local state, the
// way comm's receiver does on a background sync message, but
// reachable directly by a client driver.
func (s *service) Sync(c *Connection, key string, causalToken string, values []string) bool {

	causal, err := crdt.ParseCausal(causalToken)
	if err != nil {
		return s.sendErr(c, err.Error())
	}

	anon := make([]interface{}, len(values))
	for i, v := range values {
		anon[i] = v
	}

	remote := crdt.NewClockFromCausal(causal, anon...)

	if err := s.store.SyncRemote(key, remote); err != nil {
		return s.sendErr(c, err.Error())
	}

	if err := c.Send("OK"); err != nil {
		level.Error(s.logger).Log("msg", "error while sending SYNC response", "client", c.ClientAddr, "err", err)
		return false
	}

	return true
}
