package store

import (
	"errors"
	"fmt"
	"sync"

	"github.com/egisj/Dotted-Version-Vectors/crdt"
)

// Errors

// ErrKeyNotFound is returned by Get and Resolve when no
// value has ever been written for the requested key.
var ErrKeyNotFound = errors.New("store: key not found")

// Structs

// Service defines the interface a store replica's data layer
// provides to its frontend listener and to the replication
// layer in package comm.
type Service interface {

	// Get returns the current Clock held for key.
	Get(key string) (crdt.Clock, error)

	// Put writes value under key. context is the causal
	// context the client last observed for this key, as
	// produced by a prior Get's Join; an empty Causal means
	// the client wrote without having read first.
	Put(key string, value interface{}, context crdt.Causal) (crdt.Clock, error)

	// SyncRemote merges a Clock received from another replica
	// into this replica's state for key.
	SyncRemote(key string, remote crdt.Clock) error

	// Resolve collapses every sibling currently live under key
	// into the single value f returns, then stores and returns
	// the resulting Clock.
	Resolve(key string, f func([]interface{}) interface{}) (crdt.Clock, error)
}

type entry struct {
	mu      sync.Mutex
	clock   crdt.Clock
	written bool
}

type service struct {
	name string

	keysMu sync.Mutex
	keys   map[string]*entry

	peers map[string]chan *Broadcast
}

// Broadcast is one key's Clock queued for replication to
// every configured peer, handed to package comm's sender.
type Broadcast struct {
	Key   string
	Clock crdt.Clock
}

// NewService returns a Service for replica name. peers holds
// the channels that Put and Resolve offer each resulting Clock
// to, each one read by whatever forwards broadcasts to a
// comm.Sender.
func NewService(name string, peers map[string]chan *Broadcast) Service {
	return &service{
		name:  name,
		keys:  make(map[string]*entry),
		peers: peers,
	}
}

// entryFor returns the entry for key, creating it if absent.
func (s *service) entryFor(key string) *entry {

	s.keysMu.Lock()
	defer s.keysMu.Unlock()

	e, ok := s.keys[key]
	if !ok {
		e = &entry{}
		s.keys[key] = e
	}

	return e
}

// broadcast fans out key's current clock to every peer's
// sender channel. A peer whose channel is currently full is
// skipped rather than blocking Put/Resolve on a slow peer. A
// skipped Clock is not offered again; the next Put or Resolve
// on the same key broadcasts that key's full Clock.
func (s *service) broadcast(key string, clock crdt.Clock) {

	for _, ch := range s.peers {
		select {
		case ch <- &Broadcast{Key: key, Clock: clock}:
		default:
		}
	}
}

func (s *service) Get(key string) (crdt.Clock, error) {

	e := s.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.written {
		return crdt.Clock{}, fmt.Errorf("store.Get: %w", ErrKeyNotFound)
	}

	return e.clock, nil
}

func (s *service) Put(key string, value interface{}, context crdt.Causal) (crdt.Clock, error) {

	e := s.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	var next crdt.Clock
	var err error

	if len(context.Entries) == 0 {
		next, err = crdt.UpdateWithContext(crdt.NewClock(value), e.clock, s.name)
	} else {
		next, err = crdt.UpdateWithContext(crdt.NewClockFromCausal(context, value), e.clock, s.name)
	}

	if err != nil {
		return crdt.Clock{}, fmt.Errorf("store.Put: %w", err)
	}

	e.clock = next
	e.written = true

	s.broadcast(key, next)

	return next, nil
}

func (s *service) SyncRemote(key string, remote crdt.Clock) error {

	e := s.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.clock = crdt.Sync(e.clock, remote)
	e.written = true

	return nil
}

func (s *service) Resolve(key string, f func([]interface{}) interface{}) (crdt.Clock, error) {

	e := s.entryFor(key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.written {
		return crdt.Clock{}, fmt.Errorf("store.Resolve: %w", ErrKeyNotFound)
	}

	resolved, err := crdt.Reconcile(f, e.clock)
	if err != nil {
		return crdt.Clock{}, fmt.Errorf("store.Resolve: %w", err)
	}

	e.clock = resolved

	s.broadcast(key, resolved)

	return resolved, nil
}
