package engagement

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ErrSessionNotFound is returned when no live session exists for an id
var ErrSessionNotFound = errors.New("session not found")

// DefaultShards is used when NewRegistry is given a non-positive shard count
const DefaultShards = 32

// Action tells the Registry what to do with a session after Process
type Action int

const (
	// Commit replaces the live session with the working copy
	Commit Action = iota
	// Terminate removes the session; the next message with its id starts fresh
	Terminate
)

// entry guards one live session. deleted is set under mu when the entry
// leaves the map so that waiters holding a stale pointer retry.
type entry struct {
	mu      sync.Mutex
	session *Session
	fresh   bool
	deleted bool
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Registry maps session ids to their accumulated state. Work on one id is
// serialized; different ids proceed in parallel.
type Registry struct {
	shards []*shard
	now    func() time.Time
}

// NewRegistry creates a registry with the given number of lock shards
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = DefaultShards
	}
	r := &Registry{
		shards: make([]*shard, shards),
		now:    time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return r
}

func (r *Registry) shardFor(id string) *shard {
	return r.shards[xxhash.Sum64String(id)%uint64(len(r.shards))]
}

func (r *Registry) lookup(id string) *entry {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.entries[id]
}

func (r *Registry) getOrCreate(id string) *entry {
	if e := r.lookup(id); e != nil {
		return e
	}

	sh := r.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if e, ok := sh.entries[id]; ok {
		return e
	}
	e := &entry{session: newSession(id, r.now()), fresh: true}
	sh.entries[id] = e
	return e
}

// remove drops e from its shard. The caller must hold e.mu.
func (r *Registry) remove(id string, e *entry) {
	e.deleted = true

	sh := r.shardFor(id)
	sh.mu.Lock()
	if sh.entries[id] == e {
		delete(sh.entries, id)
	}
	sh.mu.Unlock()
}

// Process runs fn with exclusive access to the session for id, creating the
// session if it does not exist. fn works on a copy: the live session is only
// replaced when fn returns Commit with a nil error, and removed when it
// returns Terminate. On error or panic the live session is left as it was.
func (r *Registry) Process(id string, fn func(s *Session) (Action, error)) error {
	for {
		e := r.getOrCreate(id)
		done, err := r.processEntry(id, e, fn)
		if done {
			return err
		}
	}
}

func (r *Registry) processEntry(id string, e *entry, fn func(s *Session) (Action, error)) (done bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// terminated while we waited; start over with a new entry
	if e.deleted {
		return false, nil
	}

	work := e.session.Clone()
	action, err := runGuarded(id, work, fn)
	if err != nil {
		if e.fresh {
			r.remove(id, e)
		}
		return true, err
	}

	switch action {
	case Terminate:
		r.remove(id, e)
	default:
		e.session = work
		e.fresh = false
	}
	return true, nil
}

func runGuarded(id string, s *Session, fn func(s *Session) (Action, error)) (action Action, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("session %s: panic: %v", id, p)
		}
	}()
	return fn(s)
}

// Get returns a copy of the live session for id
func (r *Registry) Get(id string) (*Session, error) {
	e := r.lookup(id)
	if e == nil {
		return nil, ErrSessionNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted || e.fresh {
		return nil, ErrSessionNotFound
	}
	return e.session.Clone(), nil
}

// Exists reports whether a live session exists for id
func (r *Registry) Exists(id string) bool {
	_, err := r.Get(id)
	return err == nil
}

// Delete removes the session for id, waiting for any in-flight Process to
// finish. It reports whether a session was removed.
func (r *Registry) Delete(id string) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deleted {
		return false
	}
	r.remove(id, e)
	return true
}

// Count returns the number of tracked sessions, including any whose first
// message is still being processed
func (r *Registry) Count() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}
