// Package playback arbitrates which track currently owns audible playback.
//
// A Coordinator is constructed once per storefront and handed to every media
// controller and hover-preview machine. It holds a single ownership slot: a
// request from a new owner stops every stopper registered for the previous
// owner before the grant is returned, so callers that play only after
// RequestOwnership returns never overlap two audible sources.
package playback

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stopper is implemented by anything that must fall silent when its track
// loses ownership (cards, controllers).
type Stopper interface {
	Stop()
}

// StopperFunc adapts a plain function to the Stopper interface.
type StopperFunc func()

// Stop calls f.
func (f StopperFunc) Stop() { f() }

// Session is a single uninterrupted span of ownership by one track.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	StartedAt time.Time `json:"started_at"`
}

// ChangeKind describes how the ownership slot changed.
type ChangeKind int

const (
	ChangeAcquired ChangeKind = iota // slot was empty and is now owned
	ChangeReplaced                   // a new owner pre-empted the previous one
	ChangeReleased                   // slot is empty again
)

// String returns a human-readable representation of the ChangeKind
func (k ChangeKind) String() string {
	switch k {
	case ChangeAcquired:
		return "acquired"
	case ChangeReplaced:
		return "replaced"
	case ChangeReleased:
		return "released"
	default:
		return "unknown"
	}
}

// Change is delivered to observers after every ownership transition.
type Change struct {
	Kind     ChangeKind
	Previous *Session // session that ended, nil when the slot was empty
	Current  *Session // session that started, nil on release
	At       time.Time
}

// OwnerID returns the owner after the change, or "" when released.
func (c Change) OwnerID() string {
	if c.Current == nil {
		return ""
	}
	return c.Current.OwnerID
}

// Grant is proof of a successful ownership request. It stays valid until a
// newer request or a release happens, whichever comes first.
type Grant struct {
	OwnerID    string
	generation uint64
}

type registration struct {
	ownerID string
	stopper Stopper
}

// Coordinator is the single-slot ownership arbiter.
type Coordinator struct {
	// transition serializes RequestOwnership so the stop-then-grant sequence
	// of one request never interleaves with another.
	transition sync.Mutex

	mu         sync.Mutex
	session    *Session
	generation uint64

	nextID    uint64
	stoppers  map[uint64]registration
	observers map[uint64]func(Change)

	// queued changes are delivered in order by whichever caller drains first
	pending  []Change
	draining bool

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithLogger attaches a logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger.With().Str("component", "coordinator").Logger()
	}
}

// New creates a Coordinator with an empty ownership slot.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{
		stoppers:  make(map[uint64]registration),
		observers: make(map[uint64]func(Change)),
		now:       time.Now,
		newID:     uuid.NewString,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register associates a stopper with a track id. The returned function
// removes the registration and is safe to call more than once.
func (c *Coordinator) Register(ownerID string, s Stopper) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.stoppers[id] = registration{ownerID: ownerID, stopper: s}
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.stoppers, id)
			c.mu.Unlock()
		})
	}
}

// Subscribe registers an observer for ownership changes. Observers run
// synchronously and in order; they must not block.
func (c *Coordinator) Subscribe(fn func(Change)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// RequestOwnership makes ownerID the owner of audible playback. If another
// track owns the slot, every stopper registered for it has been called by the
// time this returns. The newest request always wins: grants handed out by
// earlier requests stop being held.
func (c *Coordinator) RequestOwnership(ownerID string) Grant {
	c.transition.Lock()
	defer c.transition.Unlock()

	c.mu.Lock()
	c.generation++
	grant := Grant{OwnerID: ownerID, generation: c.generation}

	prev := c.session
	if prev != nil && prev.OwnerID == ownerID {
		c.mu.Unlock()
		return grant
	}

	var toStop []Stopper
	if prev != nil {
		for _, r := range c.stoppers {
			if r.ownerID == prev.OwnerID {
				toStop = append(toStop, r.stopper)
			}
		}
	}

	now := c.now()
	next := &Session{ID: c.newID(), OwnerID: ownerID, StartedAt: now}
	c.session = next
	c.mu.Unlock()

	// The slot already names the new owner, so a stopper that releases its
	// own id while stopping is a harmless no-op.
	for _, s := range toStop {
		s.Stop()
	}

	change := Change{Kind: ChangeAcquired, Current: next, At: now}
	if prev != nil {
		change.Kind = ChangeReplaced
		change.Previous = prev
		c.logger.Debug().
			Str("previous", prev.OwnerID).
			Str("owner", ownerID).
			Int("stopped", len(toStop)).
			Msg("Ownership pre-empted")
	} else {
		c.logger.Debug().Str("owner", ownerID).Msg("Ownership acquired")
	}

	c.publish(change)
	return grant
}

// Holds reports whether grant is still the latest grant and its owner still
// owns the slot.
func (c *Coordinator) Holds(g Grant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.OwnerID == g.OwnerID && c.generation == g.generation
}

// Release clears the slot if ownerID currently owns it. Releasing a track
// that is not the owner is a no-op and returns false.
func (c *Coordinator) Release(ownerID string) bool {
	c.mu.Lock()
	if c.session == nil || c.session.OwnerID != ownerID {
		c.mu.Unlock()
		return false
	}
	prev := c.session
	c.session = nil
	c.generation++
	now := c.now()
	c.mu.Unlock()

	c.logger.Debug().Str("owner", ownerID).Msg("Ownership released")
	c.publish(Change{Kind: ChangeReleased, Previous: prev, At: now})
	return true
}

// Owner returns the current owner, if any.
func (c *Coordinator) Owner() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return "", false
	}
	return c.session.OwnerID, true
}

// Session returns a copy of the live session, if any.
func (c *Coordinator) Session() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// publish queues a change and drains the queue unless another caller is
// already draining it. Observers may call back into the Coordinator.
func (c *Coordinator) publish(ch Change) {
	c.mu.Lock()
	c.pending = append(c.pending, ch)
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true

	for len(c.pending) > 0 {
		next := c.pending[0]
		c.pending = c.pending[1:]
		observers := make([]func(Change), 0, len(c.observers))
		for _, fn := range c.observers {
			observers = append(observers, fn)
		}
		c.mu.Unlock()

		for _, fn := range observers {
			fn(next)
		}

		c.mu.Lock()
	}

	c.draining = false
	c.mu.Unlock()
}
