package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Outcome is the terminal state of one Load.
type Outcome int

const (
	// OutcomeHit means the view was served from a fresh store entry.
	OutcomeHit Outcome = iota
	// OutcomeFetched means the executor succeeded and its payload was applied.
	OutcomeFetched
	// OutcomeRejected means the executor failed and the error was recorded.
	OutcomeRejected
	// OutcomeCanceled means the caller abandoned the load; nothing is recorded.
	OutcomeCanceled
	// OutcomeDiscarded means a newer load had already been applied. Only
	// produced when the stale response guard is enabled.
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeFetched:
		return "fetched"
	case OutcomeRejected:
		return "rejected"
	case OutcomeCanceled:
		return "canceled"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Executor performs the network call for one request.
type Executor[Q any, P any] func(ctx context.Context, req Q) (P, error)

// Rules binds a resource family's key shape and merge policy to the coordinator.
type Rules[K comparable, Q any, P any, S any] struct {
	// Window is the family's freshness window.
	Window time.Duration
	// Key resolves the partition key of a request.
	Key func(req Q) K
	// Empty returns the initial family state.
	Empty func() S
	// Hit sets the state from a fresh cached payload.
	Hit func(state *S, req Q, payload P)
	// Fetched merges a freshly fetched payload into the state.
	Fetched func(state *S, req Q, payload P)
	// Message extracts a human readable message from a fetch error. Optional.
	Message func(err error) string
	// FailureMessage is recorded when Message yields nothing.
	FailureMessage string
	// Clone copies state for Snapshot. Optional; a shallow copy is used otherwise.
	Clone func(state S) S
}

// View is the user-facing projection of a family: its state plus load status.
type View[S any] struct {
	State   S      `json:"state"`
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*coordinatorOptions)

type coordinatorOptions struct {
	clock Clock
	guard bool
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(clock Clock) CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.clock = clock
	}
}

// WithStaleResponseGuard tags each load with a sequence number and drops
// responses that complete after a newer load has already been applied.
// Without it the last load to complete wins.
func WithStaleResponseGuard() CoordinatorOption {
	return func(o *coordinatorOptions) {
		o.guard = true
	}
}

// Coordinator runs the load state machine for one resource family. It owns
// the family's view; all mutations go through its methods and are applied
// under its mutex. Only the executor call runs unlocked, so overlapping loads
// race freely.
type Coordinator[K comparable, Q any, P any, S any] struct {
	name   string
	store  Store[K, P]
	fetch  Executor[Q, P]
	rules  Rules[K, Q, P, S]
	clock  Clock
	guard  bool
	logger zerolog.Logger

	mu      sync.Mutex
	view    View[S]
	seq     uint64
	applied uint64
}

// NewCoordinator creates a coordinator with an empty view.
func NewCoordinator[K comparable, Q any, P any, S any](
	name string,
	store Store[K, P],
	fetch Executor[Q, P],
	rules Rules[K, Q, P, S],
	logger zerolog.Logger,
	opts ...CoordinatorOption,
) (*Coordinator[K, Q, P, S], error) {
	if store == nil {
		return nil, errors.New("store cannot be nil")
	}
	if fetch == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if rules.Key == nil || rules.Empty == nil || rules.Hit == nil || rules.Fetched == nil {
		return nil, errors.New("rules must define Key, Empty, Hit and Fetched")
	}
	if rules.Window <= 0 {
		return nil, fmt.Errorf("freshness window must be positive, got %s", rules.Window)
	}

	options := coordinatorOptions{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&options)
	}

	return &Coordinator[K, Q, P, S]{
		name:   name,
		store:  store,
		fetch:  fetch,
		rules:  rules,
		clock:  options.clock,
		guard:  options.guard,
		logger: logger.With().Str("component", "Coordinator").Str("family", name).Logger(),
		view:   View[S]{State: rules.Empty()},
	}, nil
}

// Name returns the family name.
func (c *Coordinator[K, Q, P, S]) Name() string {
	return c.name
}

// Load runs one request through the state machine. Failures are recorded in
// the view rather than returned.
func (c *Coordinator[K, Q, P, S]) Load(ctx context.Context, req Q, force bool) Outcome {
	key := c.rules.Key(req)
	logger := c.logger.With().Str("request_id", uuid.NewString()).Interface("key", key).Bool("force", force).Logger()

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.view.Loading = true
	c.view.Error = ""
	c.mu.Unlock()

	// Remote stores are read without the lock so snapshots and setters are
	// not held up by a network round trip.
	entry, err := c.store.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("Cache read failed, treating as a miss.")
		entry = nil
	}
	if IsFresh(entry, c.clock.Now(), force, c.rules.Window) {
		return c.applyHit(logger, seq, req, entry)
	}

	logger.Debug().Msg("Cache miss, fetching.")
	payload, err := c.fetch(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.guard && seq < c.applied {
		logger.Debug().Uint64("seq", seq).Uint64("applied", c.applied).Msg("Discarding stale response.")
		return OutcomeDiscarded
	}
	c.applied = seq

	if err != nil {
		c.view.Loading = false
		if errors.Is(err, context.Canceled) {
			logger.Debug().Msg("Load canceled.")
			return OutcomeCanceled
		}
		c.view.Error = c.failureMessage(err)
		logger.Error().Err(err).Msg("Fetch failed.")
		return OutcomeRejected
	}

	// The entry outlives the request, so a caller cancelling after the fetch
	// completed must not lose it.
	if err := c.store.Put(context.WithoutCancel(ctx), key, payload, c.clock.Now()); err != nil {
		logger.Warn().Err(err).Msg("Cache write failed.")
	}
	c.rules.Fetched(&c.view.State, req, payload)
	c.view.Loading = false
	logger.Debug().Msg("Fetched and applied.")
	return OutcomeFetched
}

func (c *Coordinator[K, Q, P, S]) applyHit(logger zerolog.Logger, seq uint64, req Q, entry *Entry[P]) Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.guard && seq < c.applied {
		logger.Debug().Uint64("seq", seq).Uint64("applied", c.applied).Msg("Discarding stale cache hit.")
		return OutcomeDiscarded
	}
	c.applied = seq
	c.rules.Hit(&c.view.State, req, entry.Payload)
	c.view.Loading = false
	logger.Debug().Time("fetched_at", entry.FetchedAt).Msg("Served from cache.")
	return OutcomeHit
}

// Update applies a direct mutation to the state under the coordinator's lock.
func (c *Coordinator[K, Q, P, S]) Update(fn func(state *S)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.view.State)
}

// Clear resets the view and empties the store.
func (c *Coordinator[K, Q, P, S]) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.view = View[S]{State: c.rules.Empty()}
	c.applied = c.seq
	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear %s store: %w", c.name, err)
	}
	c.logger.Info().Msg("Cleared view and store.")
	return nil
}

// Snapshot returns a copy of the current view.
func (c *Coordinator[K, Q, P, S]) Snapshot() View[S] {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := c.view
	if c.rules.Clone != nil {
		view.State = c.rules.Clone(c.view.State)
	}
	return view
}

func (c *Coordinator[K, Q, P, S]) failureMessage(err error) string {
	if c.rules.Message != nil {
		if msg := c.rules.Message(err); msg != "" {
			return msg
		}
	}
	if c.rules.FailureMessage != "" {
		return c.rules.FailureMessage
	}
	return "Failed to fetch " + c.name
}
