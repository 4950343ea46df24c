// Package countdown provides a cancellable per-second countdown, used for
// reservation holds. It is independent of the cache.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Timer counts down from a number of seconds, one tick per interval. At most
// one countdown runs per Timer; starting a new one cancels the previous.
type Timer struct {
	interval time.Duration
	onTick   func(remaining int)
	logger   zerolog.Logger

	mu         sync.Mutex
	remaining  int
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a stopped Timer. onTick, if set, is called after each decrement
// with the remaining count; it must not call back into the Timer.
func New(interval time.Duration, onTick func(remaining int), logger zerolog.Logger) *Timer {
	if interval <= 0 {
		interval = time.Second
	}
	done := make(chan struct{})
	close(done)
	return &Timer{
		interval: interval,
		onTick:   onTick,
		logger:   logger.With().Str("component", "Countdown").Logger(),
		done:     done,
	}
}

// Start begins counting down from seconds, cancelling any running countdown.
// A non-positive value just stops the timer.
func (t *Timer) Start(ctx context.Context, seconds int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.remaining = max(seconds, 0)
	if t.remaining == 0 {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.generation++
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(runCtx, t.generation, t.done)

	t.logger.Debug().Int("seconds", seconds).Msg("Countdown started.")
}

// Stop cancels the running countdown, if any, keeping the remaining count.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// Remaining returns the seconds left.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// Running reports whether a countdown is active.
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancel != nil
}

// Done returns a channel closed when the current countdown ends, whether it
// reached zero or was stopped.
func (t *Timer) Done() <-chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Timer) stopLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	// Invalidate ticks already in flight from the cancelled run.
	t.generation++
}

func (t *Timer) run(ctx context.Context, generation uint64, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.release(generation)
			return
		case <-ticker.C:
			remaining, ok := t.tick(generation)
			if !ok {
				return
			}
			if t.onTick != nil {
				t.onTick(remaining)
			}
			if remaining == 0 {
				t.logger.Debug().Msg("Countdown finished.")
				return
			}
		}
	}
}

// release forgets the cancel func of a run that ended on its parent context.
func (t *Timer) release(generation uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return
	}
	t.cancel()
	t.cancel = nil
	t.generation++
}

func (t *Timer) tick(generation uint64) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if generation != t.generation {
		return 0, false
	}
	t.remaining--
	if t.remaining <= 0 {
		t.remaining = 0
		t.cancel()
		t.cancel = nil
		t.generation++
	}
	return t.remaining, true
}
