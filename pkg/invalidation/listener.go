// Package invalidation applies cache invalidation instructions pushed by the
// backend, so a family can be cleared or refreshed without waiting for its
// freshness window to lapse.
package invalidation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/illmade-knight/go-clientcache/pkg/cache"
	"github.com/illmade-knight/go-clientcache/pkg/types"
)

// Action is what to do to a family.
type Action string

const (
	// ActionClear empties the family's view and store.
	ActionClear Action = "clear"
	// ActionRefresh forces a fetch of one partition.
	ActionRefresh Action = "refresh"
)

// Family is the part of a resource family the listener drives. The partition
// is a page for the feeds and a year for receipts; zero selects the default.
type Family interface {
	Name() string
	Load(ctx context.Context, partition int, force bool) cache.Outcome
	Clear(ctx context.Context) error
}

// Instruction is a decoded invalidation message.
type Instruction struct {
	Family    string
	Action    Action
	Partition int
}

// ErrMalformed marks a message that can never be applied.
var ErrMalformed = errors.New("malformed invalidation message")

// Decode reads an instruction from a message's attributes, falling back to a
// JSON payload of the same shape: {"family":"receipts","action":"refresh","year":2025}.
// The partition may be given as "year" or "page".
func Decode(msg types.ConsumedMessage) (Instruction, error) {
	lookup := func(name string) (string, bool) {
		v, ok := msg.Attributes[name]
		return v, ok
	}
	if _, ok := msg.Attributes["family"]; !ok && gjson.ValidBytes(msg.Payload) {
		body := gjson.ParseBytes(msg.Payload)
		lookup = func(name string) (string, bool) {
			r := body.Get(name)
			return r.String(), r.Exists()
		}
	}

	family, _ := lookup("family")
	action, _ := lookup("action")
	if family == "" || action == "" {
		return Instruction{}, fmt.Errorf("%w: family and action are required", ErrMalformed)
	}

	instr := Instruction{Family: family, Action: Action(action)}
	for _, name := range []string{"year", "page"} {
		raw, ok := lookup(name)
		if !ok || raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Instruction{}, fmt.Errorf("%w: invalid %s %q", ErrMalformed, name, raw)
		}
		instr.Partition = n
		break
	}
	return instr, nil
}

// Listener consumes invalidation messages and applies them to registered families.
type Listener struct {
	consumer MessageConsumer
	families map[string]Family
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

// NewListener creates a listener for the given families.
func NewListener(consumer MessageConsumer, logger zerolog.Logger, families ...Family) (*Listener, error) {
	if consumer == nil {
		return nil, errors.New("consumer cannot be nil")
	}
	byName := make(map[string]Family, len(families))
	for _, f := range families {
		byName[f.Name()] = f
	}
	return &Listener{
		consumer: consumer,
		families: byName,
		logger:   logger.With().Str("component", "InvalidationListener").Logger(),
	}, nil
}

// Start starts the consumer and processes messages until it stops.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		for msg := range l.consumer.Messages() {
			l.handle(ctx, msg)
		}
	}()
	l.logger.Info().Int("families", len(l.families)).Msg("Invalidation listener started.")
	return nil
}

// Stop stops the consumer and waits for in-flight messages.
func (l *Listener) Stop(ctx context.Context) error {
	err := l.consumer.Stop(ctx)
	l.wg.Wait()
	l.logger.Info().Msg("Invalidation listener stopped.")
	return err
}

func (l *Listener) handle(ctx context.Context, msg types.ConsumedMessage) {
	logger := l.logger.With().Str("msg_id", msg.ID).Logger()

	instr, err := Decode(msg)
	if err != nil {
		logger.Warn().Err(err).Msg("Dropping invalidation message.")
		ack(msg)
		return
	}
	logger = logger.With().Str("family", instr.Family).Str("action", string(instr.Action)).Logger()

	family, ok := l.families[instr.Family]
	if !ok {
		logger.Warn().Msg("Dropping invalidation for unknown family.")
		ack(msg)
		return
	}

	if err := apply(ctx, family, instr); err != nil {
		if errors.Is(err, ErrMalformed) {
			logger.Warn().Err(err).Msg("Dropping invalidation message.")
			ack(msg)
			return
		}
		logger.Error().Err(err).Msg("Failed to apply invalidation, requesting redelivery.")
		nack(msg)
		return
	}
	logger.Info().Int("partition", instr.Partition).Msg("Applied invalidation.")
	ack(msg)
}

func apply(ctx context.Context, family Family, instr Instruction) error {
	switch instr.Action {
	case ActionClear:
		return family.Clear(ctx)
	case ActionRefresh:
		switch outcome := family.Load(ctx, instr.Partition, true); outcome {
		case cache.OutcomeRejected, cache.OutcomeCanceled:
			return fmt.Errorf("refresh of %s ended %s", family.Name(), outcome)
		default:
			return nil
		}
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformed, instr.Action)
	}
}

func ack(msg types.ConsumedMessage) {
	if msg.Ack != nil {
		msg.Ack()
	}
}

func nack(msg types.ConsumedMessage) {
	if msg.Nack != nil {
		msg.Nack()
	}
}
