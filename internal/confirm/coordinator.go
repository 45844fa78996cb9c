// Package confirm turns acknowledgement events from the chat surface into
// executed or cancelled pending actions. The store's atomic consume is the
// only compound critical section in the system; the ATS call always runs
// after the lock is released, so a slow mutation never blocks other
// acknowledgements.
package confirm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dativo-io/warden/internal/audit"
	wardenotel "github.com/dativo-io/warden/internal/otel"
	"github.com/dativo-io/warden/internal/pending"
	"github.com/dativo-io/warden/internal/sanitize"
)

var tracer = wardenotel.Tracer("github.com/dativo-io/warden/internal/confirm")

// Signal is the polarity of an acknowledgement.
type Signal int

const (
	Positive Signal = iota
	Negative
)

// AckEvent is an acknowledgement from the chat platform: a reaction on a
// specific prior message by a specific actor.
type AckEvent struct {
	Signal     Signal
	Actor      string
	Coordinate string // channel + message timestamp of the proposal reply
	Channel    string
	ThreadTS   string // thread to post the outcome into
}

// Executor performs the ATS mutation behind a consumed action and returns
// a human-readable summary.
type Executor interface {
	Execute(ctx context.Context, action pending.Action) (string, error)
}

// Replier posts outcome text back to the chat surface.
type Replier interface {
	Reply(ctx context.Context, channel, threadTS, text string) error
}

// Auditor records confirmation outcomes. May be satisfied by *audit.Store.
type Auditor interface {
	Record(ctx context.Context, ev audit.Event)
}

// Coordinator mediates between the pending store, the ATS executor and
// the chat surface.
type Coordinator struct {
	store     *pending.Store
	executor  Executor
	replier   Replier
	sanitizer *sanitize.Sanitizer
	auditor   Auditor // optional
}

// NewCoordinator wires a Coordinator. auditor may be nil.
func NewCoordinator(store *pending.Store, executor Executor, replier Replier, sanitizer *sanitize.Sanitizer, auditor Auditor) *Coordinator {
	return &Coordinator{
		store:     store,
		executor:  executor,
		replier:   replier,
		sanitizer: sanitizer,
		auditor:   auditor,
	}
}

// HandleAck processes one acknowledgement event.
//
// Positive from the owner consumes the action and executes it. Positive
// from anyone else is a silent no-op toward the reactor: the action stays
// live for its owner, and only the log and audit trail see the mismatch.
// Negative from the owner cancels with a visible reply. Acks against
// expired or unknown coordinates disappear without a reply; the reactor
// cannot distinguish "never existed" from "expired", and that is the
// point.
func (c *Coordinator) HandleAck(ctx context.Context, ev AckEvent) error {
	ctx, span := tracer.Start(ctx, "confirm.handle_ack",
		trace.WithAttributes(
			attribute.String("coordinate", ev.Coordinate),
			attribute.Bool("positive", ev.Signal == Positive),
		))
	defer span.End()

	action, result := c.store.Consume(ev.Coordinate, ev.Actor)
	switch result {
	case pending.NotFound:
		log.Debug().
			Str("coordinate", ev.Coordinate).
			Str("actor", ev.Actor).
			Msg("ack_no_live_action")
		c.record(ctx, audit.Event{
			Kind:       audit.KindConfirmation,
			Outcome:    audit.OutcomeExpiredOrStale,
			Actor:      ev.Actor,
			Coordinate: ev.Coordinate,
		})
		return nil

	case pending.NotOwner:
		log.Warn().
			Str("coordinate", ev.Coordinate).
			Str("actor", ev.Actor).
			Func(wardenotel.LogTraceFields(ctx)).
			Msg("ack_owner_mismatch")
		c.record(ctx, audit.Event{
			Kind:       audit.KindConfirmation,
			Outcome:    audit.OutcomeOwnerMismatch,
			Actor:      ev.Actor,
			Coordinate: ev.Coordinate,
		})
		return nil
	}

	// From here the actor is the owner and the action is removed; this
	// goroutine holds the only reference.
	if ev.Signal == Negative {
		log.Info().
			Str("coordinate", ev.Coordinate).
			Str("kind", action.Kind).
			Str("actor", ev.Actor).
			Msg("action_cancelled")
		c.record(ctx, audit.Event{
			Kind:       audit.KindConfirmation,
			Outcome:    audit.OutcomeRejected,
			Actor:      ev.Actor,
			Coordinate: ev.Coordinate,
			Operation:  action.Kind,
		})
		return c.replier.Reply(ctx, ev.Channel, ev.ThreadTS,
			fmt.Sprintf("Cancelled: %s will not be executed.", action.Kind))
	}

	summary, err := c.executor.Execute(ctx, action)
	if err != nil {
		scrubbed := c.sanitizer.ScrubSecrets(err.Error())
		log.Error().
			Str("coordinate", ev.Coordinate).
			Str("kind", action.Kind).
			Str("error", scrubbed).
			Func(wardenotel.LogTraceFields(ctx)).
			Msg("action_execute_failed")
		c.record(ctx, audit.Event{
			Kind:       audit.KindConfirmation,
			Outcome:    audit.OutcomeExecuteFailed,
			Actor:      ev.Actor,
			Coordinate: ev.Coordinate,
			Operation:  action.Kind,
			Detail:     scrubbed,
		})
		return c.replier.Reply(ctx, ev.Channel, ev.ThreadTS,
			fmt.Sprintf("Confirmed %s, but it failed: %s", action.Kind, scrubbed))
	}

	log.Info().
		Str("coordinate", ev.Coordinate).
		Str("kind", action.Kind).
		Str("actor", ev.Actor).
		Msg("action_executed")
	c.record(ctx, audit.Event{
		Kind:       audit.KindConfirmation,
		Outcome:    audit.OutcomeExecuted,
		Actor:      ev.Actor,
		Coordinate: ev.Coordinate,
		Operation:  action.Kind,
	})
	return c.replier.Reply(ctx, ev.Channel, ev.ThreadTS, summary)
}

func (c *Coordinator) record(ctx context.Context, ev audit.Event) {
	if c.auditor == nil {
		return
	}
	c.auditor.Record(ctx, ev)
}
