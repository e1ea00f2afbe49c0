// Package tracker drives the per-fingerprint alert lifecycle.
//
// States are {absent, active}. The tracker holds no state of its own between
// calls; everything durable lives in the store, so restart recovery is just
// re-reading it.
package tracker

import (
	"context"
	"fmt"
	"sync"

	"alertbridge/internal/alert"
	"alertbridge/internal/notify"
	"alertbridge/internal/storage"
	logx "alertbridge/pkg/logx"
)

// State is the explicit lifecycle state of one fingerprint.
type State int

const (
	StateAbsent State = iota
	StateActive
)

func (s State) String() string {
	if s == StateActive {
		return "active"
	}
	return "absent"
}

// Transition reports what Process did with an event.
type Transition string

const (
	TransitionNone     Transition = "none"
	TransitionNew      Transition = "new"
	TransitionUpdated  Transition = "updated"
	TransitionResolved Transition = "resolved"
)

type Tracker struct {
	store    storage.Store
	notifier notify.Notifier
	log      logx.Logger

	// mu serializes read-modify-write sequences against the store. Event
	// volume is low; a single lock is simpler than per-fingerprint locking
	// and also covers duplicate deliveries racing each other.
	mu sync.Mutex
}

func New(store storage.Store, notifier notify.Notifier, log logx.Logger) *Tracker {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{store: store, notifier: notifier, log: log}
}

// State reports whether the fingerprint is currently active.
func (t *Tracker) State(ctx context.Context, fingerprint string) (State, error) {
	ok, err := t.store.HasActiveAlert(ctx, fingerprint)
	if err != nil {
		return StateAbsent, err
	}
	if ok {
		return StateActive, nil
	}
	return StateAbsent, nil
}

// Process applies one inbound event to the store and emits the matching
// notification. Events are at-least-once and possibly out of order; duplicate
// firing events are idempotent updates, and a resolution for an unseen
// fingerprint is a logged no-op (this tracker does not reorder).
//
// Storage errors propagate unretried. Notification errors are returned after
// the state change has been persisted, so a failed send never loses state.
func (t *Tracker) Process(ctx context.Context, ev alert.Event) (Transition, error) {
	if err := ev.Validate(); err != nil {
		t.log.Warn("rejecting malformed alert event", logx.String("status", string(ev.Status)), logx.Err(err))
		return TransitionNone, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Status {
	case alert.StatusResolved:
		return t.resolve(ctx, ev)
	default:
		return t.fire(ctx, ev)
	}
}

func (t *Tracker) fire(ctx context.Context, ev alert.Event) (Transition, error) {
	stored, active, err := t.store.GetActiveAlert(ctx, ev.Fingerprint)
	if err != nil {
		return TransitionNone, err
	}

	rec := ev.Record()
	if active {
		// Identity and message binding are preserved; only the payload moves.
		rec.EventID = stored.EventID
	}
	if err := t.store.PutActiveAlert(ctx, rec); err != nil {
		return TransitionNone, err
	}

	if active && rec.EventID != "" {
		if err := t.notifier.EditExisting(ctx, rec.EventID, rec); err != nil {
			return TransitionUpdated, fmt.Errorf("edit notification for %s: %w", ev.Fingerprint, err)
		}
		t.log.Debug("alert updated", logx.String("fingerprint", ev.Fingerprint), logx.String("event_id", rec.EventID))
		return TransitionUpdated, nil
	}

	// New alert, or a prior announce attempt failed before an event id was
	// recorded; either way this fingerprint has no message yet.
	eventID, err := t.notifier.SendNew(ctx, rec)
	if err != nil {
		return TransitionNew, fmt.Errorf("announce %s: %w", ev.Fingerprint, err)
	}
	if err := t.store.PutMapping(ctx, eventID, ev.Fingerprint); err != nil {
		return TransitionNew, err
	}
	rec.EventID = eventID
	if err := t.store.PutActiveAlert(ctx, rec); err != nil {
		return TransitionNew, err
	}
	t.log.Info("alert announced",
		logx.String("fingerprint", ev.Fingerprint),
		logx.String("severity", ev.Severity),
		logx.String("event_id", eventID),
	)
	if active {
		return TransitionUpdated, nil
	}
	return TransitionNew, nil
}

func (t *Tracker) resolve(ctx context.Context, ev alert.Event) (Transition, error) {
	stored, active, err := t.store.GetActiveAlert(ctx, ev.Fingerprint)
	if err != nil {
		return TransitionNone, err
	}
	if !active {
		// Duplicate or out-of-order resolution delivery; accepted limitation,
		// the event is dropped rather than buffered.
		t.log.Info("resolution for unknown alert ignored", logx.String("fingerprint", ev.Fingerprint))
		return TransitionNone, nil
	}

	// Remove first: a failed notification must not keep a cleared alert
	// active. The message mapping row is retained for history.
	if err := t.store.RemoveActiveAlert(ctx, ev.Fingerprint); err != nil {
		return TransitionNone, err
	}

	if err := t.notifier.SendResolved(ctx, stored.EventID, stored); err != nil {
		return TransitionResolved, fmt.Errorf("resolve notification for %s: %w", ev.Fingerprint, err)
	}
	t.log.Info("alert resolved",
		logx.String("fingerprint", ev.Fingerprint),
		logx.String("event_id", stored.EventID),
	)
	return TransitionResolved, nil
}
