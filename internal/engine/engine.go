// Package engine implements the session synchronization rules: round
// resolution, lobby readiness, rematch minting and round timeouts, all
// driven by the store's change feed and applied through conditional updates.
//
// There is no privileged process. Every connected client runs its own
// Observer over the same feed, so any transition may be attempted by several
// observers at once; the store's conditional updates guarantee exactly one
// of them takes effect and the rest see a conflict and stand down.
package engine

import (
	"context"
	"errors"
	"time"

	"mindmeld/internal/logger"
	"mindmeld/internal/store"
)

type SignalType string

const (
	// SignalState fires after any handled change; consumers re-render.
	SignalState SignalType = "state"
	// SignalAbandoned fires when a mid-game departure ended the session.
	SignalAbandoned SignalType = "abandoned"
	// SignalRematch fires when a successor session became discoverable.
	SignalRematch SignalType = "rematch"
)

// Signal is what an Observer surfaces to its presentation client.
type Signal struct {
	Type          SignalType `json:"type"`
	SessionCode   string     `json:"sessionCode"`
	SuccessorCode string     `json:"successorCode,omitempty"`
}

// Config carries the tunables an Observer needs.
type Config struct {
	RoundTimer time.Duration
}

// Observer is one client's view of one session. It consumes the change feed
// and runs the watchers against freshly read state on every event.
type Observer struct {
	store    store.Store
	code     string
	machine  *Machine
	resolver *Resolver
	rematch  *Rematch
	roster   *Roster
	timer    *Timer

	signals chan Signal
}

func NewObserver(st store.Store, sessionCode string, cfg Config) *Observer {
	machine := NewMachine(st)
	if cfg.RoundTimer <= 0 {
		cfg.RoundTimer = 30 * time.Second
	}
	return &Observer{
		store:    st,
		code:     sessionCode,
		machine:  machine,
		resolver: NewResolver(st, machine),
		rematch:  NewRematch(st),
		roster:   NewRoster(st, machine),
		timer:    NewTimer(machine, cfg.RoundTimer),
		signals:  make(chan Signal, 32),
	}
}

// Signals delivers abandonment, rematch and state-change notifications.
// Slow consumers lose intermediate state signals, never the session record.
func (o *Observer) Signals() <-chan Signal {
	return o.signals
}

// Run subscribes to the session's change feed and dispatches until ctx ends
// or the session record disappears.
func (o *Observer) Run(ctx context.Context) error {
	events, cancel, err := o.store.Subscribe(ctx, o.code)
	if err != nil {
		return err
	}
	defer cancel()
	defer o.timer.Stop()

	// evaluate once up front; the subscription may have been opened after
	// the change that matters
	o.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-events:
			if !ok {
				return nil
			}
			if done := o.dispatch(ctx); done {
				return nil
			}
		}
	}
}

// dispatch runs one full evaluation turn. The event itself carries no state
// worth trusting; everything is re-read. Returns true once the session row
// is gone and the observer has nothing left to watch.
func (o *Observer) dispatch(ctx context.Context) bool {
	abandoned, err := o.roster.HandleChange(ctx, o.code)
	if err != nil {
		logger.Warn("roster watcher failed", "session", o.code, "error", err)
	}
	if abandoned {
		o.timer.Stop()
		o.emit(Signal{Type: SignalAbandoned, SessionCode: o.code})
	} else {
		if err := o.resolver.Resolve(ctx, o.code); err != nil {
			logger.Warn("round resolution failed", "session", o.code, "error", err)
		}

		successor, err := o.rematch.Evaluate(ctx, o.code)
		if err != nil {
			logger.Warn("rematch evaluation failed", "session", o.code, "error", err)
		}
		if successor != "" {
			o.emit(Signal{Type: SignalRematch, SessionCode: o.code, SuccessorCode: successor})
		}
	}

	s, err := o.store.Session(ctx, o.code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return true
		}
		logger.Warn("session read failed", "session", o.code, "error", err)
		o.emit(Signal{Type: SignalState, SessionCode: o.code})
		return false
	}

	o.timer.Observe(s)
	if s.SuccessorCode != "" {
		// successor may have been published by another observer
		o.emit(Signal{Type: SignalRematch, SessionCode: o.code, SuccessorCode: s.SuccessorCode})
	}
	o.emit(Signal{Type: SignalState, SessionCode: o.code})
	return false
}

func (o *Observer) emit(sig Signal) {
	select {
	case o.signals <- sig:
	default:
	}
}
