package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ticket is the server-side state of one pre-check token.
type ticket struct {
	state   State
	request Request
	expires time.Time
}

// ledger tracks issued tokens. It is the only mutable state touched by a
// check besides counters, and it is never read by rule evaluation.
type ledger struct {
	mu      sync.Mutex
	tickets map[string]*ticket
	ttl     time.Duration
	now     func() time.Time
}

func newLedger(ttl time.Duration, now func() time.Time) *ledger {
	return &ledger{tickets: make(map[string]*ticket), ttl: ttl, now: now}
}

// issue records an allowed pre-check and returns its token.
func (l *ledger) issue(req Request) string {
	token := uuid.NewString()
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweepLocked(now)
	l.tickets[token] = &ticket{state: StatePreAllowed, request: req, expires: now.Add(l.ttl)}
	return token
}

// advance moves a live ticket to the next state.
func (l *ledger) advance(token string, next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.lookupLocked(token)
	if err != nil {
		return err
	}
	if !t.state.CanTransition(next) {
		return &TransitionError{From: t.state, To: next}
	}
	t.state = next
	return nil
}

// consume claims the ticket for a post-check. A token can be consumed once.
func (l *ledger) consume(token string) (Request, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, err := l.lookupLocked(token)
	if err != nil {
		return Request{}, err
	}
	if !t.state.CanTransition(StatePostCheck) {
		reason := SequenceBadState
		if t.state == StatePostCheck || t.state == StatePostAllowed || t.state == StatePostBlocked || t.state == StateDone {
			reason = SequenceConsumed
		}
		return Request{}, &OutOfSequenceError{Token: token, Reason: reason}
	}
	t.state = StatePostCheck
	return t.request, nil
}

// finish records the post-check verdict and closes the ticket. The entry
// stays until it expires so replays report SequenceConsumed.
func (l *ledger) finish(token string, verdict State) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if t, ok := l.tickets[token]; ok {
		t.state = verdict
		if t.state.CanTransition(StateDone) {
			t.state = StateDone
		}
		t.request = Request{}
	}
}

// state returns the current state of a token.
func (l *ledger) state(token string) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.tickets[token]
	if !ok {
		return StateIdle, false
	}
	return t.state, true
}

// active counts tokens awaiting a post-check.
func (l *ledger) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	n := 0
	for _, t := range l.tickets {
		if now.Before(t.expires) && (t.state == StatePreAllowed || t.state == StateToolExecution) {
			n++
		}
	}
	return n
}

func (l *ledger) lookupLocked(token string) (*ticket, error) {
	if token == "" {
		return nil, &OutOfSequenceError{Reason: SequenceMissingToken}
	}
	t, ok := l.tickets[token]
	if !ok {
		return nil, &OutOfSequenceError{Token: token, Reason: SequenceUnknownToken}
	}
	if !l.now().Before(t.expires) {
		delete(l.tickets, token)
		return nil, &OutOfSequenceError{Token: token, Reason: SequenceExpired}
	}
	return t, nil
}

func (l *ledger) sweepLocked(now time.Time) {
	for token, t := range l.tickets {
		if !now.Before(t.expires) {
			delete(l.tickets, token)
		}
	}
}
