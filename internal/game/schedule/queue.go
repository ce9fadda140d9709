// Package schedule runs short timed sequences on named lanes. Starting a
// sequence on a lane invalidates the token of whatever ran there before, so
// late callbacks from a superseded sequence can be recognised and dropped.
package schedule

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lane names used by the game session.
const (
	LaneHint      = "hint"
	LaneDragReset = "drag-reset"
)

// Token identifies one scheduled sequence on a lane.
type Token struct {
	Lane string
	ID   string
}

// IsZero reports whether the token was never issued.
func (t Token) IsZero() bool { return t.ID == "" }

// Step runs after Delay, measured from the previous step of the sequence.
type Step struct {
	Delay time.Duration
	Run   func(Token)
}

type lane struct {
	token Token
	timer Timer
	steps []Step
}

// Queue owns the lanes. It is safe for concurrent use.
type Queue struct {
	mu     sync.Mutex
	clock  Clock
	lanes  map[string]*lane
	closed bool
	logger *zap.Logger
}

// NewQueue builds a queue driven by clock. A nil clock means SystemClock.
func NewQueue(clock Clock, logger *zap.Logger) *Queue {
	if clock == nil {
		clock = SystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		clock:  clock,
		lanes:  make(map[string]*lane),
		logger: logger,
	}
}

// Replace cancels whatever is pending on laneName and starts steps in its
// place. The returned token is passed to every step.
func (q *Queue) Replace(laneName string, steps ...Step) Token {
	tok := Token{Lane: laneName, ID: uuid.NewString()}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Token{}
	}
	if prev, ok := q.lanes[laneName]; ok {
		prev.timer.Stop()
		q.logger.Debug("sequence superseded",
			zap.String("lane", laneName),
			zap.String("token", prev.token.ID),
		)
	}
	if len(steps) == 0 {
		delete(q.lanes, laneName)
		return tok
	}

	l := &lane{token: tok, steps: steps}
	q.lanes[laneName] = l
	q.arm(l)
	return tok
}

// arm schedules the head step of l. Callers hold q.mu.
func (q *Queue) arm(l *lane) {
	step := l.steps[0]
	tok := l.token
	l.timer = q.clock.AfterFunc(step.Delay, func() { q.fire(tok) })
}

func (q *Queue) fire(tok Token) {
	q.mu.Lock()
	l, ok := q.lanes[tok.Lane]
	if !ok || l.token != tok || q.closed {
		q.mu.Unlock()
		return
	}
	step := l.steps[0]
	l.steps = l.steps[1:]
	q.mu.Unlock()

	if step.Run != nil {
		step.Run(tok)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	l, ok = q.lanes[tok.Lane]
	if !ok || l.token != tok || q.closed {
		return
	}
	if len(l.steps) == 0 {
		delete(q.lanes, tok.Lane)
		return
	}
	q.arm(l)
}

// Cancel stops the sequence on laneName, if any.
func (q *Queue) Cancel(laneName string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[laneName]
	if !ok {
		return false
	}
	l.timer.Stop()
	delete(q.lanes, laneName)
	q.logger.Debug("sequence cancelled",
		zap.String("lane", laneName),
		zap.String("token", l.token.ID),
	)
	return true
}

// CancelToken stops tok's sequence only while it is still the live one on
// its lane. A superseded token leaves the lane alone.
func (q *Queue) CancelToken(tok Token) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[tok.Lane]
	if !ok || l.token != tok {
		return false
	}
	l.timer.Stop()
	delete(q.lanes, tok.Lane)
	q.logger.Debug("sequence cancelled",
		zap.String("lane", tok.Lane),
		zap.String("token", tok.ID),
	)
	return true
}

// Current reports whether tok is still the live sequence on its lane.
func (q *Queue) Current(tok Token) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	l, ok := q.lanes[tok.Lane]
	return ok && l.token == tok
}

// Pending reports whether laneName has a sequence in flight.
func (q *Queue) Pending(laneName string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.lanes[laneName]
	return ok
}

// Close cancels every lane and rejects further work.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for name, l := range q.lanes {
		l.timer.Stop()
		delete(q.lanes, name)
	}
	q.closed = true
}
