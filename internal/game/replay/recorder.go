package replay

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// DefaultRetention is how many finished replays a recorder keeps.
const DefaultRetention = 64

// Source is a game whose table can be read after each event.
type Source interface {
	Table() *table.Table
	Score() scoring.Score
}

// Recorder keeps the replays of games in progress plus the most recently
// finished ones.
type Recorder struct {
	mu        sync.RWMutex
	live      map[string]*Replay
	finished  map[string]*Replay
	order     []string
	retention int
	now       func() time.Time
	logger    *zap.Logger
}

// NewRecorder returns a recorder keeping up to retention finished games.
// A non-positive retention uses DefaultRetention.
func NewRecorder(logger *zap.Logger, retention int) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Recorder{
		live:      make(map[string]*Replay),
		finished:  make(map[string]*Replay),
		retention: retention,
		now:       time.Now,
		logger:    logger,
	}
}

// Record appends the state of gameID after event, starting a replay for
// an unknown game. Finished games are not recorded again.
func (r *Recorder) Record(gameID, event string, t *table.Table, score scoring.Score) {
	r.mu.Lock()
	if _, done := r.finished[gameID]; done {
		r.mu.Unlock()
		return
	}
	rep, ok := r.live[gameID]
	if !ok {
		rep = New(gameID)
		r.live[gameID] = rep
	}
	r.mu.Unlock()

	rep.Append(Frame{
		Event:    event,
		At:       r.now(),
		Table:    t.Clone(),
		Score:    score,
		Checksum: t.Checksum(),
	})
}

// IsRecording reports whether gameID is still being recorded.
func (r *Recorder) IsRecording(gameID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.live[gameID]
	return ok
}

// Get returns the replay of gameID, live or finished.
func (r *Recorder) Get(gameID string) (*Replay, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if rep, ok := r.live[gameID]; ok {
		return rep, nil
	}
	if rep, ok := r.finished[gameID]; ok {
		return rep, nil
	}
	return nil, ErrNotFound
}

// Finish stops recording gameID and keeps it among the finished replays,
// evicting the oldest beyond the retention limit.
func (r *Recorder) Finish(gameID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rep, ok := r.live[gameID]
	if !ok {
		return
	}
	delete(r.live, gameID)
	r.finished[gameID] = rep
	r.order = append(r.order, gameID)
	for len(r.order) > r.retention {
		delete(r.finished, r.order[0])
		r.order = r.order[1:]
	}

	r.logger.Debug("replay finished",
		zap.String("game_id", gameID),
		zap.Int("frames", rep.Len()),
	)
}

// Listen returns an event listener that records src after each change.
// Moving on to another game finishes the previous one, as does a win.
func (r *Recorder) Listen(src Source) func(rules.Event) {
	var (
		mu      sync.Mutex
		current string
	)
	return func(ev rules.Event) {
		if !ev.Type.Mutating() {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		if ev.GameID != current {
			if current != "" {
				r.Finish(current)
			}
			current = ev.GameID
		}
		r.Record(ev.GameID, string(ev.Type), src.Table(), src.Score())
		if ev.Type == rules.EventGameWon {
			r.Finish(ev.GameID)
		}
	}
}
