// Package history keeps the undo log of a game: one immutable entry per
// committed action, the first of which can never be undone.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// Entry is a recorded game state. Table is a private deep copy.
type Entry struct {
	ID        string
	Timestamp time.Time
	Table     *table.Table
	Score     scoring.Score
	Checksum  string
}

// Verify recomputes the table checksum and compares it with the stored one.
func (e Entry) Verify() error {
	if e.Table == nil {
		return fmt.Errorf("entry %s has no table", e.ID)
	}
	if sum := e.Table.Checksum(); sum != e.Checksum {
		return fmt.Errorf("entry %s checksum mismatch: stored %s, computed %s", e.ID, e.Checksum, sum)
	}
	return nil
}

// Log is an append-only list of entries with undo-last semantics.
type Log struct {
	mu      sync.RWMutex
	gameID  string
	entries []Entry
	now     func() time.Time
	logger  *zap.Logger
}

// New returns an empty log for gameID.
func New(gameID string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{
		gameID: gameID,
		now:    time.Now,
		logger: logger,
	}
}

// Record stores a copy of t and score and returns the new entry.
func (l *Log) Record(t *table.Table, score scoring.Score) Entry {
	snapshot := t.Clone()
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: l.now(),
		Table:     snapshot,
		Score:     score,
		Checksum:  snapshot.Checksum(),
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	size := len(l.entries)
	l.mu.Unlock()

	l.logger.Debug("history entry recorded",
		zap.String("game_id", l.gameID),
		zap.String("entry_id", entry.ID),
		zap.Int("size", size),
		zap.Int("points", score.Points),
		zap.Int("moves", score.Moves),
	)
	return restore(entry)
}

// Undo discards the latest entry and returns the one that is now latest.
// With one entry or fewer nothing happens and ok is false.
func (l *Log) Undo() (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) <= 1 {
		return Entry{}, false
	}
	dropped := l.entries[len(l.entries)-1]
	l.entries[len(l.entries)-1] = Entry{}
	l.entries = l.entries[:len(l.entries)-1]
	latest := l.entries[len(l.entries)-1]

	l.logger.Debug("history entry undone",
		zap.String("game_id", l.gameID),
		zap.String("dropped", dropped.ID),
		zap.String("restored", latest.ID),
	)
	return restore(latest), true
}

// Latest returns the most recent entry.
func (l *Log) Latest() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return restore(l.entries[len(l.entries)-1]), true
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset drops every entry. A new game id may be supplied for logging.
func (l *Log) Reset(gameID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if gameID != "" {
		l.gameID = gameID
	}
	l.entries = nil
}

// restore hands out an entry whose table the caller may mutate freely.
func restore(e Entry) Entry {
	e.Table = e.Table.Clone()
	return e
}
