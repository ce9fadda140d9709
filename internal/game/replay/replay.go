// Package replay records the table after every committed action of a game
// so finished games can be stepped through afterwards.
package replay

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// ErrNotFound is returned when no replay exists for a game.
var ErrNotFound = errors.New("replay not found")

// Frame is the table as it stood after one action.
type Frame struct {
	Index    int
	Event    string
	At       time.Time
	Table    *table.Table
	Score    scoring.Score
	Checksum string
}

// Replay is a recorded game with a playback cursor.
type Replay struct {
	mu     sync.RWMutex
	gameID string
	frames []Frame
	cursor int
}

// New returns an empty replay for gameID.
func New(gameID string) *Replay {
	return &Replay{gameID: gameID}
}

// GameID returns the recorded game's id.
func (r *Replay) GameID() string { return r.gameID }

// Append adds f as the next frame and reports whether it was kept. A frame
// whose table matches the previous one is dropped.
func (r *Replay) Append(f Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.frames); n > 0 && r.frames[n-1].Checksum == f.Checksum && r.frames[n-1].Score == f.Score {
		return false
	}
	f.Index = len(r.frames)
	r.frames = append(r.frames, f)
	return true
}

// Len returns the number of frames.
func (r *Replay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.frames)
}

// Frames returns a copy of every frame. Tables are cloned.
func (r *Replay) Frames() []Frame {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Frame, len(r.frames))
	for i, f := range r.frames {
		out[i] = clone(f)
	}
	return out
}

// At returns frame i.
func (r *Replay) At(i int) (Frame, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.frames) {
		return Frame{}, false
	}
	return clone(r.frames[i]), true
}

// Start rewinds the cursor.
func (r *Replay) Start() {
	r.mu.Lock()
	r.cursor = 0
	r.mu.Unlock()
}

// Next returns the frame under the cursor and advances it.
func (r *Replay) Next() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor >= len(r.frames) {
		return Frame{}, false
	}
	f := r.frames[r.cursor]
	r.cursor++
	return clone(f), true
}

// Previous steps the cursor back and returns the frame before the last one
// returned by Next.
func (r *Replay) Previous() (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cursor < 2 {
		return Frame{}, false
	}
	r.cursor--
	return clone(r.frames[r.cursor-1]), true
}

// Skip moves the cursor by n frames, clamped to the recording, and returns
// the frame it lands on.
func (r *Replay) Skip(n int) (Frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.frames) == 0 {
		return Frame{}, false
	}
	r.cursor = max(1, min(len(r.frames), r.cursor+n))
	return clone(r.frames[r.cursor-1]), true
}

// Verify checks every frame's table against its recorded checksum.
func (r *Replay) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, f := range r.frames {
		if f.Table.Checksum() != f.Checksum {
			return fmt.Errorf("replay %s: frame %d checksum mismatch", r.gameID, f.Index)
		}
	}
	return nil
}

func clone(f Frame) Frame {
	f.Table = f.Table.Clone()
	return f
}
