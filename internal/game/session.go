package game

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/hint"
	"github.com/klondike/klondike-server-go/internal/game/schedule"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// Default delays for the timed sequences.
const (
	DefaultHintStepDelay  = 600 * time.Millisecond
	DefaultDragResetDelay = 500 * time.Millisecond
)

// SessionConfig tunes the timed sequences of a Session.
type SessionConfig struct {
	HintStepDelay  time.Duration
	DragResetDelay time.Duration
}

// Session drives an Engine for one client. It adds the timed behaviour the
// engine leaves out: the hint indicator sequence and the delayed reset of a
// card raised by a rejected drop.
type Session struct {
	engine *Engine
	queue  *schedule.Queue
	cfg    SessionConfig
	logger *zap.Logger
}

// NewSession wraps engine. Zero delays fall back to the defaults.
func NewSession(engine *Engine, queue *schedule.Queue, cfg SessionConfig, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == nil {
		queue = schedule.NewQueue(nil, logger)
	}
	if cfg.HintStepDelay <= 0 {
		cfg.HintStepDelay = DefaultHintStepDelay
	}
	if cfg.DragResetDelay <= 0 {
		cfg.DragResetDelay = DefaultDragResetDelay
	}
	return &Session{engine: engine, queue: queue, cfg: cfg, logger: logger}
}

// Engine returns the wrapped engine.
func (s *Session) Engine() *Engine { return s.engine }

// View returns the engine view.
func (s *Session) View() View { return s.engine.View() }

// Close stops every pending sequence.
func (s *Session) Close() { s.queue.Close() }

// mutated cancels an in-flight hint sequence once an intent has changed
// the game.
func (s *Session) mutated(err error) error {
	if err == nil {
		s.queue.Cancel(schedule.LaneHint)
	}
	return err
}

func (s *Session) ShuffleAndDeal() error { return s.mutated(s.engine.ShuffleAndDeal()) }
func (s *Session) DrawCard() error       { return s.mutated(s.engine.DrawCard()) }
func (s *Session) FlipDeck() error       { return s.mutated(s.engine.FlipDeck()) }
func (s *Session) Undo() error           { return s.mutated(s.engine.Undo()) }
func (s *Session) ConfirmReset() error   { return s.mutated(s.engine.ConfirmReset()) }
func (s *Session) PromptReset() error    { return s.engine.PromptReset() }
func (s *Session) CancelReset() error    { return s.engine.CancelReset() }
func (s *Session) CheckAutoFinish() bool { return s.engine.CheckAutoFinish() }
func (s *Session) CancelAutoFinish() error {
	return s.engine.CancelAutoFinish()
}

// ConfirmAutoFinish runs the auto-finish and reports the moves it made.
func (s *Session) ConfirmAutoFinish() (int, error) {
	n, err := s.engine.ConfirmAutoFinish()
	return n, s.mutated(err)
}

// BeginDrag picks up a card. A pending elevation reset is dropped so it
// cannot lower the newly raised card.
func (s *Session) BeginDrag(id cards.ID, at Point) error {
	err := s.engine.BeginDrag(id, at)
	if err == nil {
		s.queue.Cancel(schedule.LaneDragReset)
	}
	return err
}

func (s *Session) UpdateDrag(at Point) error { return s.engine.UpdateDrag(at) }

// EndDrag drops the held cards. After a rejected drop the raised card is
// lowered once the drag-reset delay passes; a later rejection restarts
// the delay.
func (s *Session) EndDrag(target table.Location) error {
	err := s.engine.EndDrag(target)
	switch {
	case err == nil:
		return s.mutated(nil)
	case errors.Is(err, ErrIllegalMove):
		s.queue.Replace(schedule.LaneDragReset, schedule.Step{
			Delay: s.cfg.DragResetDelay,
			Run:   func(schedule.Token) { s.engine.ResetElevation() },
		})
	}
	return err
}

// DoubleTap sends a card to its foundation.
func (s *Session) DoubleTap(id cards.ID) error { return s.mutated(s.engine.DoubleTap(id)) }

// RequestHint selects a hint and starts its indicator sequence:
// destination, source, destination, then clear, one step per delay. A
// request while a sequence is running replaces it.
func (s *Session) RequestHint() (ActiveHint, error) {
	s.queue.Cancel(schedule.LaneHint)
	h, err := s.engine.RequestHint()
	if err != nil {
		return h, err
	}

	phase := func(p hint.Phase) func(schedule.Token) {
		return func(tok schedule.Token) {
			if s.queue.Current(tok) {
				s.stepResult(tok, s.engine.SetHintPhase(h.Token, p))
			}
		}
	}
	d := s.cfg.HintStepDelay
	s.queue.Replace(schedule.LaneHint,
		schedule.Step{Delay: d, Run: phase(hint.PhaseDestination)},
		schedule.Step{Delay: d, Run: phase(hint.PhaseSource)},
		schedule.Step{Delay: d, Run: phase(hint.PhaseDestination)},
		schedule.Step{Delay: d, Run: func(tok schedule.Token) {
			s.stepResult(tok, s.engine.FinishHint(h.Token))
		}},
	)
	return h, nil
}

// ClearHint stops the sequence and removes the hint.
func (s *Session) ClearHint() {
	s.queue.Cancel(schedule.LaneHint)
	s.engine.ClearHint()
}

// stepResult ends a sequence whose hint is gone. Only tok's own sequence is
// cancelled; a newer request on the lane keeps running.
func (s *Session) stepResult(tok schedule.Token, err error) {
	if err != nil {
		s.logger.Debug("hint step skipped", zap.String("token", tok.ID), zap.Error(err))
		s.queue.CancelToken(tok)
	}
}

// HintPending reports whether a hint sequence is still running.
func (s *Session) HintPending() bool { return s.queue.Pending(schedule.LaneHint) }

// DragResetPending reports whether a raised card is waiting to be lowered.
func (s *Session) DragResetPending() bool { return s.queue.Pending(schedule.LaneDragReset) }
