package game

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/hint"
	"github.com/klondike/klondike-server-go/internal/game/rules"
)

// RequestHint selects the next foundation move and shows it at its source.
// Any hint already showing is replaced.
func (e *Engine) RequestHint() (ActiveHint, error) {
	var active ActiveHint
	err := e.apply(func() error {
		if err := e.requireDealt(); err != nil {
			return err
		}
		h, ok := hint.Find(e.table)
		if !ok {
			e.clearHint()
			return ErrNoHint
		}
		e.hint = &ActiveHint{Hint: h, Phase: hint.PhaseSource, Token: uuid.NewString()}
		active = *e.hint

		e.logger.Debug("hint selected",
			zap.String("game_id", e.gameID),
			zap.String("hint", h.String()),
		)
		e.emitHint()
		return nil
	})
	return active, err
}

// Hint returns the hint being shown, if any.
func (e *Engine) Hint() (ActiveHint, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.hint == nil {
		return ActiveHint{}, false
	}
	return *e.hint, true
}

// SetHintPhase moves the indicator of the hint identified by token.
func (e *Engine) SetHintPhase(token string, phase hint.Phase) error {
	return e.apply(func() error {
		if err := e.currentHint(token); err != nil {
			return err
		}
		e.hint.Phase = phase
		e.emitHint()
		return nil
	})
}

// AdvanceHintPhase toggles the indicator between source and destination.
func (e *Engine) AdvanceHintPhase(token string) error {
	return e.apply(func() error {
		if err := e.currentHint(token); err != nil {
			return err
		}
		if e.hint.Phase == hint.PhaseSource {
			e.hint.Phase = hint.PhaseDestination
		} else {
			e.hint.Phase = hint.PhaseSource
		}
		e.emitHint()
		return nil
	})
}

// FinishHint clears the hint identified by token at the end of its
// sequence.
func (e *Engine) FinishHint(token string) error {
	return e.apply(func() error {
		if err := e.currentHint(token); err != nil {
			return err
		}
		e.clearHint()
		return nil
	})
}

// ClearHint removes whatever hint is showing.
func (e *Engine) ClearHint() {
	_ = e.apply(func() error {
		e.clearHint()
		return nil
	})
}

func (e *Engine) currentHint(token string) error {
	if e.hint == nil {
		return ErrNoHint
	}
	if e.hint.Token != token {
		return ErrStaleHint
	}
	return nil
}

func (e *Engine) clearHint() {
	if e.hint == nil {
		return
	}
	e.hint = nil
	e.emit(rules.EventHintChanged, nil)
}

func (e *Engine) emitHint() {
	h := *e.hint
	e.emit(rules.EventHintChanged, func(ev *rules.Event) {
		ev.CardID = h.Card.String()
		ev.Origin = h.Origin.String()
		ev.Target = h.Destination.String()
		ev.Metadata["phase"] = h.Phase.String()
	})
}

func (e *Engine) autoFinishAvailable() bool {
	return e.state == StateDealt && e.table.AllPilesFaceUp()
}

// AutoFinishAvailable reports whether every pile card is face-up.
func (e *Engine) AutoFinishAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.autoFinishAvailable()
}

// CheckAutoFinish offers auto-finish when it is available.
func (e *Engine) CheckAutoFinish() bool {
	var offered bool
	_ = e.apply(func() error {
		offered = e.offerAutoFinish()
		return nil
	})
	return offered
}

func (e *Engine) offerAutoFinish() bool {
	if !e.autoFinishAvailable() {
		return false
	}
	if !e.autoFinishPending {
		e.autoFinishPending = true
		e.emit(rules.EventAutoFinishOffered, nil)
	}
	return true
}

// ConfirmAutoFinish plays every foundation move the hint scan finds, one
// committed move at a time, and returns how many it made. It stops as soon
// as no candidate is left, won or not.
func (e *Engine) ConfirmAutoFinish() (int, error) {
	var moves int
	err := e.apply(func() error {
		if !e.autoFinishPending {
			return ErrNoConfirmationPending
		}
		e.autoFinishPending = false
		if !e.autoFinishAvailable() {
			return ErrAutoFinishUnavailable
		}

		for e.state == StateDealt {
			h, ok := hint.Find(e.table)
			if !ok {
				break
			}
			move, res := h.Move(e.table)
			if !res.Legal {
				e.logger.DPanic("hint produced an illegal move",
					zap.String("game_id", e.gameID),
					zap.String("hint", h.String()),
					zap.String("reason", res.Reason),
				)
				break
			}
			e.commit(move, false)
			moves++
		}

		e.logger.Info("auto-finish complete",
			zap.String("game_id", e.gameID),
			zap.Int("moves", moves),
			zap.Bool("won", e.state == StateWon),
		)
		return nil
	})
	return moves, err
}

// CancelAutoFinish declines the pending offer.
func (e *Engine) CancelAutoFinish() error {
	return e.apply(func() error {
		if !e.autoFinishPending {
			return ErrNoConfirmationPending
		}
		e.autoFinishPending = false
		return nil
	})
}
