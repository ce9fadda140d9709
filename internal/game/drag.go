package game

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// BeginDrag picks up id and everything above it. The card is raised to the
// top of the z-order until the drag ends.
func (e *Engine) BeginDrag(id cards.ID, at Point) error {
	return e.apply(func() error {
		if err := e.requireDealt(); err != nil {
			return err
		}
		origin, run, err := rules.DraggedSet(e.table, id)
		if err != nil {
			return dragError(err)
		}

		e.drag = &Drag{Card: id, Origin: origin, Cards: len(run), Pointer: at}
		elevated := id
		e.elevated = &elevated
		e.emit(rules.EventDragChanged, func(ev *rules.Event) {
			ev.CardID = id.String()
			ev.Origin = origin.String()
			ev.Amount = len(run)
		})
		return nil
	})
}

// UpdateDrag moves the pointer of the active drag.
func (e *Engine) UpdateDrag(at Point) error {
	return e.apply(func() error {
		if e.drag == nil {
			return ErrNoDrag
		}
		e.drag.Pointer = at
		return nil
	})
}

// EndDrag releases the held cards over target, which is nil when the
// pointer is over nothing that accepts cards. A rejected drop leaves the
// table untouched; the card stays raised until ResetElevation.
func (e *Engine) EndDrag(target table.Location) error {
	return e.apply(func() error {
		if e.drag == nil {
			return ErrNoDrag
		}
		d := e.drag
		e.drag = nil
		e.emit(rules.EventDragChanged, nil)

		move, res := rules.CheckDrop(e.table, d.Card, target)
		if !res.Legal {
			e.logger.Debug("drop rejected",
				zap.String("game_id", e.gameID),
				zap.String("card", d.Card.String()),
				zap.String("reason", res.Reason),
			)
			return fmt.Errorf("%w: %s", ErrIllegalMove, res.Reason)
		}
		e.commit(move, true)
		return nil
	})
}

// DoubleTap sends a single face-up card to the foundation of its suit.
func (e *Engine) DoubleTap(id cards.ID) error {
	return e.apply(func() error {
		if err := e.requireDealt(); err != nil {
			return err
		}
		origin, idx, ok := e.table.Find(id)
		if !ok {
			return ErrCardNotDraggable
		}
		if !e.table.Cards(origin)[idx].FaceUp {
			return ErrCardFaceDown
		}

		move, res := rules.CheckDrop(e.table, id, table.FoundationRef{Suit: id.Suit})
		if !res.Legal {
			if res.Err != nil && !errors.Is(res.Err, rules.ErrRejectedByFoundation) {
				return dragError(res.Err)
			}
			e.logger.Debug("double tap rejected",
				zap.String("game_id", e.gameID),
				zap.String("card", id.String()),
				zap.String("reason", res.Reason),
			)
			return fmt.Errorf("%w: %s", ErrIllegalMove, res.Reason)
		}
		e.commit(move, true)
		return nil
	})
}

// ResetElevation drops the raised card back into its normal z-order.
func (e *Engine) ResetElevation() {
	_ = e.apply(func() error {
		if e.elevated == nil || e.drag != nil {
			return nil
		}
		e.elevated = nil
		e.emit(rules.EventDragChanged, nil)
		return nil
	})
}

func dragError(err error) error {
	switch {
	case errors.Is(err, rules.ErrCardFaceDown):
		return ErrCardFaceDown
	case errors.Is(err, rules.ErrCardNotFound), errors.Is(err, rules.ErrNotDraggable):
		return ErrCardNotDraggable
	default:
		return fmt.Errorf("%w: %v", ErrIllegalMove, err)
	}
}
