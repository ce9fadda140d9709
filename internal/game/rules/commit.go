package rules

import (
	"fmt"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// Outcome describes what a committed move did to the table.
type Outcome struct {
	Kind       scoring.EventKind
	TurnedOver *cards.Card
}

// Commit applies a move accepted by CheckDrop. It removes the run from its
// origin, turns over a newly exposed pile card, appends the run to the
// target and classifies the move for scoring.
func Commit(t *table.Table, m Move) Outcome {
	n := len(m.Cards)
	origin := t.Cards(m.Origin)
	remaining := cards.Clone(origin[:len(origin)-n])

	var out Outcome
	if _, fromPile := m.Origin.(table.PileRef); fromPile && len(remaining) > 0 {
		top := &remaining[len(remaining)-1]
		if !top.FaceUp {
			top.FaceUp = true
			turned := *top
			out.TurnedOver = &turned
		}
	}
	t.Set(m.Origin, remaining)

	target := cards.Clone(t.Cards(m.Target))
	t.Set(m.Target, append(target, m.Cards...))

	switch m.Target.(type) {
	case table.FoundationRef:
		out.Kind = scoring.MoveToFoundation
	case table.PileRef:
		switch m.Origin.(type) {
		case table.FoundationRef:
			out.Kind = scoring.MoveBackFromFoundation
		case table.PileRef:
			if out.TurnedOver != nil {
				out.Kind = scoring.TurnOverPileCard
			} else {
				out.Kind = scoring.PlainMove
			}
		case table.WasteRef:
			out.Kind = scoring.PlainMove
		default:
			panic(fmt.Sprintf("unhandled origin %T", m.Origin))
		}
	default:
		panic(fmt.Sprintf("unhandled target %T", m.Target))
	}
	return out
}
