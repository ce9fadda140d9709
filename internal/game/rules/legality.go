package rules

import (
	"errors"
	"fmt"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

var (
	ErrCardNotFound         = errors.New("card not on table")
	ErrCardFaceDown         = errors.New("card is face down")
	ErrNotDraggable         = errors.New("card cannot be picked up")
	ErrNoTarget             = errors.New("no drop target")
	ErrIllegalTarget        = errors.New("drop target cannot receive cards")
	ErrRejectedByPile       = errors.New("pile does not accept these cards")
	ErrRejectedByFoundation = errors.New("foundation does not accept these cards")
)

// IsValidMove reports whether the dragged run may be placed on target.
// An empty pile accepts only a King; otherwise the target's top card must be
// face-up, of the opposite colour, and exactly one rank above the lead card.
func IsValidMove(dragged, target []cards.Card) bool {
	if len(dragged) == 0 {
		return false
	}
	lead := dragged[0]

	top, ok := table.Top(target)
	if !ok {
		return lead.Rank == cards.King
	}
	if !top.FaceUp || top.Color() == lead.Color() {
		return false
	}
	lower, ok := top.Rank.Lower()
	return ok && lower == lead.Rank
}

// IsValidScoring reports whether dragged may land on the foundation for suit
// whose current contents are foundation. Only single cards are accepted and
// ranks must follow on from the current top, starting at Ace.
func IsValidScoring(dragged []cards.Card, suit cards.Suit, foundation []cards.Card) bool {
	if len(dragged) != 1 {
		return false
	}
	card := dragged[0]
	if card.Suit != suit {
		return false
	}
	top, ok := table.Top(foundation)
	if !ok {
		return card.Rank == cards.Ace
	}
	return top.Rank+1 == card.Rank
}

// DraggedSet resolves the cards picked up with id. From a pile the card and
// everything above it travel together; from a foundation or the waste only
// the top card may be taken.
func DraggedSet(t *table.Table, id cards.ID) (table.Location, []cards.Card, error) {
	origin, idx, ok := t.Find(id)
	if !ok {
		return nil, nil, ErrCardNotFound
	}
	stack := t.Cards(origin)
	if !stack[idx].FaceUp {
		return nil, nil, ErrCardFaceDown
	}

	switch origin.(type) {
	case table.PileRef:
		return origin, cards.Clone(stack[idx:]), nil
	case table.FoundationRef, table.WasteRef:
		if idx != len(stack)-1 {
			return nil, nil, ErrNotDraggable
		}
		return origin, []cards.Card{stack[idx]}, nil
	case table.StockRef:
		return nil, nil, ErrNotDraggable
	default:
		panic(fmt.Sprintf("unhandled origin %T", origin))
	}
}

// Move is a validated relocation of Cards from Origin to Target.
type Move struct {
	Card   cards.ID
	Origin table.Location
	Target table.Location
	Cards  []cards.Card
}

// LegalityResult explains the outcome of CheckDrop.
type LegalityResult struct {
	Legal   bool
	Reason  string
	Err     error
	Details map[string]string
}

func illegal(err error, details map[string]string) LegalityResult {
	return LegalityResult{Legal: false, Reason: err.Error(), Err: err, Details: details}
}

// CheckDrop decides whether releasing id over target is a legal move.
func CheckDrop(t *table.Table, id cards.ID, target table.Location) (Move, LegalityResult) {
	origin, run, err := DraggedSet(t, id)
	if err != nil {
		return Move{}, illegal(err, map[string]string{"card": id.String()})
	}
	move := Move{Card: id, Origin: origin, Target: target, Cards: run}
	details := map[string]string{
		"card":   id.String(),
		"origin": origin.String(),
	}

	switch tg := target.(type) {
	case nil:
		return move, illegal(ErrNoTarget, details)
	case table.PileRef:
		details["target"] = tg.String()
		if tg.ID < 1 || tg.ID > table.PileCount {
			return move, illegal(ErrIllegalTarget, details)
		}
		if origin == target || !IsValidMove(run, t.Pile(tg.ID)) {
			return move, illegal(ErrRejectedByPile, details)
		}
	case table.FoundationRef:
		details["target"] = tg.String()
		if !IsValidScoring(run, tg.Suit, t.Foundations[tg.Suit]) {
			return move, illegal(ErrRejectedByFoundation, details)
		}
	case table.WasteRef, table.StockRef:
		details["target"] = tg.String()
		return move, illegal(ErrIllegalTarget, details)
	default:
		panic(fmt.Sprintf("unhandled target %T", target))
	}

	return move, LegalityResult{Legal: true, Reason: "move accepted", Details: details}
}
