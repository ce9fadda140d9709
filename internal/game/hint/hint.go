// Package hint finds the next foundation move worth showing a player.
package hint

import (
	"fmt"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// Phase is where the hint indicator currently sits.
type Phase int

const (
	PhaseSource Phase = iota
	PhaseDestination
)

func (p Phase) String() string {
	switch p {
	case PhaseSource:
		return "source"
	case PhaseDestination:
		return "destination"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ScanOrder is the order foundations are tried for every candidate card.
var ScanOrder = []cards.Suit{cards.Hearts, cards.Clubs, cards.Diamonds, cards.Spades}

// Hint is a proposed single-card move to a foundation.
type Hint struct {
	Card        cards.ID
	Origin      table.Location
	Destination table.FoundationRef
}

// Move converts the hint into a move ready for rules.Commit.
func (h Hint) Move(t *table.Table) (rules.Move, rules.LegalityResult) {
	return rules.CheckDrop(t, h.Card, h.Destination)
}

func (h Hint) String() string {
	return fmt.Sprintf("%s: %s -> %s", h.Card, h.Origin, h.Destination)
}

// Find returns the first foundation move available on t. Pile tops are
// tried first in pile order, then the waste top. The stock never takes part.
func Find(t *table.Table) (Hint, bool) {
	for id := 1; id <= table.PileCount; id++ {
		if h, ok := candidate(t, table.PileRef{ID: id}); ok {
			return h, true
		}
	}
	return candidate(t, table.WasteRef{})
}

// All returns every candidate in scan order.
func All(t *table.Table) []Hint {
	var out []Hint
	sources := make([]table.Location, 0, table.PileCount+1)
	for id := 1; id <= table.PileCount; id++ {
		sources = append(sources, table.PileRef{ID: id})
	}
	sources = append(sources, table.WasteRef{})

	for _, src := range sources {
		top, ok := table.Top(t.Cards(src))
		if !ok || !top.FaceUp {
			continue
		}
		for _, suit := range ScanOrder {
			if rules.IsValidScoring([]cards.Card{top}, suit, t.Foundations[suit]) {
				out = append(out, Hint{Card: top.ID(), Origin: src, Destination: table.FoundationRef{Suit: suit}})
			}
		}
	}
	return out
}

func candidate(t *table.Table, src table.Location) (Hint, bool) {
	top, ok := table.Top(t.Cards(src))
	if !ok || !top.FaceUp {
		return Hint{}, false
	}
	for _, suit := range ScanOrder {
		if rules.IsValidScoring([]cards.Card{top}, suit, t.Foundations[suit]) {
			return Hint{Card: top.ID(), Origin: src, Destination: table.FoundationRef{Suit: suit}}, true
		}
	}
	return Hint{}, false
}
