package table

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/klondike/klondike-server-go/internal/game/cards"
)

// PileCount is the number of tableau piles.
const PileCount = 7

// ErrInvariant wraps every table invariant violation.
var ErrInvariant = errors.New("table invariant violated")

// Table holds every card container of a Klondike game. Piles are indexed by
// pile id minus one; each pile and foundation is ordered bottom to top. The
// stock is drawn from its head and the waste grows at its tail.
type Table struct {
	Piles       [PileCount][]cards.Card
	Foundations map[cards.Suit][]cards.Card
	Stock       []cards.Card
	Waste       []cards.Card
}

// New returns an empty table.
func New() *Table {
	t := &Table{
		Foundations: make(map[cards.Suit][]cards.Card, len(cards.Suits)),
		Stock:       []cards.Card{},
		Waste:       []cards.Card{},
	}
	for i := range t.Piles {
		t.Piles[i] = []cards.Card{}
	}
	for _, suit := range cards.Suits {
		t.Foundations[suit] = []cards.Card{}
	}
	return t
}

// Clone returns a deep copy that shares no backing arrays with t.
func (t *Table) Clone() *Table {
	if t == nil {
		return nil
	}
	c := &Table{
		Foundations: make(map[cards.Suit][]cards.Card, len(cards.Suits)),
		Stock:       cards.Clone(t.Stock),
		Waste:       cards.Clone(t.Waste),
	}
	for i, pile := range t.Piles {
		c.Piles[i] = cards.Clone(pile)
	}
	for _, suit := range cards.Suits {
		c.Foundations[suit] = cards.Clone(t.Foundations[suit])
	}
	return c
}

// Pile returns pile id (1-based). Out-of-range ids return nil.
func (t *Table) Pile(id int) []cards.Card {
	if id < 1 || id > PileCount {
		return nil
	}
	return t.Piles[id-1]
}

// Top returns the last card of a container.
func Top(stack []cards.Card) (cards.Card, bool) {
	if len(stack) == 0 {
		return cards.Card{}, false
	}
	return stack[len(stack)-1], true
}

// Find locates a card by identity, returning its container and index.
func (t *Table) Find(id cards.ID) (Location, int, bool) {
	for i, pile := range t.Piles {
		if idx := indexOf(pile, id); idx >= 0 {
			return PileRef{ID: i + 1}, idx, true
		}
	}
	for _, suit := range cards.Suits {
		if idx := indexOf(t.Foundations[suit], id); idx >= 0 {
			return FoundationRef{Suit: suit}, idx, true
		}
	}
	if idx := indexOf(t.Waste, id); idx >= 0 {
		return WasteRef{}, idx, true
	}
	if idx := indexOf(t.Stock, id); idx >= 0 {
		return StockRef{}, idx, true
	}
	return nil, -1, false
}

func indexOf(stack []cards.Card, id cards.ID) int {
	for i, c := range stack {
		if c.ID() == id {
			return i
		}
	}
	return -1
}

// Cards returns the container at loc. The slice is the live one.
func (t *Table) Cards(loc Location) []cards.Card {
	switch l := loc.(type) {
	case PileRef:
		return t.Pile(l.ID)
	case FoundationRef:
		return t.Foundations[l.Suit]
	case WasteRef:
		return t.Waste
	case StockRef:
		return t.Stock
	default:
		return nil
	}
}

// Set replaces the container at loc.
func (t *Table) Set(loc Location, stack []cards.Card) {
	switch l := loc.(type) {
	case PileRef:
		if l.ID >= 1 && l.ID <= PileCount {
			t.Piles[l.ID-1] = stack
		}
	case FoundationRef:
		t.Foundations[l.Suit] = stack
	case WasteRef:
		t.Waste = stack
	case StockRef:
		t.Stock = stack
	}
}

// Count returns the number of cards on the table.
func (t *Table) Count() int {
	n := len(t.Stock) + len(t.Waste)
	for _, pile := range t.Piles {
		n += len(pile)
	}
	for _, f := range t.Foundations {
		n += len(f)
	}
	return n
}

// AllPilesFaceUp reports whether at least one pile holds cards and every
// card in every pile is face-up. Empty piles do not block the condition.
func (t *Table) AllPilesFaceUp() bool {
	occupied := false
	for _, pile := range t.Piles {
		for _, c := range pile {
			if !c.FaceUp {
				return false
			}
			occupied = true
		}
	}
	return occupied
}

// Complete reports whether every foundation is topped by a King.
func (t *Table) Complete() bool {
	for _, suit := range cards.Suits {
		top, ok := Top(t.Foundations[suit])
		if !ok || top.Rank != cards.King {
			return false
		}
	}
	return true
}

// Validate checks the structural invariants of the table. An empty table is
// valid; otherwise all 52 cards must be present exactly once.
func (t *Table) Validate() error {
	count := t.Count()
	if count == 0 {
		return nil
	}
	if count != cards.DeckSize {
		return fmt.Errorf("%w: %d cards on table", ErrInvariant, count)
	}

	seen := make(map[cards.ID]string, cards.DeckSize)
	visit := func(where string, stack []cards.Card) error {
		for _, c := range stack {
			if !c.Rank.Valid() || !c.Suit.Valid() {
				return fmt.Errorf("%w: invalid card %v in %s", ErrInvariant, c.ID(), where)
			}
			if prev, dup := seen[c.ID()]; dup {
				return fmt.Errorf("%w: %s in both %s and %s", ErrInvariant, c.ID(), prev, where)
			}
			seen[c.ID()] = where
		}
		return nil
	}

	for i, pile := range t.Piles {
		loc := PileRef{ID: i + 1}
		if err := visit(loc.String(), pile); err != nil {
			return err
		}
		if err := validatePile(loc, pile); err != nil {
			return err
		}
	}
	for _, suit := range cards.Suits {
		loc := FoundationRef{Suit: suit}
		f := t.Foundations[suit]
		if err := visit(loc.String(), f); err != nil {
			return err
		}
		for i, c := range f {
			if c.Suit != suit || c.Rank != cards.Rank(i+1) || !c.FaceUp {
				return fmt.Errorf("%w: %s out of sequence in %s", ErrInvariant, c.ID(), loc)
			}
		}
	}
	if err := visit("waste", t.Waste); err != nil {
		return err
	}
	for _, c := range t.Waste {
		if !c.FaceUp {
			return fmt.Errorf("%w: face-down %s in waste", ErrInvariant, c.ID())
		}
	}
	if err := visit("stock", t.Stock); err != nil {
		return err
	}
	for _, c := range t.Stock {
		if c.FaceUp {
			return fmt.Errorf("%w: face-up %s in stock", ErrInvariant, c.ID())
		}
	}
	return nil
}

// validatePile requires a face-down prefix followed by a face-up run that
// descends by one rank with alternating colours, and a face-up top.
func validatePile(loc PileRef, pile []cards.Card) error {
	if len(pile) == 0 {
		return nil
	}
	if !pile[len(pile)-1].FaceUp {
		return fmt.Errorf("%w: face-down top card in %s", ErrInvariant, loc)
	}
	firstUp := len(pile) - 1
	for firstUp > 0 && pile[firstUp-1].FaceUp {
		firstUp--
	}
	for _, c := range pile[:firstUp] {
		if c.FaceUp {
			return fmt.Errorf("%w: face-up %s below face-down cards in %s", ErrInvariant, c.ID(), loc)
		}
	}
	for i := firstUp + 1; i < len(pile); i++ {
		below, above := pile[i-1], pile[i]
		if above.Rank+1 != below.Rank || above.Color() == below.Color() {
			return fmt.Errorf("%w: %s cannot rest on %s in %s", ErrInvariant, above.ID(), below.ID(), loc)
		}
	}
	return nil
}

// Canonical returns a deterministic text form of the table, including
// face-up flags ("+" up, "-" down).
func (t *Table) Canonical() string {
	var buf bytes.Buffer
	write := func(name string, stack []cards.Card) {
		buf.WriteString(name)
		buf.WriteString(":")
		for i, c := range stack {
			if i > 0 {
				buf.WriteString(",")
			}
			buf.WriteString(c.ID().String())
			if c.FaceUp {
				buf.WriteString("+")
			} else {
				buf.WriteString("-")
			}
		}
		buf.WriteString("\n")
	}
	for i, pile := range t.Piles {
		write(fmt.Sprintf("PILE%d", i+1), pile)
	}
	for _, suit := range cards.Suits {
		write("FOUNDATION"+suit.Code(), t.Foundations[suit])
	}
	write("STOCK", t.Stock)
	write("WASTE", t.Waste)
	return buf.String()
}

// Checksum returns the hex SHA-256 of Canonical.
func (t *Table) Checksum() string {
	sum := sha256.Sum256([]byte(t.Canonical()))
	return hex.EncodeToString(sum[:])
}
