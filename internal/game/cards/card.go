package cards

import (
	"fmt"
	"strings"
)

// Rank is a card rank from Ace (low) to King (high).
type Rank int

const (
	Ace Rank = iota + 1
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

var rankNames = []string{"", "Ace", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten", "Jack", "Queen", "King"}

var rankCodes = []string{"", "A", "2", "3", "4", "5", "6", "7", "8", "9", "10", "J", "Q", "K"}

// Valid reports whether r is one of the 13 ranks.
func (r Rank) Valid() bool {
	return r >= Ace && r <= King
}

func (r Rank) String() string {
	if !r.Valid() {
		return fmt.Sprintf("Rank(%d)", int(r))
	}
	return rankNames[r]
}

// Code returns the short rank code used in card identifiers ("A", "10", "K").
func (r Rank) Code() string {
	if !r.Valid() {
		return "?"
	}
	return rankCodes[r]
}

// Lower returns the rank directly below r. Ace has none.
func (r Rank) Lower() (Rank, bool) {
	if r <= Ace || r > King {
		return 0, false
	}
	return r - 1, true
}

// Suit is one of the four French suits.
type Suit int

const (
	Clubs Suit = iota + 1
	Diamonds
	Hearts
	Spades
)

// Suits lists every suit in declaration order.
var Suits = []Suit{Clubs, Diamonds, Hearts, Spades}

var suitNames = []string{"", "Clubs", "Diamonds", "Hearts", "Spades"}

var suitCodes = []string{"", "C", "D", "H", "S"}

// Valid reports whether s is one of the four suits.
func (s Suit) Valid() bool {
	return s >= Clubs && s <= Spades
}

func (s Suit) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Suit(%d)", int(s))
	}
	return suitNames[s]
}

// Code returns the single-letter suit code.
func (s Suit) Code() string {
	if !s.Valid() {
		return "?"
	}
	return suitCodes[s]
}

// Color returns the colour class of the suit.
func (s Suit) Color() Color {
	if s == Diamonds || s == Hearts {
		return Red
	}
	return Black
}

// Color partitions suits into two classes.
type Color int

const (
	Black Color = iota
	Red
)

func (c Color) String() string {
	if c == Red {
		return "Red"
	}
	return "Black"
}

// ID identifies a card independently of its face-up state.
type ID struct {
	Rank Rank
	Suit Suit
}

// NewID builds an ID, rejecting out-of-range values.
func NewID(rank Rank, suit Suit) (ID, error) {
	if !rank.Valid() || !suit.Valid() {
		return ID{}, fmt.Errorf("invalid card %d/%d", int(rank), int(suit))
	}
	return ID{Rank: rank, Suit: suit}, nil
}

// String renders the identifier as rank code followed by suit code, e.g. "10H".
func (id ID) String() string {
	return id.Rank.Code() + id.Suit.Code()
}

// ParseID parses the form produced by ID.String.
func ParseID(s string) (ID, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return ID{}, fmt.Errorf("invalid card id %q", s)
	}
	rankCode, suitCode := s[:len(s)-1], s[len(s)-1:]

	var id ID
	for r := Ace; r <= King; r++ {
		if rankCodes[r] == rankCode {
			id.Rank = r
			break
		}
	}
	for _, suit := range Suits {
		if suitCodes[suit] == suitCode {
			id.Suit = suit
			break
		}
	}
	if !id.Rank.Valid() || !id.Suit.Valid() {
		return ID{}, fmt.Errorf("invalid card id %q", s)
	}
	return id, nil
}

// MarshalText implements encoding.TextMarshaler.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := ParseID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Card is a playing card on the table. FaceUp is presentation state and does
// not take part in identity; compare cards with Same or by ID.
type Card struct {
	Rank   Rank
	Suit   Suit
	FaceUp bool
}

// New returns a face-down card.
func New(rank Rank, suit Suit) Card {
	return Card{Rank: rank, Suit: suit}
}

// ID returns the identity of the card.
func (c Card) ID() ID {
	return ID{Rank: c.Rank, Suit: c.Suit}
}

// Same reports whether both cards have the same rank and suit.
func (c Card) Same(other Card) bool {
	return c.Rank == other.Rank && c.Suit == other.Suit
}

// Color returns the colour of the card's suit.
func (c Card) Color() Color {
	return c.Suit.Color()
}

// Flipped returns a copy of the card with the given face-up state.
func (c Card) Flipped(faceUp bool) Card {
	c.FaceUp = faceUp
	return c
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}
