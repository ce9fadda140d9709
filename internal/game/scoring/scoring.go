package scoring

import "fmt"

// EventKind classifies a committed action for scoring.
type EventKind string

const (
	MoveToFoundation       EventKind = "MOVE_TO_FOUNDATION"
	TurnOverPileCard       EventKind = "TURN_OVER_PILE_CARD"
	MoveBackFromFoundation EventKind = "MOVE_BACK_FROM_FOUNDATION"
	Recycling              EventKind = "RECYCLING"
	PlainMove              EventKind = "PLAIN_MOVE"
)

var deltas = map[EventKind]int{
	MoveToFoundation:       10,
	TurnOverPileCard:       5,
	MoveBackFromFoundation: -15,
	Recycling:              -100,
	PlainMove:              0,
}

// Delta returns the point change for kind. Unknown kinds score zero.
func Delta(kind EventKind) int {
	return deltas[kind]
}

// CountsAsMove reports whether kind increments the move counter.
// Recycling the stock is the only scored event that does not.
func CountsAsMove(kind EventKind) bool {
	_, known := deltas[kind]
	return known && kind != Recycling
}

// Score is the running total. Points never drop below zero.
type Score struct {
	Points int `json:"points"`
	Moves  int `json:"moves"`
}

// Apply returns the score after kind.
func (s Score) Apply(kind EventKind) Score {
	if _, known := deltas[kind]; !known {
		return s
	}
	s.Points += Delta(kind)
	if s.Points < 0 {
		s.Points = 0
	}
	if CountsAsMove(kind) {
		s.Moves++
	}
	return s
}

// IncrementMove counts a move that carries no points.
func (s Score) IncrementMove() Score {
	s.Moves++
	return s
}

func (s Score) String() string {
	return fmt.Sprintf("%d points in %d moves", s.Points, s.Moves)
}
