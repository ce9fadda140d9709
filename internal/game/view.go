package game

import (
	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/hint"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// CardView is a card as the client sees it.
type CardView struct {
	ID     cards.ID `json:"id"`
	Rank   string   `json:"rank"`
	Suit   string   `json:"suit"`
	Color  string   `json:"color"`
	FaceUp bool     `json:"face_up"`
}

// DragView describes the active drag.
type DragView struct {
	Card    cards.ID           `json:"card"`
	Origin  table.LocationView `json:"origin"`
	Cards   int                `json:"cards"`
	Pointer Point              `json:"pointer"`
}

// HintView describes the hint being shown.
type HintView struct {
	Card        cards.ID           `json:"card"`
	Origin      table.LocationView `json:"origin"`
	Destination table.LocationView `json:"destination"`
	Phase       string             `json:"phase"`
	Token       string             `json:"token"`
}

// View is a read-only snapshot of everything a client renders.
type View struct {
	GameID              string                `json:"game_id"`
	State               State                 `json:"state"`
	Piles               [][]CardView          `json:"piles"`
	Foundations         map[string][]CardView `json:"foundations"`
	Stock               []CardView            `json:"stock"`
	StockCount          int                   `json:"stock_count"`
	Waste               []CardView            `json:"waste"`
	Score               scoring.Score         `json:"score"`
	Drag                *DragView             `json:"drag,omitempty"`
	Elevated            *cards.ID             `json:"elevated,omitempty"`
	Hint                *HintView             `json:"hint,omitempty"`
	HintCandidates      int                   `json:"hint_candidates"`
	Won                 bool                  `json:"won"`
	ResetPending        bool                  `json:"reset_pending"`
	AutoFinishPending   bool                  `json:"auto_finish_pending"`
	AutoFinishAvailable bool                  `json:"auto_finish_available"`
	HistoryLen          int                   `json:"history_len"`
}

func cardViews(stack []cards.Card) []CardView {
	out := make([]CardView, len(stack))
	for i, c := range stack {
		out[i] = CardView{
			ID:     c.ID(),
			Rank:   c.Rank.String(),
			Suit:   c.Suit.String(),
			Color:  c.Color().String(),
			FaceUp: c.FaceUp,
		}
	}
	return out
}

// Board is the card layout of a table.
type Board struct {
	Piles       [][]CardView          `json:"piles"`
	Foundations map[string][]CardView `json:"foundations"`
	Stock       []CardView            `json:"stock"`
	Waste       []CardView            `json:"waste"`
}

// BoardOf lays out t for a client.
func BoardOf(t *table.Table) Board {
	b := Board{
		Piles:       make([][]CardView, table.PileCount),
		Foundations: make(map[string][]CardView, len(cards.Suits)),
		Stock:       cardViews(t.Stock),
		Waste:       cardViews(t.Waste),
	}
	for i, pile := range t.Piles {
		b.Piles[i] = cardViews(pile)
	}
	for _, suit := range cards.Suits {
		b.Foundations[suit.String()] = cardViews(t.Foundations[suit])
	}
	return b
}

// View builds a snapshot of the game. The result shares nothing with the
// engine.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.table
	board := BoardOf(t)
	v := View{
		GameID:              e.gameID,
		State:               e.state,
		Piles:               board.Piles,
		Foundations:         board.Foundations,
		Stock:               board.Stock,
		StockCount:          len(t.Stock),
		Waste:               board.Waste,
		Score:               e.score,
		Won:                 t.Complete(),
		ResetPending:        e.resetPending,
		AutoFinishPending:   e.autoFinishPending,
		AutoFinishAvailable: e.autoFinishAvailable(),
		HistoryLen:          e.history.Len(),
	}
	if e.state == StateDealt {
		v.HintCandidates = len(hint.All(t))
	}
	if e.drag != nil {
		v.Drag = &DragView{
			Card:    e.drag.Card,
			Origin:  table.ViewOf(e.drag.Origin),
			Cards:   e.drag.Cards,
			Pointer: e.drag.Pointer,
		}
	}
	if e.elevated != nil {
		id := *e.elevated
		v.Elevated = &id
	}
	if e.hint != nil {
		v.Hint = &HintView{
			Card:        e.hint.Card,
			Origin:      table.ViewOf(e.hint.Origin),
			Destination: table.ViewOf(e.hint.Destination),
			Phase:       e.hint.Phase.String(),
			Token:       e.hint.Token,
		}
	}
	return v
}
