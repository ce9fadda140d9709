package server

import (
	"time"

	"github.com/klondike/klondike-server-go/internal/game"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// Intent types accepted over the socket.
const (
	IntentShuffleAndDeal    = "shuffle_and_deal"
	IntentDrawCard          = "draw_card"
	IntentFlipDeck          = "flip_deck"
	IntentBeginDrag         = "begin_drag"
	IntentUpdateDrag        = "update_drag"
	IntentEndDrag           = "end_drag"
	IntentDoubleTap         = "double_tap"
	IntentRequestHint       = "request_hint"
	IntentAdvanceHintPhase  = "advance_hint_phase"
	IntentClearHint         = "clear_hint"
	IntentPromptReset       = "prompt_reset"
	IntentConfirmReset      = "confirm_reset"
	IntentCancelReset       = "cancel_reset"
	IntentUndo              = "undo"
	IntentCheckAutoFinish   = "check_auto_finish"
	IntentConfirmAutoFinish = "confirm_auto_finish"
	IntentCancelAutoFinish  = "cancel_auto_finish"
	IntentView              = "view"
)

// Outbound message types.
const (
	MessageWelcome = "welcome"
	MessageView    = "view"
	MessageEvent   = "event"
	MessageError   = "error"
)

// Intent is a client request. Card uses the short form, e.g. "10H".
type Intent struct {
	Type    string              `json:"type"`
	Card    string              `json:"card,omitempty"`
	Target  *table.LocationView `json:"target,omitempty"`
	Pointer *game.Point         `json:"pointer,omitempty"`
	Token   string              `json:"token,omitempty"`
}

// Message is everything the server sends.
type Message struct {
	Type      string        `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Intent    string        `json:"intent,omitempty"`
	Error     string        `json:"error,omitempty"`
	Moves     int           `json:"moves,omitempty"`
	Event     *EventPayload `json:"event,omitempty"`
	View      *game.View    `json:"view,omitempty"`
}

// EventPayload is the wire form of a game event.
type EventPayload struct {
	Type      rules.EventType   `json:"type"`
	GameID    string            `json:"game_id"`
	Card      string            `json:"card,omitempty"`
	Origin    string            `json:"origin,omitempty"`
	Target    string            `json:"target,omitempty"`
	Amount    int               `json:"amount,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func eventPayload(ev rules.Event) *EventPayload {
	return &EventPayload{
		Type:      ev.Type,
		GameID:    ev.GameID,
		Card:      ev.CardID,
		Origin:    ev.Origin,
		Target:    ev.Target,
		Amount:    ev.Amount,
		Timestamp: ev.Timestamp,
		Metadata:  ev.Metadata,
	}
}
