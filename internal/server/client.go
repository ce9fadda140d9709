package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game"
	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

const (
	sendBuffer = 256
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 4096
)

var errUnknownIntent = errors.New("unknown intent")

// Client is one WebSocket connection playing one game session.
type Client struct {
	id      string
	conn    *websocket.Conn
	session *game.Session
	logger  *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool

	subscription int
	typedSubs    []int
	onClose      func()
}

func newClient(id string, conn *websocket.Conn, session *game.Session, logger *zap.Logger) *Client {
	c := &Client{
		id:      id,
		conn:    conn,
		session: session,
		logger:  logger.With(zap.String("session_id", id)),
		send:    make(chan []byte, sendBuffer),
	}

	bus := session.Engine().Bus()
	c.subscription = bus.Subscribe(func(ev rules.Event) {
		c.push(Message{Type: MessageEvent, Event: eventPayload(ev)})
	})
	// timer driven changes have no intent reply, so they carry a view
	for _, et := range []rules.EventType{rules.EventHintChanged, rules.EventDragChanged} {
		c.typedSubs = append(c.typedSubs, bus.SubscribeTyped(et, func(rules.Event) {
			c.pushView()
		}))
	}
	return c
}

// push queues msg without blocking. Messages to a slow client are dropped.
func (c *Client) push(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to encode message", zap.String("type", msg.Type), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn("send buffer full, dropping message", zap.String("type", msg.Type))
	}
}

func (c *Client) pushView() {
	v := c.session.View()
	c.push(Message{Type: MessageView, SessionID: c.id, View: &v})
}

// close detaches the client from its game and stops the write pump.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	bus := c.session.Engine().Bus()
	bus.Unsubscribe(c.subscription)
	for _, h := range c.typedSubs {
		bus.Unsubscribe(h)
	}
	c.session.Close()
	if c.onClose != nil {
		c.onClose()
	}
}

func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var in Intent
		if err := json.Unmarshal(raw, &in); err != nil {
			c.push(Message{Type: MessageError, Error: fmt.Sprintf("malformed intent: %v", err)})
			continue
		}
		c.apply(in)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// apply applies one intent and answers with either a view or an error.
func (c *Client) apply(in Intent) {
	moves, err := c.dispatch(in)
	if err != nil {
		c.logger.Debug("intent rejected", zap.String("intent", in.Type), zap.Error(err))
		c.push(Message{Type: MessageError, Intent: in.Type, Error: err.Error()})
		return
	}
	v := c.session.View()
	c.push(Message{Type: MessageView, SessionID: c.id, Intent: in.Type, Moves: moves, View: &v})
}

func (c *Client) dispatch(in Intent) (int, error) {
	s := c.session
	switch in.Type {
	case IntentShuffleAndDeal:
		return 0, s.ShuffleAndDeal()
	case IntentDrawCard:
		return 0, s.DrawCard()
	case IntentFlipDeck:
		return 0, s.FlipDeck()
	case IntentBeginDrag:
		id, err := cards.ParseID(in.Card)
		if err != nil {
			return 0, err
		}
		return 0, s.BeginDrag(id, pointer(in))
	case IntentUpdateDrag:
		return 0, s.UpdateDrag(pointer(in))
	case IntentEndDrag:
		var target table.Location
		if in.Target != nil {
			loc, err := in.Target.Resolve()
			if err != nil {
				return 0, err
			}
			target = loc
		}
		return 0, s.EndDrag(target)
	case IntentDoubleTap:
		id, err := cards.ParseID(in.Card)
		if err != nil {
			return 0, err
		}
		return 0, s.DoubleTap(id)
	case IntentRequestHint:
		_, err := s.RequestHint()
		return 0, err
	case IntentAdvanceHintPhase:
		return 0, s.Engine().AdvanceHintPhase(in.Token)
	case IntentClearHint:
		s.ClearHint()
		return 0, nil
	case IntentPromptReset:
		return 0, s.PromptReset()
	case IntentConfirmReset:
		return 0, s.ConfirmReset()
	case IntentCancelReset:
		return 0, s.CancelReset()
	case IntentUndo:
		return 0, s.Undo()
	case IntentCheckAutoFinish:
		s.CheckAutoFinish()
		return 0, nil
	case IntentConfirmAutoFinish:
		return s.ConfirmAutoFinish()
	case IntentCancelAutoFinish:
		return 0, s.CancelAutoFinish()
	case IntentView:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnknownIntent, in.Type)
	}
}

func pointer(in Intent) game.Point {
	if in.Pointer == nil {
		return game.Point{}
	}
	return *in.Pointer
}
