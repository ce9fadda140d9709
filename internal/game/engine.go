// Package game runs a single Klondike game: it owns the table, applies
// player intents, scores them and keeps the undo history.
package game

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/hint"
	"github.com/klondike/klondike-server-go/internal/game/history"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// State is the lifecycle stage of a game.
type State int

const (
	StateNotStarted State = iota
	StateDealt
	StateWon
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateDealt:
		return "DEALT"
	case StateWon:
		return "WON"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Point is a pointer position reported by the client. The engine stores it
// for display and never interprets it.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Drag is the card currently held by the pointer.
type Drag struct {
	Card    cards.ID
	Origin  table.Location
	Cards   int
	Pointer Point
}

// ActiveHint is the hint being shown and where its indicator sits.
type ActiveHint struct {
	hint.Hint
	Phase hint.Phase
	Token string
}

// EngineConfig carries the optional collaborators of an Engine.
type EngineConfig struct {
	// Shuffler randomises each deal. Nil means a time-seeded source.
	Shuffler cards.Shuffler
	// Bus receives game events. Nil means a private bus.
	Bus *rules.EventBus
	// Debug validates the table after every change.
	Debug bool
}

// Engine is one Klondike game. All methods are safe for concurrent use;
// intents are applied one at a time.
type Engine struct {
	mu     sync.Mutex
	logger *zap.Logger
	bus    *rules.EventBus
	debug  bool

	shuffler cards.Shuffler
	gameID   string
	state    State
	gameOver bool
	table    *table.Table
	score    scoring.Score
	history  *history.Log

	drag              *Drag
	elevated          *cards.ID
	hint              *ActiveHint
	resetPending      bool
	autoFinishPending bool

	outbox []rules.Event
}

// NewEngine creates an engine with no game dealt.
func NewEngine(logger *zap.Logger, cfg EngineConfig) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Shuffler == nil {
		cfg.Shuffler = cards.NewShuffler(0)
	}
	if cfg.Bus == nil {
		cfg.Bus = rules.NewEventBus()
	}
	id := uuid.NewString()
	return &Engine{
		logger:   logger,
		bus:      cfg.Bus,
		debug:    cfg.Debug,
		shuffler: cfg.Shuffler,
		gameID:   id,
		state:    StateNotStarted,
		gameOver: true,
		table:    table.New(),
		history:  history.New(id, logger),
	}
}

// Bus returns the event bus the engine publishes to.
func (e *Engine) Bus() *rules.EventBus {
	return e.bus
}

// GameID returns the id of the current game.
func (e *Engine) GameID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameID
}

// State returns the lifecycle stage.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// IsWon reports whether every foundation is topped by a King.
func (e *Engine) IsWon() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Complete()
}

// Score returns the current points and move count.
func (e *Engine) Score() scoring.Score {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.score
}

// Table returns a copy of the live table.
func (e *Engine) Table() *table.Table {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Clone()
}

// HistoryLen returns the number of recorded entries.
func (e *Engine) HistoryLen() int {
	return e.history.Len()
}

// Validate checks the live table invariants.
func (e *Engine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.table.Validate()
}

// apply runs fn under the engine lock and publishes whatever events it
// queued once the lock is released, so listeners may call back in.
func (e *Engine) apply(fn func() error) error {
	events, err := e.locked(fn)
	for _, ev := range events {
		e.bus.Publish(ev)
	}
	return err
}

// locked runs fn under the engine lock and drains the outbox. The lock is
// released even when fn panics; the events of that intent are dropped.
func (e *Engine) locked(fn func() error) (events []rules.Event, err error) {
	e.mu.Lock()
	defer func() {
		events, e.outbox = e.outbox, nil
		e.mu.Unlock()
	}()
	return nil, fn()
}

func (e *Engine) emit(et rules.EventType, configure func(*rules.Event)) {
	ev := rules.NewEvent(et, e.gameID)
	if configure != nil {
		configure(&ev)
	}
	e.outbox = append(e.outbox, ev)
}

func (e *Engine) requireDealt() error {
	if e.state != StateDealt {
		return ErrNoGame
	}
	return nil
}

// ShuffleAndDeal starts a new game. It is refused while a game is in
// progress; confirm a reset to abandon one.
func (e *Engine) ShuffleAndDeal() error {
	return e.apply(e.shuffleAndDeal)
}

func (e *Engine) shuffleAndDeal() error {
	if !e.gameOver {
		e.logger.Debug("deal refused, game in progress", zap.String("game_id", e.gameID))
		return ErrGameInProgress
	}

	deck := cards.NewDeck()
	cards.Shuffle(deck, e.shuffler)

	t := table.New()
	next := 0
	for k := 1; k <= table.PileCount; k++ {
		pile := cards.Clone(deck[next : next+k])
		next += k
		pile[k-1].FaceUp = true
		t.Piles[k-1] = pile
	}
	t.Stock = cards.Clone(deck[next:])

	e.gameID = uuid.NewString()
	e.table = t
	e.score = scoring.Score{}
	e.state = StateDealt
	e.gameOver = false
	e.clearTransient()
	e.history.Reset(e.gameID)
	e.history.Record(e.table, e.score)
	e.check("deal")

	e.logger.Info("game dealt",
		zap.String("game_id", e.gameID),
		zap.Int("stock", len(t.Stock)),
	)
	e.emit(rules.EventDealt, func(ev *rules.Event) { ev.Amount = next })
	return nil
}

// DrawCard turns the head of the stock onto the waste.
func (e *Engine) DrawCard() error {
	return e.apply(func() error {
		if err := e.requireDealt(); err != nil {
			return err
		}
		if len(e.table.Stock) == 0 {
			return ErrStockEmpty
		}

		drawn := e.table.Stock[0].Flipped(true)
		e.table.Stock = cards.Clone(e.table.Stock[1:])
		e.table.Waste = append(cards.Clone(e.table.Waste), drawn)
		e.score = e.score.IncrementMove()
		e.afterMutation("draw")

		e.logger.Debug("card drawn",
			zap.String("game_id", e.gameID),
			zap.String("card", drawn.ID().String()),
			zap.Int("stock", len(e.table.Stock)),
		)
		e.emit(rules.EventCardDrawn, func(ev *rules.Event) {
			ev.CardID = drawn.ID().String()
			ev.Origin = table.StockRef{}.String()
			ev.Target = table.WasteRef{}.String()
		})
		return nil
	})
}

// FlipDeck turns the whole waste back into the stock. It is only allowed
// once the stock has run out.
func (e *Engine) FlipDeck() error {
	return e.apply(func() error {
		if err := e.requireDealt(); err != nil {
			return err
		}
		if len(e.table.Stock) > 0 || len(e.table.Waste) == 0 {
			return ErrNothingToRecycle
		}

		stock := make([]cards.Card, len(e.table.Waste))
		for i, c := range e.table.Waste {
			stock[i] = c.Flipped(false)
		}
		e.table.Stock = stock
		e.table.Waste = []cards.Card{}
		before := e.score.Points
		e.score = e.score.Apply(scoring.Recycling)
		e.afterMutation("recycle")

		e.logger.Debug("deck recycled",
			zap.String("game_id", e.gameID),
			zap.Int("cards", len(stock)),
			zap.Int("points", e.score.Points),
		)
		e.emit(rules.EventDeckRecycled, func(ev *rules.Event) {
			ev.Amount = e.score.Points - before
		})
		return nil
	})
}

// commit applies a legal move and everything that follows from it: score,
// history, events and win detection.
func (e *Engine) commit(m rules.Move, offerAutoFinish bool) {
	out := rules.Commit(e.table, m)
	before := e.score.Points
	e.score = e.score.Apply(out.Kind)
	e.elevated = nil

	e.logger.Debug("move committed",
		zap.String("game_id", e.gameID),
		zap.String("card", m.Card.String()),
		zap.String("origin", m.Origin.String()),
		zap.String("target", m.Target.String()),
		zap.String("kind", string(out.Kind)),
		zap.Int("points", e.score.Points),
	)

	et := rules.EventCardsMoved
	switch out.Kind {
	case scoring.MoveToFoundation:
		et = rules.EventMovedToFoundation
	case scoring.MoveBackFromFoundation:
		et = rules.EventMovedFromFoundation
	}
	e.emit(et, func(ev *rules.Event) {
		ev.CardID = m.Card.String()
		ev.Origin = m.Origin.String()
		ev.Target = m.Target.String()
		ev.Amount = e.score.Points - before
		ev.Metadata = map[string]string{"kind": string(out.Kind), "cards": fmt.Sprint(len(m.Cards))}
	})
	if out.TurnedOver != nil {
		turned := out.TurnedOver.ID().String()
		e.emit(rules.EventPileTurnedOver, func(ev *rules.Event) {
			ev.CardID = turned
			ev.Origin = m.Origin.String()
		})
	}

	e.afterMutation(string(out.Kind))

	if e.table.Complete() {
		e.state = StateWon
		e.gameOver = true
		e.autoFinishPending = false
		e.logger.Info("game won",
			zap.String("game_id", e.gameID),
			zap.Int("points", e.score.Points),
			zap.Int("moves", e.score.Moves),
		)
		e.emit(rules.EventGameWon, func(ev *rules.Event) { ev.Amount = e.score.Points })
		return
	}
	if offerAutoFinish {
		e.offerAutoFinish()
	}
}

// afterMutation runs after every committed change to the table.
func (e *Engine) afterMutation(action string) {
	e.clearHint()
	e.history.Record(e.table, e.score)
	e.check(action)
}

// check reports table invariant violations in debug mode. DPanic panics
// under a development logger and only logs in production.
func (e *Engine) check(action string) {
	if !e.debug {
		return
	}
	if err := e.table.Validate(); err != nil {
		e.logger.DPanic("table invariant violated",
			zap.String("game_id", e.gameID),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func (e *Engine) clearTransient() {
	e.drag = nil
	e.elevated = nil
	e.hint = nil
	e.resetPending = false
	e.autoFinishPending = false
}

// PromptReset asks for confirmation before abandoning the game.
func (e *Engine) PromptReset() error {
	return e.apply(func() error {
		e.resetPending = true
		e.emit(rules.EventResetRequested, nil)
		return nil
	})
}

// ConfirmReset abandons the current game, clears the score and deals anew.
func (e *Engine) ConfirmReset() error {
	return e.apply(func() error {
		if !e.resetPending {
			return ErrNoConfirmationPending
		}
		e.logger.Info("game reset",
			zap.String("game_id", e.gameID),
			zap.Int("points", e.score.Points),
		)
		e.resetPending = false
		e.gameOver = true
		return e.shuffleAndDeal()
	})
}

// CancelReset withdraws a pending reset prompt.
func (e *Engine) CancelReset() error {
	return e.apply(func() error {
		if !e.resetPending {
			return ErrNoConfirmationPending
		}
		e.resetPending = false
		return nil
	})
}

// Undo restores the table and score recorded before the latest action.
// The deal itself can never be undone.
func (e *Engine) Undo() error {
	return e.apply(func() error {
		if e.state == StateNotStarted {
			return ErrNoGame
		}
		entry, ok := e.history.Undo()
		if !ok {
			return ErrNothingToUndo
		}
		if e.debug {
			if err := entry.Verify(); err != nil {
				e.logger.DPanic("history entry corrupted",
					zap.String("game_id", e.gameID),
					zap.Error(err),
				)
			}
			if latest, ok := e.history.Latest(); !ok || latest.ID != entry.ID {
				e.logger.DPanic("undo did not restore the latest entry",
					zap.String("game_id", e.gameID),
					zap.String("entry_id", entry.ID),
					zap.String("latest_id", latest.ID),
				)
			}
		}

		e.table = entry.Table
		e.score = entry.Score
		e.drag = nil
		e.elevated = nil
		e.hint = nil
		e.autoFinishPending = false
		if e.table.Complete() {
			e.state, e.gameOver = StateWon, true
		} else {
			e.state, e.gameOver = StateDealt, false
		}
		e.check("undo")

		e.logger.Info("move undone",
			zap.String("game_id", e.gameID),
			zap.String("entry_id", entry.ID),
			zap.Int("history", e.history.Len()),
		)
		e.emit(rules.EventUndo, func(ev *rules.Event) {
			ev.Amount = e.history.Len()
		})
		return nil
	})
}
