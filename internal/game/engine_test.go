package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/hint"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// arranged deals the listed cards first and the rest in fresh-deck order.
type arranged []cards.ID

func (a arranged) Shuffle(n int, swap func(i, j int)) {
	current := make([]cards.ID, 0, n)
	for _, c := range cards.NewDeck() {
		current = append(current, c.ID())
	}
	target := append([]cards.ID{}, a...)
	listed := make(map[cards.ID]bool, len(a))
	for _, id := range a {
		listed[id] = true
	}
	for _, id := range current {
		if !listed[id] {
			target = append(target, id)
		}
	}
	for i, want := range target {
		for j := i; j < n; j++ {
			if current[j] == want {
				swap(i, j)
				current[i], current[j] = current[j], current[i]
				break
			}
		}
	}
}

func id(r cards.Rank, s cards.Suit) cards.ID { return cards.ID{Rank: r, Suit: s} }

func faceUp(r cards.Rank, s cards.Suit) cards.Card {
	return cards.Card{Rank: r, Suit: s, FaceUp: true}
}

type eventLog struct {
	mu     sync.Mutex
	events []rules.Event
}

func (l *eventLog) add(ev rules.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) types() []rules.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]rules.EventType, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func newDealtEngine(t *testing.T, s cards.Shuffler) (*Engine, *eventLog) {
	t.Helper()
	log := &eventLog{}
	e := NewEngine(nil, EngineConfig{Shuffler: s, Debug: true})
	e.Bus().Subscribe(log.add)
	require.NoError(t, e.ShuffleAndDeal())
	return e, log
}

// loadTable replaces the live table as if it had just been dealt.
func loadTable(e *Engine, t *table.Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.table = t
	e.state = StateDealt
	e.gameOver = false
	e.score = scoring.Score{}
	e.clearTransient()
	e.history.Reset("")
	e.history.Record(t, e.score)
}

// nearlyWon has every card on a foundation except the top three hearts and
// spades, which sit face-up in two piles.
func nearlyWon() *table.Table {
	t := table.New()
	for _, suit := range cards.Suits {
		top := cards.King
		if suit == cards.Hearts || suit == cards.Spades {
			top = cards.Ten
		}
		for r := cards.Ace; r <= top; r++ {
			t.Foundations[suit] = append(t.Foundations[suit], faceUp(r, suit))
		}
	}
	t.Piles[0] = []cards.Card{faceUp(cards.King, cards.Hearts), faceUp(cards.Queen, cards.Spades), faceUp(cards.Jack, cards.Hearts)}
	t.Piles[1] = []cards.Card{faceUp(cards.King, cards.Spades), faceUp(cards.Queen, cards.Hearts), faceUp(cards.Jack, cards.Spades)}
	return t
}

func TestNewEngineNotStarted(t *testing.T) {
	e := NewEngine(nil, EngineConfig{})
	assert.Equal(t, StateNotStarted, e.State())
	assert.False(t, e.IsWon())
	assert.Zero(t, e.HistoryLen())

	assert.ErrorIs(t, e.DrawCard(), ErrNoGame)
	assert.ErrorIs(t, e.FlipDeck(), ErrNoGame)
	assert.ErrorIs(t, e.Undo(), ErrNoGame)
	assert.ErrorIs(t, e.BeginDrag(id(cards.Ace, cards.Spades), Point{}), ErrNoGame)
	_, err := e.RequestHint()
	assert.ErrorIs(t, err, ErrNoGame)
}

func TestShuffleAndDealLayout(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		e, log := newDealtEngine(t, cards.NewShuffler(seed))
		tbl := e.Table()

		dealt := 0
		for k := 1; k <= table.PileCount; k++ {
			pile := tbl.Pile(k)
			require.Len(t, pile, k)
			for i, c := range pile {
				assert.Equal(t, i == k-1, c.FaceUp, "pile %d card %d", k, i)
			}
			dealt += len(pile)
		}
		assert.Equal(t, 28, dealt)
		assert.Len(t, tbl.Stock, 24)
		for _, c := range tbl.Stock {
			assert.False(t, c.FaceUp)
		}
		assert.Empty(t, tbl.Waste)
		for _, suit := range cards.Suits {
			assert.Empty(t, tbl.Foundations[suit])
		}
		require.NoError(t, tbl.Validate())

		assert.Equal(t, StateDealt, e.State())
		assert.Equal(t, scoring.Score{}, e.Score())
		assert.Equal(t, 1, e.HistoryLen())
		assert.Equal(t, []rules.EventType{rules.EventDealt}, log.types())
	}
}

func TestShuffleAndDealConsumesDeckInOrder(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{})
	tbl := e.Table()
	deck := cards.NewDeck()

	assert.True(t, tbl.Pile(1)[0].Same(deck[0]))
	assert.True(t, tbl.Pile(2)[0].Same(deck[1]))
	assert.True(t, tbl.Pile(2)[1].Same(deck[2]))
	assert.True(t, tbl.Pile(7)[6].Same(deck[27]))
	assert.True(t, tbl.Stock[0].Same(deck[28]))
}

func TestShuffleAndDealRefusedWhileInProgress(t *testing.T) {
	e, _ := newDealtEngine(t, cards.NewShuffler(7))
	before := e.Table().Checksum()
	gameID := e.GameID()

	assert.ErrorIs(t, e.ShuffleAndDeal(), ErrGameInProgress)
	assert.Equal(t, before, e.Table().Checksum())
	assert.Equal(t, gameID, e.GameID())
	assert.Equal(t, 1, e.HistoryLen())
}

func TestDrawCard(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{})
	stock := e.Table().Stock

	for i := 0; i < 3; i++ {
		require.NoError(t, e.DrawCard())
	}
	tbl := e.Table()
	require.Len(t, tbl.Waste, 3)
	for i, c := range tbl.Waste {
		assert.True(t, c.Same(stock[i]))
		assert.True(t, c.FaceUp)
	}
	assert.Len(t, tbl.Stock, 21)
	assert.Equal(t, scoring.Score{Points: 0, Moves: 3}, e.Score())
	assert.Equal(t, 4, e.HistoryLen())

	for len(e.Table().Stock) > 0 {
		require.NoError(t, e.DrawCard())
	}
	size := e.HistoryLen()
	assert.ErrorIs(t, e.DrawCard(), ErrStockEmpty)
	assert.Equal(t, size, e.HistoryLen())
	assert.Len(t, e.Table().Waste, 24)
}

func TestFlipDeck(t *testing.T) {
	e, log := newDealtEngine(t, arranged{})
	original := e.Table().Stock

	assert.ErrorIs(t, e.FlipDeck(), ErrNothingToRecycle, "stock not exhausted")

	for i := 0; i < 24; i++ {
		require.NoError(t, e.DrawCard())
	}
	require.NoError(t, e.DoubleTap(id(cards.Ace, cards.Clubs)))
	require.Equal(t, 10, e.Score().Points)
	moves := e.Score().Moves
	size := e.HistoryLen()

	require.NoError(t, e.FlipDeck())
	tbl := e.Table()
	assert.Empty(t, tbl.Waste)
	require.Len(t, tbl.Stock, 24)
	for i, c := range tbl.Stock {
		assert.True(t, c.Same(original[i]), "order preserved at %d", i)
		assert.False(t, c.FaceUp)
	}
	assert.Equal(t, scoring.Score{Points: 0, Moves: moves}, e.Score(), "clamped and not counted as a move")
	assert.Equal(t, size+1, e.HistoryLen())
	assert.Contains(t, log.types(), rules.EventDeckRecycled)

	assert.ErrorIs(t, e.FlipDeck(), ErrNothingToRecycle)
}

func TestDragExposedAceToFoundation(t *testing.T) {
	// pile 2 holds 5♦ under A♠
	e, log := newDealtEngine(t, arranged{id(cards.King, cards.Clubs), id(cards.Five, cards.Diamonds), id(cards.Ace, cards.Spades)})

	require.NoError(t, e.BeginDrag(id(cards.Ace, cards.Spades), Point{X: 10, Y: 20}))
	require.NoError(t, e.UpdateDrag(Point{X: 300, Y: 40}))
	v := e.View()
	require.NotNil(t, v.Drag)
	assert.Equal(t, Point{X: 300, Y: 40}, v.Drag.Pointer)
	require.NotNil(t, v.Elevated)

	require.NoError(t, e.EndDrag(table.FoundationRef{Suit: cards.Spades}))

	tbl := e.Table()
	assert.Equal(t, []cards.Card{faceUp(cards.Ace, cards.Spades)}, tbl.Foundations[cards.Spades])
	assert.Equal(t, []cards.Card{faceUp(cards.Five, cards.Diamonds)}, tbl.Pile(2))
	assert.Equal(t, scoring.Score{Points: 10, Moves: 1}, e.Score())
	assert.Equal(t, 2, e.HistoryLen())
	assert.NoError(t, tbl.Validate())

	v = e.View()
	assert.Nil(t, v.Drag)
	assert.Nil(t, v.Elevated)
	assert.Subset(t, log.types(), []rules.EventType{rules.EventMovedToFoundation, rules.EventPileTurnedOver})
}

func TestPileToPileTurnOverScoresFive(t *testing.T) {
	// pile 2: 9♣ under 5♦, pile 3: 8♥ 7♦ under 4♣
	e, _ := newDealtEngine(t, arranged{
		id(cards.King, cards.Clubs),
		id(cards.Nine, cards.Clubs), id(cards.Five, cards.Diamonds),
		id(cards.Eight, cards.Hearts), id(cards.Seven, cards.Diamonds), id(cards.Four, cards.Clubs),
	})

	require.NoError(t, e.BeginDrag(id(cards.Four, cards.Clubs), Point{}))
	require.NoError(t, e.EndDrag(table.PileRef{ID: 2}))

	tbl := e.Table()
	assert.Equal(t, []cards.Card{cards.New(cards.Nine, cards.Clubs), faceUp(cards.Five, cards.Diamonds), faceUp(cards.Four, cards.Clubs)}, tbl.Pile(2))
	assert.True(t, tbl.Pile(3)[1].FaceUp)
	assert.Equal(t, scoring.Score{Points: 5, Moves: 1}, e.Score())
}

func TestEndDragRejected(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{})
	before := e.Table().Checksum()

	// 3♣ onto 6♣ breaks both colour and rank
	require.NoError(t, e.BeginDrag(id(cards.Three, cards.Clubs), Point{}))
	err := e.EndDrag(table.PileRef{ID: 3})
	assert.ErrorIs(t, err, ErrIllegalMove)

	assert.Equal(t, before, e.Table().Checksum())
	assert.Equal(t, scoring.Score{}, e.Score())
	assert.Equal(t, 1, e.HistoryLen())

	v := e.View()
	assert.Nil(t, v.Drag)
	require.NotNil(t, v.Elevated, "card stays raised until the reset")
	e.ResetElevation()
	assert.Nil(t, e.View().Elevated)

	require.NoError(t, e.BeginDrag(id(cards.Three, cards.Clubs), Point{}))
	assert.ErrorIs(t, e.EndDrag(nil), ErrIllegalMove)
	assert.Equal(t, before, e.Table().Checksum())
}

func TestDragErrors(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{})
	tbl := e.Table()

	assert.ErrorIs(t, e.BeginDrag(tbl.Pile(2)[0].ID(), Point{}), ErrCardFaceDown)
	assert.ErrorIs(t, e.BeginDrag(tbl.Stock[0].ID(), Point{}), ErrCardFaceDown)
	assert.ErrorIs(t, e.UpdateDrag(Point{}), ErrNoDrag)
	assert.ErrorIs(t, e.EndDrag(table.PileRef{ID: 1}), ErrNoDrag)

	require.NoError(t, e.DrawCard())
	require.NoError(t, e.DrawCard())
	buried := e.Table().Waste[0].ID()
	assert.ErrorIs(t, e.BeginDrag(buried, Point{}), ErrCardNotDraggable)
	assert.Nil(t, e.View().Drag)
}

func TestDoubleTap(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{id(cards.Ace, cards.Hearts), id(cards.Two, cards.Spades), id(cards.Two, cards.Hearts)})

	assert.ErrorIs(t, e.DoubleTap(id(cards.Two, cards.Spades)), ErrCardFaceDown)
	assert.ErrorIs(t, e.DoubleTap(id(cards.Two, cards.Hearts)), ErrIllegalMove, "foundation empty")
	assert.Equal(t, 1, e.HistoryLen())

	require.NoError(t, e.DoubleTap(id(cards.Ace, cards.Hearts)))
	require.NoError(t, e.DoubleTap(id(cards.Two, cards.Hearts)))

	tbl := e.Table()
	assert.Len(t, tbl.Foundations[cards.Hearts], 2)
	assert.Empty(t, tbl.Pile(1))
	assert.Equal(t, []cards.Card{faceUp(cards.Two, cards.Spades)}, tbl.Pile(2))
	assert.Equal(t, scoring.Score{Points: 20, Moves: 2}, e.Score())

	// the top foundation card cannot go back onto its own foundation
	assert.ErrorIs(t, e.DoubleTap(id(cards.Two, cards.Hearts)), ErrIllegalMove)
}

func TestMoveBackFromFoundation(t *testing.T) {
	tbl := table.New()
	for _, c := range cards.NewDeck() {
		tbl.Stock = append(tbl.Stock, c)
	}
	take := func(r cards.Rank, s cards.Suit) cards.Card {
		for i, c := range tbl.Stock {
			if c.Rank == r && c.Suit == s {
				tbl.Stock = append(tbl.Stock[:i], tbl.Stock[i+1:]...)
				return c.Flipped(true)
			}
		}
		panic("missing card")
	}
	tbl.Foundations[cards.Hearts] = []cards.Card{take(cards.Ace, cards.Hearts)}
	tbl.Piles[0] = []cards.Card{take(cards.Two, cards.Clubs)}

	e := NewEngine(nil, EngineConfig{Debug: true})
	loadTable(e, tbl)

	require.NoError(t, e.BeginDrag(id(cards.Ace, cards.Hearts), Point{}))
	require.NoError(t, e.EndDrag(table.PileRef{ID: 1}))
	assert.Equal(t, scoring.Score{Points: 0, Moves: 1}, e.Score(), "penalty clamps at zero")
	assert.Empty(t, e.Table().Foundations[cards.Hearts])
}

func TestUndo(t *testing.T) {
	e, log := newDealtEngine(t, cards.NewShuffler(42))
	afterDeal := e.Table().Checksum()

	const n = 6 // the deal plus five draws
	for i := 1; i < n; i++ {
		require.NoError(t, e.DrawCard())
	}
	require.Equal(t, n, e.HistoryLen())

	for i := 0; i < n-1; i++ {
		require.NoError(t, e.Undo())
	}
	assert.Equal(t, afterDeal, e.Table().Checksum())
	assert.Equal(t, scoring.Score{}, e.Score())
	assert.ErrorIs(t, e.Undo(), ErrNothingToUndo)
	assert.Equal(t, afterDeal, e.Table().Checksum())
	assert.Equal(t, 1, e.HistoryLen())
	assert.Contains(t, log.types(), rules.EventUndo)
}

func TestUndoRestoresScoreAndClearsTransientState(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{id(cards.Ace, cards.Hearts)})
	require.NoError(t, e.DoubleTap(id(cards.Ace, cards.Hearts)))
	require.NoError(t, e.DrawCard())
	require.NoError(t, e.BeginDrag(e.Table().Waste[0].ID(), Point{}))

	require.NoError(t, e.Undo())
	v := e.View()
	assert.Nil(t, v.Drag)
	assert.Empty(t, v.Waste)
	assert.Equal(t, scoring.Score{Points: 10, Moves: 1}, v.Score)

	require.NoError(t, e.Undo())
	assert.Equal(t, scoring.Score{}, e.Score())
	assert.Len(t, e.Table().Pile(1), 1)
}

func TestReset(t *testing.T) {
	e, _ := newDealtEngine(t, cards.NewShuffler(3))
	require.NoError(t, e.DrawCard())
	gameID := e.GameID()

	assert.ErrorIs(t, e.ConfirmReset(), ErrNoConfirmationPending)
	assert.ErrorIs(t, e.CancelReset(), ErrNoConfirmationPending)

	require.NoError(t, e.PromptReset())
	assert.True(t, e.View().ResetPending)
	require.NoError(t, e.CancelReset())
	assert.False(t, e.View().ResetPending)
	assert.Equal(t, gameID, e.GameID())

	require.NoError(t, e.PromptReset())
	require.NoError(t, e.ConfirmReset())
	assert.NotEqual(t, gameID, e.GameID())
	assert.Equal(t, scoring.Score{}, e.Score())
	assert.Equal(t, 1, e.HistoryLen())
	assert.Equal(t, StateDealt, e.State())
	assert.False(t, e.View().ResetPending)
	assert.ErrorIs(t, e.Undo(), ErrNothingToUndo)
}

func TestRequestHint(t *testing.T) {
	e, log := newDealtEngine(t, arranged{id(cards.Ace, cards.Spades)})

	h, err := e.RequestHint()
	require.NoError(t, err)
	assert.Equal(t, id(cards.Ace, cards.Spades), h.Card)
	assert.Equal(t, table.PileRef{ID: 1}, h.Origin)
	assert.Equal(t, table.FoundationRef{Suit: cards.Spades}, h.Destination)
	assert.Equal(t, hint.PhaseSource, h.Phase)
	assert.Contains(t, log.types(), rules.EventHintChanged)

	assert.ErrorIs(t, e.SetHintPhase("stale", hint.PhaseDestination), ErrStaleHint)
	require.NoError(t, e.AdvanceHintPhase(h.Token))
	current, ok := e.Hint()
	require.True(t, ok)
	assert.Equal(t, hint.PhaseDestination, current.Phase)

	second, err := e.RequestHint()
	require.NoError(t, err)
	assert.NotEqual(t, h.Token, second.Token)
	assert.ErrorIs(t, e.FinishHint(h.Token), ErrStaleHint)

	require.NoError(t, e.DrawCard())
	_, ok = e.Hint()
	assert.False(t, ok, "mutations clear the hint")
	assert.ErrorIs(t, e.SetHintPhase(second.Token, hint.PhaseSource), ErrNoHint)

	h, err = e.RequestHint()
	require.NoError(t, err)
	require.NoError(t, e.FinishHint(h.Token))
	_, ok = e.Hint()
	assert.False(t, ok)
}

func TestRequestHintNone(t *testing.T) {
	tbl := table.New()
	tbl.Stock = cards.NewDeck()
	e := NewEngine(nil, EngineConfig{})
	loadTable(e, tbl)

	_, err := e.RequestHint()
	assert.ErrorIs(t, err, ErrNoHint)
	assert.Nil(t, e.View().Hint)
}

func TestAutoFinish(t *testing.T) {
	e := NewEngine(nil, EngineConfig{Debug: true})
	log := &eventLog{}
	e.Bus().Subscribe(log.add)
	loadTable(e, nearlyWon())

	_, err := e.ConfirmAutoFinish()
	assert.ErrorIs(t, err, ErrNoConfirmationPending)

	require.True(t, e.CheckAutoFinish())
	assert.True(t, e.View().AutoFinishPending)

	n, err := e.ConfirmAutoFinish()
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, e.IsWon())
	assert.Equal(t, StateWon, e.State())
	assert.Equal(t, scoring.Score{Points: 60, Moves: 6}, e.Score())
	assert.Equal(t, 7, e.HistoryLen())
	assert.Contains(t, log.types(), rules.EventGameWon)
	assert.False(t, e.View().AutoFinishPending)

	// a won game may be dealt again
	require.NoError(t, e.ShuffleAndDeal())
	assert.Equal(t, StateDealt, e.State())
}

func TestAutoFinishOfferedAfterMove(t *testing.T) {
	tbl := nearlyWon()
	jack := tbl.Piles[1][2]
	tbl.Piles[1] = tbl.Piles[1][:2]
	tbl.Waste = []cards.Card{jack}

	e := NewEngine(nil, EngineConfig{Debug: true})
	loadTable(e, tbl)
	assert.False(t, e.View().AutoFinishPending)

	require.NoError(t, e.BeginDrag(jack.ID(), Point{}))
	require.NoError(t, e.EndDrag(table.PileRef{ID: 2}))
	v := e.View()
	assert.True(t, v.AutoFinishPending)
	assert.True(t, v.AutoFinishAvailable)

	require.NoError(t, e.CancelAutoFinish())
	assert.False(t, e.View().AutoFinishPending)
	_, err := e.ConfirmAutoFinish()
	assert.ErrorIs(t, err, ErrNoConfirmationPending)
	assert.False(t, e.IsWon())
}

func TestAutoFinishUnavailable(t *testing.T) {
	e, _ := newDealtEngine(t, cards.NewShuffler(9))
	assert.False(t, e.CheckAutoFinish())
	assert.False(t, e.AutoFinishAvailable())
	assert.ErrorIs(t, e.CancelAutoFinish(), ErrNoConfirmationPending)
}

func TestViewJSON(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{id(cards.Ten, cards.Hearts)})
	raw, err := json.Marshal(e.View())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "DEALT", decoded["state"])
	assert.Equal(t, float64(24), decoded["stock_count"])
	assert.NotContains(t, decoded, "drag")
	assert.NotContains(t, decoded, "hint")

	piles := decoded["piles"].([]any)
	require.Len(t, piles, 7)
	first := piles[0].([]any)[0].(map[string]any)
	assert.Equal(t, "10H", first["id"])
	assert.Equal(t, true, first["face_up"])
	assert.Equal(t, "Red", first["color"])
}

func TestDebugValidationPanics(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)
	e := NewEngine(logger, EngineConfig{Debug: true, Shuffler: arranged{}})
	require.NoError(t, e.ShuffleAndDeal())

	e.mu.Lock()
	e.table.Waste = append(e.table.Waste, e.table.Piles[0][0])
	e.mu.Unlock()

	assert.Panics(t, func() { _ = e.DrawCard() })

	// the lock is released by the panicking intent
	done := make(chan State, 1)
	go func() { done <- e.State() }()
	select {
	case st := <-done:
		assert.Equal(t, StateDealt, st)
	case <-time.After(time.Second):
		t.Fatal("engine still locked after a panicking intent")
	}
}

func TestViewHintCandidates(t *testing.T) {
	e, _ := newDealtEngine(t, arranged{id(cards.Ace, cards.Clubs)})
	assert.Equal(t, 1, e.View().HintCandidates)

	require.NoError(t, e.DoubleTap(id(cards.Ace, cards.Clubs)))
	assert.Zero(t, e.View().HintCandidates)

	idle := NewEngine(nil, EngineConfig{})
	assert.Zero(t, idle.View().HintCandidates)
}
