package replay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klondike/klondike-server-go/internal/game"
	"github.com/klondike/klondike-server-go/internal/game/cards"
	"github.com/klondike/klondike-server-go/internal/game/rules"
	"github.com/klondike/klondike-server-go/internal/game/scoring"
	"github.com/klondike/klondike-server-go/internal/game/table"
)

// dealt returns a table with the fresh deck in the stock.
func dealt() *table.Table {
	t := table.New()
	t.Stock = cards.NewDeck()
	return t
}

func frame(t *table.Table, points int) Frame {
	return Frame{Table: t, Score: scoring.Score{Points: points}, Checksum: t.Checksum()}
}

func drawn(t *table.Table) *table.Table {
	next := t.Clone()
	c := next.Stock[0]
	c.FaceUp = true
	next.Stock = next.Stock[1:]
	next.Waste = append(next.Waste, c)
	return next
}

func TestReplayAppendDropsRepeats(t *testing.T) {
	r := New("g1")
	first := dealt()

	assert.True(t, r.Append(frame(first, 0)))
	assert.False(t, r.Append(frame(first.Clone(), 0)))
	assert.True(t, r.Append(frame(first, 10)), "a score change is a new frame")
	assert.True(t, r.Append(frame(drawn(first), 10)))
	assert.Equal(t, 3, r.Len())

	f, ok := r.At(2)
	require.True(t, ok)
	assert.Equal(t, 2, f.Index)
	_, ok = r.At(3)
	assert.False(t, ok)
}

func TestReplayCursor(t *testing.T) {
	r := New("g1")
	tbl := dealt()
	for i := 0; i < 4; i++ {
		require.True(t, r.Append(frame(tbl, 0)))
		tbl = drawn(tbl)
	}

	_, ok := r.Previous()
	assert.False(t, ok)

	f, ok := r.Next()
	require.True(t, ok)
	assert.Equal(t, 0, f.Index)
	f, _ = r.Next()
	assert.Equal(t, 1, f.Index)

	f, ok = r.Previous()
	require.True(t, ok)
	assert.Equal(t, 0, f.Index)

	f, ok = r.Skip(10)
	require.True(t, ok)
	assert.Equal(t, 3, f.Index)
	_, ok = r.Next()
	assert.False(t, ok)

	f, _ = r.Skip(-10)
	assert.Equal(t, 0, f.Index)

	r.Start()
	f, _ = r.Next()
	assert.Equal(t, 0, f.Index)
}

func TestReplayFramesAreCopies(t *testing.T) {
	r := New("g1")
	r.Append(frame(dealt(), 0))

	f, _ := r.At(0)
	f.Table.Stock = nil
	again, _ := r.At(0)
	assert.Len(t, again.Table.Stock, cards.DeckSize)
}

func TestReplayVerify(t *testing.T) {
	r := New("g1")
	tbl := dealt()
	r.Append(frame(tbl, 0))
	r.Append(frame(drawn(tbl), 0))
	require.NoError(t, r.Verify())

	r.frames[1].Table.Waste = nil
	assert.ErrorContains(t, r.Verify(), "frame 1")
}

type stubSource struct {
	table *table.Table
	score scoring.Score
}

func (s *stubSource) Table() *table.Table  { return s.table.Clone() }
func (s *stubSource) Score() scoring.Score { return s.score }

func TestListenFinishesGames(t *testing.T) {
	rec := NewRecorder(nil, 0)
	src := &stubSource{table: dealt()}
	listen := rec.Listen(src)

	listen(rules.NewEvent(rules.EventDealt, "g1"))
	listen(rules.NewEvent(rules.EventHintChanged, "g1"))
	src.table = drawn(src.table)
	listen(rules.NewEvent(rules.EventCardDrawn, "g1"))
	assert.True(t, rec.IsRecording("g1"))

	listen(rules.NewEvent(rules.EventDealt, "g2"))
	assert.False(t, rec.IsRecording("g1"), "a new deal finishes the old game")

	old, err := rec.Get("g1")
	require.NoError(t, err)
	assert.Equal(t, 2, old.Len())

	src.score.Points = 10
	listen(rules.NewEvent(rules.EventGameWon, "g2"))
	assert.False(t, rec.IsRecording("g2"))
	src.score.Points = 0
	listen(rules.NewEvent(rules.EventUndo, "g2"))
	assert.False(t, rec.IsRecording("g2"), "events after the win are ignored")

	won, err := rec.Get("g2")
	require.NoError(t, err)
	assert.Equal(t, 2, won.Len())
}

func TestRecorderRetention(t *testing.T) {
	rec := NewRecorder(nil, 2)
	for _, id := range []string{"g1", "g2", "g3"} {
		rec.Record(id, "DEALT", dealt(), scoring.Score{})
		rec.Finish(id)
	}

	_, err := rec.Get("g1")
	assert.ErrorIs(t, err, ErrNotFound, "oldest finished replay is evicted")
	for _, id := range []string{"g2", "g3"} {
		rep, err := rec.Get(id)
		require.NoError(t, err)
		assert.Equal(t, 1, rep.Len())
	}

	rec.Finish("unknown")
	_, err = rec.Get("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordsEngine(t *testing.T) {
	engine := game.NewEngine(nil, game.EngineConfig{Shuffler: cards.NewShuffler(3), Debug: true})
	rec := NewRecorder(nil, 0)
	engine.Bus().Subscribe(rec.Listen(engine))

	require.NoError(t, engine.ShuffleAndDeal())
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.DrawCard())
	}
	require.NoError(t, engine.Undo())

	rep, err := rec.Get(engine.GameID())
	require.NoError(t, err)
	require.Equal(t, 5, rep.Len())
	require.NoError(t, rep.Verify())

	first, _ := rep.At(0)
	assert.Equal(t, string(rules.EventDealt), first.Event)
	assert.Len(t, first.Table.Stock, 24)

	last, _ := rep.At(4)
	assert.Equal(t, string(rules.EventUndo), last.Event)
	assert.Equal(t, engine.Table().Checksum(), last.Checksum)
	assert.Len(t, last.Table.Waste, 2)
}
