package core

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestChain(t *testing.T, difficulty int, opts ...Option) *Chain {
	t.Helper()
	opts = append([]Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithClock(func() time.Time { return testTime }),
	}, opts...)
	c, err := NewChain(context.Background(), difficulty, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func transactions(t *testing.T, b Block) []map[string]any {
	t.Helper()
	raw, ok := b.Payload()["transactions"].([]any)
	require.True(t, ok, "payload has no transactions list: %s", b.RawPayload())
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		m, ok := r.(map[string]any)
		require.True(t, ok)
		out = append(out, m)
	}
	return out
}

func TestNewChainGenesis(t *testing.T) {
	c := newTestChain(t, 2)

	require.Equal(t, 1, c.Len())
	g := c.Last()
	require.Equal(t, 0, g.Index())
	require.Equal(t, GenesisPreviousHash, g.PreviousHash())
	require.Equal(t, "Genesis Block", g.Payload()["message"])
	require.True(t, MeetsDifficulty(g.Hash(), 2))
	require.Equal(t, g.Hash(), g.CalculateHash())
	require.Equal(t, secondsFromTime(testTime), g.Timestamp())
	require.NoError(t, c.ValidateChain())
}

func TestNewChainGenesisPayload(t *testing.T) {
	c := newTestChain(t, 0, WithGenesisPayload(Payload{"message": "custom"}))
	require.Equal(t, "custom", c.Last().Payload()["message"])
}

func TestNewChainInvalidDifficulty(t *testing.T) {
	for _, d := range []int{-1, MaxDifficulty + 1} {
		_, err := NewChain(context.Background(), d)
		require.ErrorIs(t, err, ErrInvalidDifficulty)
	}
}

func TestNewChainCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewChain(ctx, MaxDifficulty)
	require.ErrorIs(t, err, context.Canceled)
}

func TestMintBlockFromPendingEntries(t *testing.T) {
	c := newTestChain(t, 1)
	genesis := c.Last()

	_, err := c.EnqueueEntry(Entry{"from": "Alice", "to": "Bob", "amount": 10})
	require.NoError(t, err)
	_, err = c.EnqueueEntry(Entry{"from": "Bob", "to": "Charlie", "amount": 5})
	require.NoError(t, err)
	require.Equal(t, 2, c.PendingCount())

	b, err := c.MintBlock(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 1, b.Index())
	require.Equal(t, genesis.Hash(), b.PreviousHash())
	require.Equal(t, byte('0'), b.Hash()[0])

	txs := transactions(t, b)
	require.Len(t, txs, 2)
	require.Equal(t, "Alice", txs[0]["from"])
	require.Equal(t, "Bob", txs[0]["to"])
	require.Equal(t, json.Number("10"), txs[0]["amount"])
	require.Equal(t, "Bob", txs[1]["from"])
	require.Equal(t, "Charlie", txs[1]["to"])
	require.Equal(t, json.Number("5"), txs[1]["amount"])

	require.True(t, c.IsValid())
	require.Equal(t, 0, c.PendingCount())
	require.Equal(t, 2, c.Len())
}

func TestMintBlockWithPayload(t *testing.T) {
	c := newTestChain(t, 1)
	_, err := c.EnqueueEntry(Entry{"from": "Alice"})
	require.NoError(t, err)

	b, err := c.MintBlock(context.Background(), Payload{"message": "direct data"})
	require.NoError(t, err)
	require.Equal(t, "direct data", b.Payload()["message"])
	require.Equal(t, 1, c.PendingCount(), "explicit payload must not consume the queue")
}

func TestMintBlockEmptyQueue(t *testing.T) {
	c := newTestChain(t, 1)

	b, err := c.MintBlock(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, transactions(t, b))
	require.JSONEq(t, `{"transactions":[]}`, string(b.RawPayload()))
}

func TestLinkContinuity(t *testing.T) {
	for difficulty := 0; difficulty <= 3; difficulty++ {
		c := newTestChain(t, difficulty)
		for i := 0; i < 5; i++ {
			_, err := c.MintBlock(context.Background(), Payload{"n": i})
			require.NoError(t, err)
		}

		blocks := c.Blocks()
		require.Len(t, blocks, 6)
		for i := 1; i < len(blocks); i++ {
			require.Equal(t, i, blocks[i].Index())
			require.Equal(t, blocks[i-1].Hash(), blocks[i].PreviousHash())
			require.True(t, MeetsDifficulty(blocks[i].Hash(), difficulty))
		}
		require.NoError(t, c.ValidateChain())
	}
}

func TestMintBlockCancelledRestoresQueue(t *testing.T) {
	c := newTestChain(t, 1)
	first, err := c.EnqueueEntry(Entry{"n": 1})
	require.NoError(t, err)
	second, err := c.EnqueueEntry(Entry{"n": 2})
	require.NoError(t, err)

	// Make the next search effectively endless.
	c.difficulty = MaxDifficulty
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.MintBlock(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, c.Len())

	pending := c.PendingEntries()
	require.Len(t, pending, 2)
	require.Equal(t, first, pending[0]["id"])
	require.Equal(t, second, pending[1]["id"])
}

func TestEnqueueEntry(t *testing.T) {
	c := newTestChain(t, 0, WithClock(func() time.Time { return testTime }))

	entry := Entry{"from": "Alice", "meta": map[string]any{"memo": "rent"}}
	id, err := c.EnqueueEntry(entry)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	entry["from"] = "Mallory"
	entry["meta"].(map[string]any)["memo"] = "changed"
	_, hasID := entry["id"]
	require.False(t, hasID, "caller map must not be modified")

	pending := c.PendingEntries()
	require.Len(t, pending, 1)
	require.Equal(t, "Alice", pending[0]["from"])
	require.Equal(t, "rent", pending[0]["meta"].(map[string]any)["memo"])
	require.Equal(t, id, pending[0]["id"])
	require.Equal(t, secondsFromTime(testTime), pending[0]["timestamp"])
}

func TestEnqueueEntryNoDeduplication(t *testing.T) {
	c := newTestChain(t, 0)
	entry := Entry{"from": "Alice", "to": "Bob", "amount": 1}

	a, err := c.EnqueueEntry(entry)
	require.NoError(t, err)
	b, err := c.EnqueueEntry(entry)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, 2, c.PendingCount())
}

func TestEnqueueEntryInvalid(t *testing.T) {
	tests := []struct {
		name  string
		entry Entry
	}{
		{"nil", nil},
		{"unencodable", Entry{"ch": make(chan int)}},
		{"caller id", Entry{"id": "mine", "from": "Alice"}},
		{"null id", Entry{"id": nil}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChain(t, 0)
			_, err := c.EnqueueEntry(tt.entry)
			require.ErrorIs(t, err, ErrInvalidEntry)
			require.Equal(t, 0, c.PendingCount())
		})
	}
}

func TestEnqueueEntryKeepsLargeIntegers(t *testing.T) {
	tests := []struct {
		name   string
		amount any
		want   string
	}{
		{"above 2^53", int64(9007199254740993), "9007199254740993"},
		{"max int64", int64(9223372036854775807), "9223372036854775807"},
		{"max uint64", uint64(18446744073709551615), "18446744073709551615"},
		{"json number", json.Number("12345678901234567890123"), "12345678901234567890123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestChain(t, 0)
			_, err := c.EnqueueEntry(Entry{"amount": tt.amount})
			require.NoError(t, err)

			b, err := c.MintBlock(context.Background(), nil)
			require.NoError(t, err)
			require.Contains(t, string(b.RawPayload()), `"amount":`+tt.want+`,`)
			require.Equal(t, json.Number(tt.want), transactions(t, b)[0]["amount"])
			require.NoError(t, c.ValidateChain())
		})
	}
}

func TestMintBlockRejectedByValidator(t *testing.T) {
	c := newTestChain(t, 0)
	first, err := c.EnqueueEntry(Entry{"n": 1})
	require.NoError(t, err)
	second, err := c.EnqueueEntry(Entry{"n": 2})
	require.NoError(t, err)
	tip := c.Last()

	var published int
	c.Subscribe(func(Block) { published++ })

	// The miner works at difficulty 0 while the validator demands the maximum.
	c.validate = func(newBlock, previous Block, _ int) error {
		return validateCandidate(newBlock, previous, MaxDifficulty)
	}

	_, err = c.MintBlock(context.Background(), nil)
	require.ErrorIs(t, err, ErrInconsistentMining)
	require.ErrorIs(t, err, ErrInsufficientWork)

	require.Equal(t, 1, c.Len())
	require.Equal(t, tip.Hash(), c.Last().Hash())
	require.Zero(t, published)
	require.NoError(t, c.ValidateChain())

	pending := c.PendingEntries()
	require.Len(t, pending, 2)
	require.Equal(t, first, pending[0]["id"])
	require.Equal(t, second, pending[1]["id"])

	c.validate = validateCandidate
	b, err := c.MintBlock(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, b.Index())
	require.Len(t, transactions(t, b), 2)
}

func TestBlockByHash(t *testing.T) {
	c := newTestChain(t, 1)
	b, err := c.MintBlock(context.Background(), Payload{"message": "find me"})
	require.NoError(t, err)

	got, ok, err := c.BlockByHash(b.Hash())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, b.Hash(), got.Hash())
	require.Equal(t, 1, got.Index())

	_, ok, err = c.BlockByHash("missing")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestBlockAccessors(t *testing.T) {
	c := newTestChain(t, 0)
	_, ok := c.Block(-1)
	require.False(t, ok)
	_, ok = c.Block(1)
	require.False(t, ok)

	g, ok := c.Block(0)
	require.True(t, ok)
	require.Equal(t, c.Last().Hash(), g.Hash())
	require.Equal(t, 0, c.Difficulty())
}

func TestSubscribe(t *testing.T) {
	c := newTestChain(t, 0)

	var got []int
	unsubscribe := c.Subscribe(func(b Block) { got = append(got, b.Index()) })

	_, err := c.MintBlock(context.Background(), Payload{"n": 1})
	require.NoError(t, err)
	_, err = c.MintBlock(context.Background(), Payload{"n": 2})
	require.NoError(t, err)

	unsubscribe()
	_, err = c.MintBlock(context.Background(), Payload{"n": 3})
	require.NoError(t, err)

	require.Equal(t, []int{1, 2}, got)
}

func TestProgressOption(t *testing.T) {
	var calls int
	c := newTestChain(t, 0, WithProgress(1, func(Progress) { calls++ }))
	require.Equal(t, uint64(1), c.progressInterval)
	require.NotNil(t, c.onProgress)
	require.Zero(t, calls, "difficulty 0 accepts the first hash without searching")
}
