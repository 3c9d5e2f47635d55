package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Chain is an append-only sequence of mined blocks plus the queue of entries
// waiting for the next block.
type Chain struct {
	mu      sync.RWMutex
	blocks  []Block
	records []MineResult
	pending []Entry
	index   *Index

	// mintMu serialises mints so only one candidate is built per height.
	mintMu sync.Mutex

	difficulty       int
	validate         func(newBlock, previous Block, difficulty int) error
	genesisPayload   Payload
	progressInterval uint64
	onProgress       ProgressFunc
	logger           *slog.Logger
	now              func() time.Time
	newID            func() string

	subMu     sync.Mutex
	subs      map[uint64]func(Block)
	nextSubID uint64
}

// Option configures a Chain.
type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) { c.logger = logger }
}

// WithClock overrides the time source used for block and entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// WithProgress installs a mining observer called every interval nonces.
func WithProgress(interval uint64, fn ProgressFunc) Option {
	return func(c *Chain) {
		c.progressInterval = interval
		c.onProgress = fn
	}
}

// WithGenesisPayload replaces the payload of the origin block.
func WithGenesisPayload(p Payload) Option {
	return func(c *Chain) { c.genesisPayload = p }
}

// NewChain creates a chain with the given difficulty and mines its origin block.
func NewChain(ctx context.Context, difficulty int, opts ...Option) (*Chain, error) {
	if difficulty < 0 || difficulty > MaxDifficulty {
		return nil, fmt.Errorf("%w: %d not in [0, %d]", ErrInvalidDifficulty, difficulty, MaxDifficulty)
	}

	c := &Chain{
		difficulty:     difficulty,
		validate:       validateCandidate,
		genesisPayload: Payload{"message": "Genesis Block"},
		logger:         slog.Default(),
		now:            time.Now,
		newID:          func() string { return uuid.New().String() },
		subs:           make(map[uint64]func(Block)),
	}
	for _, opt := range opts {
		opt(c)
	}

	index, err := NewIndex()
	if err != nil {
		return nil, err
	}
	c.index = index

	candidate, err := NewCandidate(0, GenesisPreviousHash, c.timestamp(), c.genesisPayload)
	if err != nil {
		c.index.Close()
		return nil, err
	}
	res, err := c.mine(ctx, candidate)
	if err != nil {
		c.index.Close()
		return nil, fmt.Errorf("failed to mine genesis block: %w", err)
	}
	genesis := candidate.Seal()
	if err := validateGenesis(genesis, difficulty); err != nil {
		c.index.Close()
		return nil, fmt.Errorf("%w: %w", ErrInconsistentMining, err)
	}
	if err := c.append(genesis, res); err != nil {
		c.index.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the block index.
func (c *Chain) Close() error {
	return c.index.Close()
}

func (c *Chain) Difficulty() int { return c.difficulty }

// Len returns the number of blocks, origin included.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}

// Last returns the chain tip.
func (c *Chain) Last() Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[len(c.blocks)-1]
}

// Block returns the block at index i.
func (c *Chain) Block(i int) (Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.blocks) {
		return Block{}, false
	}
	return c.blocks[i], true
}

// Blocks returns a snapshot of every block in order.
func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// BlockByHash looks a block up by its hash.
func (c *Chain) BlockByHash(hash string) (Block, bool, error) {
	height, ok, err := c.index.Height(hash)
	if err != nil || !ok {
		return Block{}, false, err
	}
	b, ok := c.Block(height)
	return b, ok, nil
}

// EnqueueEntry stamps entry with an id and the current time and queues it for
// the next mint. The caller's map is not retained. It returns the entry id.
// Entries that already carry an "id" key are rejected.
func (c *Chain) EnqueueEntry(entry Entry) (string, error) {
	if entry == nil {
		return "", fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}
	if _, ok := entry["id"]; ok {
		return "", fmt.Errorf("%w: id is assigned by the chain", ErrInvalidEntry)
	}
	queued, err := cloneEntry(entry)
	if err != nil {
		return "", err
	}
	id := c.newID()
	queued["id"] = id
	queued["timestamp"] = c.timestamp()

	c.mu.Lock()
	c.pending = append(c.pending, queued)
	n := len(c.pending)
	c.mu.Unlock()

	c.logger.Debug("entry queued", "id", id, "pending", n)
	return id, nil
}

func (c *Chain) PendingCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pending)
}

// PendingEntries returns copies of the queued entries in order.
func (c *Chain) PendingEntries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.pending))
	for _, e := range c.pending {
		cp := make(Entry, len(e))
		for k, v := range e {
			cp[k] = v
		}
		out = append(out, cp)
	}
	return out
}

// MintBlock mines a new block and appends it to the chain. With a nil payload
// the pending queue is drained into {"transactions": [...]}; an empty queue
// yields a block with an empty list. If the block cannot be mined or fails
// validation the chain is left unchanged and drained entries go back to the
// front of the queue.
func (c *Chain) MintBlock(ctx context.Context, payload Payload) (Block, error) {
	c.mintMu.Lock()
	defer c.mintMu.Unlock()

	var drained []Entry
	if payload == nil {
		drained = c.drainPending()
		payload = Payload{"transactions": drained}
	}

	last := c.Last()
	candidate, err := NewCandidate(last.index+1, last.hash, c.timestamp(), payload)
	if err != nil {
		c.restorePending(drained)
		return Block{}, err
	}

	c.logger.Info("mining block", "index", candidate.index, "difficulty", c.difficulty)
	res, err := c.mine(ctx, candidate)
	if err != nil {
		c.restorePending(drained)
		c.logger.Warn("mining stopped", "index", candidate.index, "attempts", res.Attempts, "error", err)
		return Block{}, fmt.Errorf("failed to mine block %d: %w", candidate.index, err)
	}

	block := candidate.Seal()
	if err := c.validate(block, last, c.difficulty); err != nil {
		c.restorePending(drained)
		c.logger.Error("mined block rejected", "index", block.index, "hash", block.hash, "error", err)
		return Block{}, fmt.Errorf("%w: %w", ErrInconsistentMining, err)
	}

	if err := c.append(block, res); err != nil {
		c.restorePending(drained)
		return Block{}, err
	}
	c.logger.Info("block added",
		"index", block.index,
		"hash", block.hash,
		"nonce", block.nonce,
		"attempts", res.Attempts,
		"elapsed", res.Elapsed)

	c.publish(block)
	return block, nil
}

// Subscribe registers fn to be called with every block appended after the
// call. The returned function removes the subscription.
func (c *Chain) Subscribe(fn func(Block)) func() {
	c.subMu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Chain) publish(b Block) {
	c.subMu.Lock()
	subs := make([]func(Block), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.subMu.Unlock()

	for _, fn := range subs {
		fn(b)
	}
}

func (c *Chain) mine(ctx context.Context, candidate *Candidate) (MineResult, error) {
	return Mine(ctx, candidate, c.difficulty, MineOptions{
		ProgressInterval: c.progressInterval,
		OnProgress:       c.onProgress,
	})
}

// append indexes b and adds it to the chain. Nothing is added if indexing fails.
func (c *Chain) append(b Block, res MineResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.index.Put(b.hash, len(c.blocks)); err != nil {
		return err
	}
	c.blocks = append(c.blocks, b)
	c.records = append(c.records, res)
	return nil
}

func (c *Chain) drainPending() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	drained := c.pending
	c.pending = nil
	if drained == nil {
		drained = []Entry{}
	}
	return drained
}

func (c *Chain) restorePending(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(append([]Entry(nil), entries...), c.pending...)
}

func (c *Chain) timestamp() float64 {
	return secondsFromTime(c.now())
}

// cloneEntry snapshots entry through its JSON form so later changes by the
// caller, including to nested values, cannot reach the queue. Numbers are kept
// as json.Number so large integers survive unchanged.
func cloneEntry(entry Entry) (Entry, error) {
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return decodeEntry(data)
}

func decodeEntry(data []byte) (Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out Entry
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return out, nil
}
