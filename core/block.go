package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// GenesisPreviousHash is the previous-hash sentinel carried by the origin block.
const GenesisPreviousHash = "0"

// Payload is the structured data stored in a block.
type Payload map[string]any

// Entry is a transaction-like record waiting to be batched into a block.
type Entry map[string]any

// Block represents a sealed block in the chain. A Block is a value: once sealed
// none of its fields can change, and the payload is only handed out as a copy.
type Block struct {
	index        int
	previousHash string
	timestamp    float64
	data         json.RawMessage
	nonce        uint64
	hash         string
}

// Candidate is a block under construction. The miner is the only code that
// mutates it; Seal freezes it into a Block.
type Candidate struct {
	index        int
	previousHash string
	timestamp    float64
	data         json.RawMessage
	nonce        uint64
	hash         string
}

// NewCandidate builds a candidate with nonce 0 and computes its hash right away.
// No validation is done here; that is the chain's job.
func NewCandidate(index int, previousHash string, timestamp float64, payload Payload) (*Candidate, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}
	c := &Candidate{
		index:        index,
		previousHash: previousHash,
		timestamp:    timestamp,
		data:         data,
	}
	c.hash = c.CalculateHash()
	return c, nil
}

// CalculateHash calculates the hash of the candidate at its current nonce.
func (c *Candidate) CalculateHash() string {
	return calculateHash(c.index, c.previousHash, c.timestamp, c.data, c.nonce)
}

func (c *Candidate) Index() int           { return c.index }
func (c *Candidate) PreviousHash() string { return c.previousHash }
func (c *Candidate) Nonce() uint64        { return c.nonce }
func (c *Candidate) Hash() string         { return c.hash }

// Seal freezes the candidate into an immutable Block.
func (c *Candidate) Seal() Block {
	return Block{
		index:        c.index,
		previousHash: c.previousHash,
		timestamp:    c.timestamp,
		data:         append(json.RawMessage(nil), c.data...),
		nonce:        c.nonce,
		hash:         c.hash,
	}
}

// CalculateHash recomputes the hash of the block from its fields.
func (b Block) CalculateHash() string {
	return calculateHash(b.index, b.previousHash, b.timestamp, b.data, b.nonce)
}

func (b Block) Index() int           { return b.index }
func (b Block) PreviousHash() string { return b.previousHash }
func (b Block) Timestamp() float64   { return b.timestamp }
func (b Block) Nonce() uint64        { return b.nonce }
func (b Block) Hash() string         { return b.hash }

// Time returns the block timestamp as a time.Time.
func (b Block) Time() time.Time {
	return timeFromSeconds(b.timestamp)
}

// Payload decodes a fresh copy of the block payload. Numbers come back as
// json.Number.
func (b Block) Payload() Payload {
	dec := json.NewDecoder(bytes.NewReader(b.data))
	dec.UseNumber()
	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil
	}
	return p
}

// RawPayload returns a copy of the canonical payload encoding.
func (b Block) RawPayload() json.RawMessage {
	return append(json.RawMessage(nil), b.data...)
}

// MarshalJSON renders the block for export.
func (b Block) MarshalJSON() ([]byte, error) {
	return json.Marshal(blockJSON{
		Index:        b.index,
		PreviousHash: b.previousHash,
		Timestamp:    b.timestamp,
		Data:         b.data,
		Nonce:        b.nonce,
		Hash:         b.hash,
	})
}

func (b Block) String() string {
	return fmt.Sprintf("Block #%d\nHash: %s\nPrevious Hash: %s\nTimestamp: %s\nData: %s\nNonce: %d\n",
		b.index, b.hash, b.previousHash, b.Time().Format("2006-01-02 15:04:05"), b.data, b.nonce)
}

type blockJSON struct {
	Index        int             `json:"index"`
	PreviousHash string          `json:"previous_hash"`
	Timestamp    float64         `json:"timestamp"`
	Data         json.RawMessage `json:"data"`
	Nonce        uint64          `json:"nonce"`
	Hash         string          `json:"hash"`
}

// calculateHash hashes the canonical encoding of the block fields. Fields are
// declared in key order and the payload is already encoded with sorted keys, so
// logically identical blocks always produce the same bytes.
func calculateHash(index int, previousHash string, timestamp float64, data json.RawMessage, nonce uint64) string {
	encoded, _ := json.Marshal(struct {
		Data         json.RawMessage `json:"data"`
		Index        int             `json:"index"`
		Nonce        uint64          `json:"nonce"`
		PreviousHash string          `json:"previous_hash"`
		Timestamp    float64         `json:"timestamp"`
	}{
		Data:         data,
		Index:        index,
		Nonce:        nonce,
		PreviousHash: previousHash,
		Timestamp:    timestamp,
	})
	hash := sha256.Sum256(encoded)
	return fmt.Sprintf("%x", hash)
}

// encodePayload produces the canonical payload encoding. encoding/json writes
// map keys in sorted order at every nesting level.
func encodePayload(payload Payload) (json.RawMessage, error) {
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

func secondsFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func timeFromSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}
