package core

import (
	"errors"
	"fmt"
)

var (
	ErrIndexMismatch    = errors.New("index mismatch")
	ErrBrokenLink       = errors.New("broken link to previous block")
	ErrHashMismatch     = errors.New("hash does not match block content")
	ErrInsufficientWork = errors.New("insufficient proof of work")

	// ErrInconsistentMining is returned when a freshly mined block fails
	// validation. It means the miner and the validator disagree and is a bug,
	// not a normal outcome.
	ErrInconsistentMining = errors.New("mined block failed validation")

	// ErrIndexOutOfSync means the hash index and the block list disagree.
	ErrIndexOutOfSync = errors.New("block index out of sync")

	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidEntry      = errors.New("invalid entry")
)

// ChainError reports the first block that violates a chain invariant.
type ChainError struct {
	Index int
	Err   error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("invalid block %d: %v", e.Index, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

// validateCandidate checks newBlock against its predecessor. The checks run in
// a fixed order and stop at the first failure.
func validateCandidate(newBlock, previous Block, difficulty int) error {
	if newBlock.index != previous.index+1 {
		return fmt.Errorf("%w: got %d, want %d", ErrIndexMismatch, newBlock.index, previous.index+1)
	}
	if newBlock.previousHash != previous.hash {
		return fmt.Errorf("%w: got %s, want %s", ErrBrokenLink, newBlock.previousHash, previous.hash)
	}
	return validateContent(newBlock, difficulty)
}

// validateGenesis checks the origin block, which has no predecessor.
func validateGenesis(b Block, difficulty int) error {
	if b.index != 0 {
		return fmt.Errorf("%w: origin block has index %d", ErrIndexMismatch, b.index)
	}
	if b.previousHash != GenesisPreviousHash {
		return fmt.Errorf("%w: origin block links to %s", ErrBrokenLink, b.previousHash)
	}
	return validateContent(b, difficulty)
}

func validateContent(b Block, difficulty int) error {
	if computed := b.CalculateHash(); computed != b.hash {
		return fmt.Errorf("%w: stored %s, computed %s", ErrHashMismatch, b.hash, computed)
	}
	if !MeetsDifficulty(b.hash, difficulty) {
		return fmt.Errorf("%w: %s needs %d leading zeros", ErrInsufficientWork, b.hash, difficulty)
	}
	return nil
}

// ValidateCandidate checks that newBlock can follow previous on this chain:
// index, previous-hash link, hash integrity and proof of work, in that order.
func (c *Chain) ValidateCandidate(newBlock, previous Block) error {
	return validateCandidate(newBlock, previous, c.difficulty)
}

// ValidateChain walks the whole chain and returns a *ChainError for the first
// block that breaks an invariant, or nil if every block passes.
func (c *Chain) ValidateChain() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.blocks) == 0 {
		return &ChainError{Index: 0, Err: errors.New("chain has no origin block")}
	}
	if err := validateGenesis(c.blocks[0], c.difficulty); err != nil {
		return &ChainError{Index: 0, Err: err}
	}
	for i := 1; i < len(c.blocks); i++ {
		if err := validateCandidate(c.blocks[i], c.blocks[i-1], c.difficulty); err != nil {
			return &ChainError{Index: i, Err: err}
		}
	}

	n, err := c.index.Len()
	if err != nil {
		return &ChainError{Index: len(c.blocks) - 1, Err: err}
	}
	if n != len(c.blocks) {
		return &ChainError{
			Index: min(n, len(c.blocks)-1),
			Err:   fmt.Errorf("%w: %d indexed, %d blocks", ErrIndexOutOfSync, n, len(c.blocks)),
		}
	}
	return nil
}

// IsValid reports whether ValidateChain finds no violation.
func (c *Chain) IsValid() bool {
	err := c.ValidateChain()
	if err != nil {
		c.logger.Warn("chain validation failed", "error", err)
	}
	return err == nil
}
