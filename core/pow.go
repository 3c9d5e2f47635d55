package core

import (
	"context"
	"crypto/sha256"
	"time"
)

// DefaultProgressInterval is the number of nonces between progress reports.
const DefaultProgressInterval = 100000

// MaxDifficulty is the length of a hex-encoded SHA-256 digest.
const MaxDifficulty = 2 * sha256.Size

// Progress is reported to a ProgressFunc while a search is running.
type Progress struct {
	Index    int
	Nonce    uint64
	Hash     string
	Attempts uint64
	Elapsed  time.Duration
}

// ProgressFunc observes a running proof-of-work search.
type ProgressFunc func(Progress)

// MineOptions tune the proof-of-work search.
type MineOptions struct {
	// ProgressInterval is the nonce cadence at which OnProgress is called.
	// Zero means DefaultProgressInterval.
	ProgressInterval uint64
	OnProgress       ProgressFunc
}

// MineResult describes a finished search.
type MineResult struct {
	Attempts uint64
	Elapsed  time.Duration
}

// MeetsDifficulty reports whether the first difficulty characters of hash are '0'.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty < 0 || difficulty > len(hash) {
		return false
	}
	for i := 0; i < difficulty; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

// Mine runs the proof-of-work search on c, incrementing its nonce and
// recomputing its hash until the hash meets difficulty. Only the nonce and
// hash of c are touched.
//
// The search has no upper bound. The expected number of attempts is
// 16^difficulty, so termination is almost sure but not bounded in time. ctx is
// checked between attempts; when it is done Mine returns ctx.Err() and leaves c
// at the last nonce it tried.
func Mine(ctx context.Context, c *Candidate, difficulty int, opts MineOptions) (MineResult, error) {
	interval := opts.ProgressInterval
	if interval == 0 {
		interval = DefaultProgressInterval
	}

	start := time.Now()
	attempts := uint64(1) // the hash computed at construction
	for !MeetsDifficulty(c.hash, difficulty) {
		select {
		case <-ctx.Done():
			return MineResult{Attempts: attempts, Elapsed: time.Since(start)}, ctx.Err()
		default:
		}

		c.nonce++
		c.hash = c.CalculateHash()
		attempts++

		if opts.OnProgress != nil && c.nonce%interval == 0 {
			opts.OnProgress(Progress{
				Index:    c.index,
				Nonce:    c.nonce,
				Hash:     c.hash,
				Attempts: attempts,
				Elapsed:  time.Since(start),
			})
		}
	}
	return MineResult{Attempts: attempts, Elapsed: time.Since(start)}, nil
}
