package core

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises the mining effort spent on the chain.
type Stats struct {
	Blocks           int           `json:"blocks"`
	Difficulty       int           `json:"difficulty"`
	TotalAttempts    uint64        `json:"total_attempts"`
	ExpectedAttempts float64       `json:"expected_attempts"`
	MeanAttempts     float64       `json:"mean_attempts"`
	StdDevAttempts   float64       `json:"stddev_attempts"`
	MeanDuration     time.Duration `json:"mean_duration"`
	StdDevDuration   time.Duration `json:"stddev_duration"`
}

// Stats computes mining statistics over every block mined by this chain.
func (c *Chain) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	attempts := make([]float64, len(c.records))
	durations := make([]float64, len(c.records))
	var total uint64
	for i, r := range c.records {
		attempts[i] = float64(r.Attempts)
		durations[i] = float64(r.Elapsed)
		total += r.Attempts
	}

	s := Stats{
		Blocks:           len(c.blocks),
		Difficulty:       c.difficulty,
		TotalAttempts:    total,
		ExpectedAttempts: math.Pow(16, float64(c.difficulty)),
	}
	s.MeanAttempts, s.StdDevAttempts = meanStdDev(attempts)
	meanDur, stdDur := meanStdDev(durations)
	s.MeanDuration = time.Duration(meanDur)
	s.StdDevDuration = time.Duration(stdDur)
	return s
}

// meanStdDev is stat.MeanStdDev with zero spread for fewer than two samples.
func meanStdDev(x []float64) (float64, float64) {
	switch len(x) {
	case 0:
		return 0, 0
	case 1:
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
