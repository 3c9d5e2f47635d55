package core

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// LogProgress returns a ProgressFunc that logs at most once per every.
func LogProgress(logger *slog.Logger, every time.Duration) ProgressFunc {
	limiter := rate.NewLimiter(rate.Every(every), 1)
	return func(p Progress) {
		if !limiter.Allow() {
			return
		}
		logger.Info("mining progress",
			"index", p.Index,
			"nonce", p.Nonce,
			"hash", p.Hash,
			"attempts", p.Attempts,
			"elapsed", p.Elapsed)
	}
}
