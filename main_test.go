package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/require"

	"github.com/lpc864-ual/dlt-prototype/config"
	"github.com/lpc864-ual/dlt-prototype/core"
)

func TestRunDemo(t *testing.T) {
	color.NoColor = true

	cfg := config.Default()
	cfg.Chain.Difficulty = 1
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), cfg, log, &out))

	s := out.String()
	require.Contains(t, s, "=== Blockchain initialised with genesis block ===")
	require.Contains(t, s, "Block #0")
	require.Contains(t, s, "Block #1")
	require.Contains(t, s, "Block #2")
	require.Contains(t, s, `"from":"Alice"`)
	require.Contains(t, s, "Block with direct data")
	require.Contains(t, s, "Is the blockchain valid? Yes")
	require.Contains(t, s, "blocks: 3, difficulty: 1")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := config.Default()
	cfg.Chain.Difficulty = core.MaxDifficulty
	err := run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), io.Discard)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestPrinterValidityFailure(t *testing.T) {
	color.NoColor = true

	var out bytes.Buffer
	newPrinter(&out).validity(&core.ChainError{Index: 2, Err: core.ErrBrokenLink})
	require.Equal(t, "Is the blockchain valid? No (invalid block 2: broken link to previous block)\n", out.String())
}
