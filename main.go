package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lpc864-ual/dlt-prototype/api"
	"github.com/lpc864-ual/dlt-prototype/config"
	"github.com/lpc864-ual/dlt-prototype/core"
	"github.com/lpc864-ual/dlt-prototype/logging"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error("ledger stopped", "error", err)
		os.Exit(1)
	}
}

// run builds a chain, walks it through the demo and, when an HTTP address is
// configured, keeps serving it until ctx is done.
func run(ctx context.Context, cfg config.Config, log *slog.Logger, out io.Writer) error {
	chain, err := core.NewChain(ctx, cfg.Chain.Difficulty,
		core.WithLogger(log),
		core.WithProgress(cfg.Chain.ProgressInterval, core.LogProgress(log, cfg.Chain.ProgressLogEvery)),
	)
	if err != nil {
		return err
	}
	defer chain.Close()

	var srv *http.Server
	if cfg.HTTP.ListenAddr != "" {
		srv = &http.Server{
			Addr:         cfg.HTTP.ListenAddr,
			Handler:      api.NewServer(chain, log).Handler(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}
		go func() {
			log.Info("HTTP server running", "addr", cfg.HTTP.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server failed", "error", err)
			}
		}()
	}

	if err := runDemo(ctx, chain, newPrinter(out)); err != nil {
		return err
	}

	if srv == nil {
		return nil
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runDemo(ctx context.Context, chain *core.Chain, p *printer) error {
	p.heading("Blockchain initialised with genesis block")
	p.chain(chain.Blocks())

	for _, e := range []core.Entry{
		{"from": "Alice", "to": "Bob", "amount": 10},
		{"from": "Bob", "to": "Charlie", "amount": 5},
	} {
		id, err := chain.EnqueueEntry(e)
		if err != nil {
			return err
		}
		p.entry(id, e)
	}

	p.heading("Adding block with pending transactions")
	if _, err := chain.MintBlock(ctx, nil); err != nil {
		return err
	}
	p.chain(chain.Blocks())

	p.heading("Adding block with direct data")
	if _, err := chain.MintBlock(ctx, core.Payload{"message": "Block with direct data"}); err != nil {
		return err
	}
	p.chain(chain.Blocks())

	p.heading("Verifying the chain")
	p.validity(chain.ValidateChain())
	p.stats(chain.Stats())
	return nil
}
