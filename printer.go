package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/lpc864-ual/dlt-prototype/core"
)

// printer renders the chain for a terminal.
type printer struct {
	out     io.Writer
	title   *color.Color
	label   *color.Color
	good    *color.Color
	bad     *color.Color
	divider string
}

func newPrinter(out io.Writer) *printer {
	return &printer{
		out:     out,
		title:   color.New(color.FgCyan, color.Bold),
		label:   color.New(color.FgYellow),
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed, color.Bold),
		divider: strings.Repeat("-", 30),
	}
}

func (p *printer) heading(s string) {
	p.title.Fprintf(p.out, "\n=== %s ===\n", s)
}

func (p *printer) chain(blocks []core.Block) {
	p.title.Fprintln(p.out, "\n=== BLOCKCHAIN ===")
	for _, b := range blocks {
		fmt.Fprint(p.out, b)
		fmt.Fprintln(p.out, p.divider)
	}
}

func (p *printer) entry(id string, e core.Entry) {
	p.label.Fprint(p.out, "Transaction added to pool: ")
	fmt.Fprintf(p.out, "%v (%s)\n", e, id)
}

func (p *printer) validity(err error) {
	if err == nil {
		p.good.Fprintln(p.out, "Is the blockchain valid? Yes")
		return
	}
	p.bad.Fprintf(p.out, "Is the blockchain valid? No (%v)\n", err)
}

func (p *printer) stats(s core.Stats) {
	p.label.Fprintln(p.out, "Mining statistics:")
	fmt.Fprintf(p.out, "  blocks: %d, difficulty: %d\n", s.Blocks, s.Difficulty)
	fmt.Fprintf(p.out, "  attempts: %d total, %.1f mean (expected %.0f), %.1f stddev\n",
		s.TotalAttempts, s.MeanAttempts, s.ExpectedAttempts, s.StdDevAttempts)
	fmt.Fprintf(p.out, "  time per block: %s mean, %s stddev\n", s.MeanDuration, s.StdDevDuration)
}
