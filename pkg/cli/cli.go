// Package cli implements the interactive order-book console: the same
// command set as the daemon's REST surface, driven from argv or a stdin REPL.
package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"bookd/pkg/book"
)

// Console dispatches textual commands against a book and renders the
// results. Output is pretty-printed JSON for list/history, plain text
// otherwise.
type Console struct {
	Book *book.Book
	Out  io.Writer
}

// Run executes a single command line, already split into fields. Unknown or
// malformed commands print usage and return ErrInvalidCommand; engine errors
// pass through.
func (c *Console) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}

	switch args[0] {
	case "bid", "ask":
		if len(args) != 4 {
			fmt.Fprintf(c.Out, "usage: %s [USER] [PRICE] [AMOUNT]\n", args[0])
			return fmt.Errorf("%w: %s takes 3 arguments", book.ErrInvalidCommand, args[0])
		}
		side, _ := book.ParseSide(args[0])
		price, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("%w: bad price %q", book.ErrInvalidCommand, args[2])
		}
		amount, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("%w: bad amount %q", book.ErrInvalidCommand, args[3])
		}
		return c.Book.Place(ctx, side, args[1], price, amount)

	case "list":
		depth, err := c.Book.Snapshot(ctx)
		if err != nil {
			return err
		}
		return c.printJSON(depth)

	case "match":
		fills, err := c.Book.Match(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.Out, fills)
		return nil

	case "history":
		if len(args) != 3 {
			fmt.Fprintln(c.Out, "usage: history [START] [STOP]")
			return fmt.Errorf("%w: history takes 2 arguments", book.ErrInvalidCommand)
		}
		start, err1 := strconv.Atoi(args[1])
		stop, err2 := strconv.Atoi(args[2])
		if err1 != nil || err2 != nil {
			return fmt.Errorf("%w: history bounds must be integers", book.ErrInvalidCommand)
		}
		trades, err := c.Book.Trades(ctx, start, stop)
		if err != nil {
			return err
		}
		if trades == nil {
			trades = []book.Trade{}
		}
		return c.printJSON(trades)

	case "clear":
		return c.Book.Clear(ctx)

	case "help":
		fmt.Fprint(c.Out, ""+
			"bid [USER] [PRICE] [AMOUNT]   Bid AMOUNT at PRICE\n"+
			"ask [USER] [PRICE] [AMOUNT]   Ask AMOUNT at PRICE\n"+
			"list                          List all unmatched prices\n"+
			"match                         Match bids and asks\n"+
			"history [START] [STOP]        List STARTth to STOPth latest trades\n"+
			"clear                         Remove all book and trade data\n"+
			"help                          Show this help\n")
		return nil

	default:
		fmt.Fprintln(c.Out, "unknown command")
		return fmt.Errorf("%w: %q", book.ErrInvalidCommand, args[0])
	}
}

// REPL reads command lines from r until EOF. A prompt is written before each
// line when prompt is set. Command errors are printed, not fatal.
func (c *Console) REPL(ctx context.Context, r io.Reader, prompt string) error {
	scanner := bufio.NewScanner(r)
	for {
		if prompt != "" {
			fmt.Fprint(c.Out, prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := c.Run(ctx, strings.Fields(scanner.Text())); err != nil {
			fmt.Fprintln(c.Out, err)
		}
	}
}

func (c *Console) printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.Out, string(out))
	return nil
}
