package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"bookd/pkg/book"
)

func newConsole() (*Console, *bytes.Buffer) {
	var out bytes.Buffer
	c := &Console{
		Book: book.New(book.NewMemoryBackend()),
		Out:  &out,
	}
	return c, &out
}

func run(t *testing.T, c *Console, line string) {
	t.Helper()
	if err := c.Run(context.Background(), strings.Fields(line)); err != nil {
		t.Fatalf("%q: %v", line, err)
	}
}

func TestConsoleSession(t *testing.T) {
	c, out := newConsole()

	run(t, c, "bid alice 10.00 5")
	run(t, c, "ask bob 9.00 3")

	out.Reset()
	run(t, c, "match")
	if got := strings.TrimSpace(out.String()); got != "1" {
		t.Errorf("match output = %q, want 1", got)
	}

	out.Reset()
	run(t, c, "list")
	var depth book.Depth
	if err := json.Unmarshal(out.Bytes(), &depth); err != nil {
		t.Fatalf("list output not JSON: %v\n%s", err, out.String())
	}
	if len(depth.Bids) != 1 || len(depth.Asks) != 0 {
		t.Errorf("depth = %+v, want leftover bid only", depth)
	}

	out.Reset()
	run(t, c, "history 0 -1")
	var trades []book.Trade
	if err := json.Unmarshal(out.Bytes(), &trades); err != nil {
		t.Fatalf("history output not JSON: %v\n%s", err, out.String())
	}
	if len(trades) != 1 || trades[0].Bidder != "alice" {
		t.Errorf("trades = %+v, want one alice fill", trades)
	}

	run(t, c, "clear")
	out.Reset()
	run(t, c, "history 0 -1")
	if got := strings.TrimSpace(out.String()); got != "[]" {
		t.Errorf("history after clear = %q, want []", got)
	}
}

func TestConsoleBadCommands(t *testing.T) {
	c, _ := newConsole()
	ctx := context.Background()

	tests := []struct {
		name string
		line string
	}{
		{"unknown command", "frobnicate"},
		{"bid arity", "bid alice 10"},
		{"history arity", "history 3"},
		{"bad price", "bid alice ten 5"},
		{"bad history bounds", "history a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Run(ctx, strings.Fields(tt.line))
			if !errors.Is(err, book.ErrInvalidCommand) {
				t.Errorf("%q err = %v, want ErrInvalidCommand", tt.line, err)
			}
		})
	}

	// Engine-level rejections pass through untranslated.
	err := c.Run(ctx, strings.Fields("bid alice 0 5"))
	if !errors.Is(err, book.ErrInvalidOrder) {
		t.Errorf("zero price err = %v, want ErrInvalidOrder", err)
	}

	// Empty input is a no-op.
	if err := c.Run(ctx, nil); err != nil {
		t.Errorf("empty args err = %v", err)
	}
}

func TestREPLContinuesPastErrors(t *testing.T) {
	c, out := newConsole()

	input := strings.Join([]string{
		"bid alice 10 5",
		"bogus",
		"ask bob 9 5",
		"match",
	}, "\n")

	if err := c.REPL(context.Background(), strings.NewReader(input), ""); err != nil {
		t.Fatalf("repl: %v", err)
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("output %q missing unknown-command notice", out.String())
	}
	if !strings.HasSuffix(strings.TrimSpace(out.String()), "1") {
		t.Errorf("output %q should end with the match fill count", out.String())
	}
}
