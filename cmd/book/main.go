package main

import (
	"context"
	"fmt"
	"os"

	"bookd/params"
	"bookd/pkg/book"
	"bookd/pkg/cli"
	"bookd/pkg/storage"
)

// book is the console front end: with arguments it runs one command and
// exits, without it reads commands from stdin.
func main() {
	cfg := params.LoadFromEnv("")

	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer backend.Close()

	console := &cli.Console{
		Book: book.New(backend),
		Out:  os.Stdout,
	}
	ctx := context.Background()

	if len(os.Args) > 1 {
		if err := console.Run(ctx, os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	prompt := ""
	if fi, err := os.Stdin.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		prompt = "book> "
	}
	if err := console.REPL(ctx, os.Stdin, prompt); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
