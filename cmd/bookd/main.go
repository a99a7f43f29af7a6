package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bookd/params"
	"bookd/pkg/api"
	"bookd/pkg/book"
	"bookd/pkg/storage"
	"bookd/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Server.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Server.LogFile)

	backend, err := storage.Open(cfg.Storage)
	if err != nil {
		sugar.Fatalw("backend_init_failed", "backend", cfg.Storage.Backend, "err", err)
	}
	defer backend.Close()
	sugar.Infow("backend_ready", "backend", cfg.Storage.Backend)

	b := book.New(backend, book.WithLogger(sugar))
	server := api.NewServer(b, sugar)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx, cfg.Server.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Fatalw("server_failed", "err", err)
	}
	sugar.Infow("shutdown_complete")
}
