package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bookd/pkg/book"
)

// Server handles REST API and WebSocket connections for one order book.
type Server struct {
	book   *book.Book
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
	http   *http.Server
}

// NewServer creates a new API server around an order book.
func NewServer(b *book.Book, logger *zap.SugaredLogger) *Server {
	s := &Server{
		book:   b,
		router: mux.NewRouter(),
		hub:    NewHub(),
		log:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/book", s.handleGetBook).Methods("GET")
	api.HandleFunc("/match", s.handleMatch).Methods("POST")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/clear", s.handleClear).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Router exposes the handler tree, CORS included, for tests and embedding.
func (s *Server) Router() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run()

	s.http = &http.Server{Addr: addr, Handler: s.Router()}

	errc := make(chan error, 1)
	go func() { errc <- s.http.ListenAndServe() }()
	s.log.Infow("api_listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := book.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid price", req.Price)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	if err := s.book.Place(r.Context(), side, req.Owner, price, amount); err != nil {
		respondEngineError(w, err)
		return
	}

	s.broadcastBook(r.Context())
	respondJSON(w, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := s.book.Snapshot(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, depth)
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	fills, err := s.book.Match(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if fills > 0 {
		s.broadcastTrades(r.Context(), fills)
		s.broadcastBook(r.Context())
	}
	respondJSON(w, MatchResponse{Trades: fills})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	start, ok := queryInt(w, r, "start", 0)
	if !ok {
		return
	}
	stop, ok := queryInt(w, r, "stop", -1)
	if !ok {
		return
	}

	trades, err := s.book.Trades(r.Context(), start, stop)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if trades == nil {
		trades = []book.Trade{}
	}
	respondJSON(w, trades)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.book.Clear(r.Context()); err != nil {
		respondEngineError(w, err)
		return
	}
	s.broadcastBook(r.Context())
	respondJSON(w, map[string]string{"status": "cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

func (s *Server) broadcastTrades(ctx context.Context, fills int) {
	trades, err := s.book.Trades(ctx, 0, fills-1)
	if err != nil {
		s.log.Warnw("broadcast_trades_failed", "err", err)
		return
	}
	s.hub.BroadcastToChannel("trades", TradesUpdate{Type: "trades", Trades: trades})
}

func (s *Server) broadcastBook(ctx context.Context) {
	depth, err := s.book.Snapshot(ctx)
	if err != nil {
		s.log.Warnw("broadcast_book_failed", "err", err)
		return
	}
	s.hub.BroadcastToChannel("book", BookUpdate{Type: "book", Depth: depth})
}

// ==============================
// Helper Functions
// ==============================

func queryInt(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name, raw)
		return 0, false
	}
	return v, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrInvalidOrder), errors.Is(err, book.ErrInvalidCommand):
		respondError(w, http.StatusBadRequest, "rejected", err.Error())
	case errors.Is(err, book.ErrInvalidState):
		respondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, book.ErrBackendUnavailable):
		log.Printf("[api] backend error: %v", err)
		respondError(w, http.StatusServiceUnavailable, "backend unavailable", "")
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}
