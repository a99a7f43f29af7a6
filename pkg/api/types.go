package api

import "bookd/pkg/book"

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Types
// ==============================

// PlaceOrderRequest submits one limit order. Price and amount travel as
// decimal strings and are parsed exactly once, here at the boundary.
type PlaceOrderRequest struct {
	Side   string `json:"side"`   // "bid" or "ask"
	Owner  string `json:"owner"`  // optional
	Price  string `json:"price"`  // decimal string, > 0
	Amount string `json:"amount"` // decimal string, > 0
}

// MatchResponse reports how many fills one match pass executed.
type MatchResponse struct {
	Trades int `json:"trades"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Messages
// ==============================

// WSSubscribeRequest subscribes or unsubscribes channels ("trades", "book").
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradesUpdate pushes the fills executed by one match pass, newest first.
type TradesUpdate struct {
	Type   string       `json:"type"` // "trades"
	Trades []book.Trade `json:"trades"`
}

// BookUpdate pushes a fresh depth snapshot after the book changes.
type BookUpdate struct {
	Type  string     `json:"type"` // "book"
	Depth book.Depth `json:"depth"`
}
