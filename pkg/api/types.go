package api

import (
	"time"

	"github.com/shopspring/decimal"
)

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the body of POST /orders. Exactly one of Expiration
// (absolute) or Duration ("3 hours") is expected.
type SubmitOrderRequest struct {
	Asset      string          `json:"asset" validate:"required,max=32"`
	Type       string          `json:"type" validate:"required,oneof=BUY SELL"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Expiration *time.Time      `json:"expiration,omitempty" validate:"required_without=Duration"`
	Duration   string          `json:"duration,omitempty" validate:"max=32"`
	UserID     string          `json:"userId" validate:"required,max=128"`
}

type ModifyOrderRequest struct {
	Field string `json:"field" validate:"required,oneof=price quantity expiration"`
	Value string `json:"value" validate:"required"`
}

type MatchRequest struct {
	BuyOrderID  string `json:"buyOrderId" validate:"required"`
	SellOrderID string `json:"sellOrderId" validate:"required"`
}

// ==============================
// REST Response Types
// ==============================

type MatchResponse struct {
	MatchedQuantity decimal.Decimal `json:"matchedQuantity"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// ErrorResponse is returned for every failed request. Error carries the
// failure kind (ValidationError, NotFound, ...).
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
