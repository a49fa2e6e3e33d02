package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/orderdesk/pkg/lifecycle"
	"github.com/uhyunpark/orderdesk/pkg/order"
)

const (
	defaultTradeLimit = 50
	maxTradeLimit     = 500
	maxBodyBytes      = 64 << 10
)

var validate = validator.New()

// Server handles REST API and WebSocket connections
type Server struct {
	manager *lifecycle.Manager
	hub     *Hub
	router  *mux.Router
	origins []string

	Logger *zap.SugaredLogger
}

// NewServer wires the routes. origins lists the CORS-allowed origins.
func NewServer(manager *lifecycle.Manager, hub *Hub, origins []string) *Server {
	s := &Server{
		manager: manager,
		hub:     hub,
		router:  mux.NewRouter(),
		origins: origins,
		Logger:  zap.NewNop().Sugar(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Orders
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/active", s.handleActiveOrders).Methods("GET")
	api.HandleFunc("/orders/history", s.handleOrderHistory).Methods("GET")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/accept", s.handleAcceptOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/reject", s.handleRejectOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/modify", s.handleModifyOrder).Methods("POST")

	// Matching
	api.HandleFunc("/matches", s.handleMatch).Methods("POST")
	api.HandleFunc("/matches/opportunities", s.handleOpportunities).Methods("GET")
	api.HandleFunc("/trades", s.handleTrades).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.ServeWS)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

// Handler returns the router wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if !s.decode(w, r, &req, func() { req.Type = strings.ToUpper(strings.TrimSpace(req.Type)) }) {
		return
	}

	submit := order.SubmitRequest{
		Asset:    req.Asset,
		Side:     order.Side(req.Type),
		Quantity: req.Quantity,
		Price:    req.Price,
		Duration: strings.TrimSpace(req.Duration),
		UserID:   req.UserID,
	}
	if req.Expiration != nil {
		submit.Expiration = req.Expiration.UTC()
	}

	o, err := s.manager.Submit(r.Context(), submit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSONStatus(w, http.StatusCreated, o)
}

func (s *Server) handleActiveOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.manager.Active(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, nonNil(orders))
}

func (s *Server) handleOrderHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := s.manager.History(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, nonNil(orders))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.manager.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleAcceptOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.manager.Accept(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleRejectOrder(w http.ResponseWriter, r *http.Request) {
	o, err := s.manager.Reject(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req ModifyOrderRequest
	if !s.decode(w, r, &req, nil) {
		return
	}
	mod, err := order.ParseModification(req.Field, req.Value)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	o, err := s.manager.Modify(r.Context(), mux.Vars(r)["id"], mod)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, o)
}

// ==============================
// Matching Handlers
// ==============================

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req MatchRequest
	if !s.decode(w, r, &req, nil) {
		return
	}
	qty, err := s.manager.Match(r.Context(), req.BuyOrderID, req.SellOrderID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	respondJSON(w, MatchResponse{MatchedQuantity: qty})
}

func (s *Server) handleOpportunities(w http.ResponseWriter, r *http.Request) {
	opps, err := s.manager.Opportunities(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if opps == nil {
		respondJSON(w, []struct{}{})
		return
	}
	respondJSON(w, opps)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, string(order.KindValidation), "limit must be a positive integer")
			return
		}
		limit = min(n, maxTradeLimit)
	}
	trades, err := s.manager.Trades(r.Context(), limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if trades == nil {
		respondJSON(w, []struct{}{})
		return
	}
	respondJSON(w, trades)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok", Connections: s.hub.Registry.Len()})
}

// ==============================
// Helper Functions
// ==============================

// decode reads a JSON body into dst, runs normalize (if any) and validates
// the result. It writes the 400 response itself and reports false on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, normalize func()) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, string(order.KindValidation), fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	if normalize != nil {
		normalize()
	}
	if err := validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, string(order.KindValidation), validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

func statusFor(kind order.Kind) int {
	switch kind {
	case order.KindValidation:
		return http.StatusBadRequest
	case order.KindNotFound:
		return http.StatusNotFound
	case order.KindInvalidTransition, order.KindInvalidOrder, order.KindPriceMismatch:
		return http.StatusConflict
	case order.KindStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	kind := order.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		s.Logger.Errorw("api_request_failed", "kind", kind, "err", err)
	}
	if kind == "" {
		kind = "InternalError"
	}
	respondError(w, status, string(kind), err.Error())
}

func nonNil(orders []*order.Order) []*order.Order {
	if orders == nil {
		return []*order.Order{}
	}
	return orders
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
