package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/darkpool-labs/ciphermatch/pkg/crypto"
	"github.com/darkpool-labs/ciphermatch/pkg/engine"
	"github.com/darkpool-labs/ciphermatch/pkg/fhe"
	"github.com/darkpool-labs/ciphermatch/pkg/metrics"
)

// Server exposes the engine over REST and a WebSocket fill feed. The
// POST /api/v1/ticks endpoint is the venue's integration point: price and
// liquidity enter here, are encrypted at the boundary, and drive one
// synchronous engine pass.
type Server struct {
	eng        *engine.Engine
	rt         fhe.Runtime
	router     *mux.Router
	hub        *Hub
	log        *zap.SugaredLogger
	adminToken string
}

func NewServer(eng *engine.Engine, rt fhe.Runtime, adminToken string, log *zap.SugaredLogger) *Server {
	s := &Server{
		eng:        eng,
		rt:         rt,
		router:     mux.NewRouter(),
		hub:        NewHub(log),
		log:        log,
		adminToken: adminToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/orders/{id}/remaining", s.handleGetRemaining).Methods("GET")

	api.HandleFunc("/ticks", s.handleTick).Methods("POST")

	api.HandleFunc("/admin/cancel", s.handleForceCancel).Methods("POST")

	s.router.Handle("/metrics", metrics.Handler())
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the fully wrapped HTTP handler (CORS + metrics).
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Admin-Token"},
		AllowCredentials: true,
	})
	return metrics.Middleware(c.Handler(s.router))
}

// Start runs the WebSocket hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	s.log.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if !common.IsHexAddress(req.Owner) {
		respondError(w, http.StatusBadRequest, "invalid owner address", "")
		return
	}
	if req.Side != "buy" && req.Side != "sell" {
		respondError(w, http.StatusBadRequest, "invalid side", "expected buy or sell")
		return
	}

	id, err := s.eng.PlaceOrder(r.Context(), engine.PlaceOrderParams{
		Owner:              common.HexToAddress(req.Owner),
		TriggerPrice:       req.TriggerPrice,
		Size:               req.Size,
		Buy:                req.Side == "buy",
		Expiration:         req.Expiration,
		MinFillSize:        req.MinFillSize,
		PartialFillAllowed: req.PartialFillAllowed,
		AutoRenew:          req.AutoRenew,
		RenewalPeriod:      req.RenewalPeriodSec,
		OrderType:          req.OrderType,
	})
	if errors.Is(err, engine.ErrValidation) {
		respondError(w, http.StatusUnprocessableEntity, "validation failed", "order parameters rejected")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order placement failed", err.Error())
		return
	}

	s.log.Infow("order_submitted", "order_id", id)
	respondJSON(w, PlaceOrderResponse{Status: "accepted", OrderID: id})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.OrderID == "" {
		respondError(w, http.StatusBadRequest, "missing orderId", "")
		return
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid signature encoding", err.Error())
		return
	}
	caller, err := crypto.RecoverAddress(crypto.CancelDigest(req.OrderID), sig)
	if err != nil {
		respondError(w, http.StatusBadRequest, "signature recovery failed", err.Error())
		return
	}

	switch err := s.eng.Cancel(r.Context(), req.OrderID, caller); {
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", "")
	case errors.Is(err, engine.ErrNotOwner):
		respondError(w, http.StatusForbidden, "not owner", "")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
	default:
		respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID})
	}
}

func (s *Server) handleForceCancel(w http.ResponseWriter, r *http.Request) {
	if s.adminToken == "" || r.Header.Get("X-Admin-Token") != s.adminToken {
		respondError(w, http.StatusForbidden, "admin token required", "")
		return
	}
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	switch err := s.eng.ForceCancel(r.Context(), req.OrderID); {
	case errors.Is(err, engine.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", "")
	case err != nil:
		respondError(w, http.StatusInternalServerError, "cancel failed", err.Error())
	default:
		respondJSON(w, map[string]string{"status": "cancelled", "orderId": req.OrderID})
	}
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req TickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Price == 0 {
		respondError(w, http.StatusBadRequest, "price required", "")
		return
	}

	price := s.rt.EncryptUint64(req.Price)
	liquidity := s.rt.EncryptUint64(req.Liquidity)
	results := s.eng.OnTick(r.Context(), price, liquidity, req.PreSettlement)

	now := time.Now().UnixMilli()
	if len(results) > 0 {
		s.hub.BroadcastToChannel("fills", FillFeedUpdate{Type: "fills", Results: results, Timestamp: now})
	}
	respondJSON(w, TickResponse{Results: results, Timestamp: now})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	o, err := s.eng.GetOrder(id)
	if errors.Is(err, engine.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}

	info := OrderInfo{
		ID:                 o.ID,
		Owner:              o.Owner.Hex(),
		CreatedAt:          o.CreatedAt,
		Open:               o.Open,
		OrderType:          o.OrderType,
		TriggerPriceHandle: o.TriggerPrice.Handle.Hex(),
		SizeHandle:         o.Size.Handle.Hex(),
		FilledAmountHandle: o.FilledAmount.Handle.Hex(),
	}
	if exp, err := s.eng.GetExpiration(id); err == nil {
		info.Expiration = exp
	}
	respondJSON(w, info)
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	fills, err := s.eng.GetFillHistory(id)
	if errors.Is(err, engine.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}

	out := make([]FillInfo, len(fills))
	for i, f := range fills {
		out[i] = FillInfo{
			Seq:             f.Seq,
			AmountHandle:    f.Amount.Handle.Hex(),
			PriceHandle:     f.Price.Handle.Hex(),
			TimestampHandle: f.Timestamp.Handle.Hex(),
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleGetRemaining(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	remaining, err := s.eng.GetRemainingAmount(id)
	if errors.Is(err, engine.ErrNotFound) {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "lookup failed", err.Error())
		return
	}
	respondJSON(w, RemainingResponse{OrderID: id, RemainingHandle: remaining.Handle.Hex()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}
