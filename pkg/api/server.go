// Package api exposes the exchange over REST and WebSocket.
package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/Acero160/DEX/pkg/dex"
	"github.com/Acero160/DEX/pkg/dex/instrument"
	"github.com/Acero160/DEX/pkg/dex/ledger"
	"github.com/Acero160/DEX/pkg/dex/orderbook"
)

// Server routes HTTP traffic into the exchange engine.
type Server struct {
	ex     *dex.Exchange
	router *mux.Router
	hub    *Hub
	log    *zap.Logger
}

func NewServer(ex *dex.Exchange, log *zap.Logger) *Server {
	s := &Server{
		ex:     ex,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}

	// Every settled trade fans out to subscribers, along with a fresh
	// snapshot of the book it touched.
	ex.OnTrade(func(t *orderbook.Trade) {
		s.hub.BroadcastToChannel("trades:"+t.Ticker, TradeUpdate{Type: "trade", Trade: tradeInfo(t)})
		s.broadcastBook(t.Ticker)
	})

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/instruments", s.handleListInstruments).Methods("GET")
	api.HandleFunc("/instruments", s.handleAddInstrument).Methods("POST")

	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	api.HandleFunc("/orders", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")
	api.HandleFunc("/orders/{ticker}/{side}", s.handleGetOrders).Methods("GET")

	api.HandleFunc("/balances/{address}/{ticker}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/trades/{ticker}", s.handleGetTrades).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves until the listener fails.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})

	s.log.Info("api server starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleListInstruments(w http.ResponseWriter, r *http.Request) {
	ins := s.ex.Instruments()
	out := make([]InstrumentInfo, len(ins))
	for i, in := range ins {
		out[i] = InstrumentInfo{Ticker: in.Ticker, Token: in.Token.Hex()}
	}
	respondJSON(w, out)
}

func (s *Server) handleAddInstrument(w http.ResponseWriter, r *http.Request) {
	var req AddInstrumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, ok := parseAddress(req.Caller)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid caller address", req.Caller)
		return
	}
	tok, ok := parseAddress(req.Token)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid token address", req.Token)
		return
	}

	if err := s.ex.AddInstrument(caller, req.Ticker, tok); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, InstrumentInfo{Ticker: req.Ticker, Token: tok.Hex()})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ex.Deposit)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.handleTransfer(w, r, s.ex.Withdraw)
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, op func(common.Address, string, *big.Int) error) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid trader address", req.Trader)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	if err := op(trader, req.Ticker, amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Trader: trader.Hex(), Ticker: req.Ticker, Amount: amount.String()})
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid trader address", req.Trader)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}
	price, ok := parseAmount(req.Price)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid price", req.Price)
		return
	}

	id, err := s.ex.CreateLimitOrder(trader, req.Ticker, orderbook.Side(req.Side), amount, price)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	s.broadcastBook(req.Ticker)
	respondJSON(w, LimitOrderResponse{OrderID: id})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid trader address", req.Trader)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid amount", req.Amount)
		return
	}

	trades, err := s.ex.CreateMarketOrder(trader, req.Ticker, orderbook.Side(req.Side), amount)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(t)
	}
	respondJSON(w, MarketOrderResponse{Trades: out})
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	side, err := strconv.ParseUint(vars["side"], 10, 8)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", vars["side"])
		return
	}

	orders, err := s.ex.Orders(vars["ticker"], orderbook.Side(side))
	if err != nil {
		respondEngineError(w, err)
		return
	}

	out := make([]OrderInfo, len(orders))
	for i, o := range orders {
		out[i] = orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trader, ok := parseAddress(vars["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid address", vars["address"])
		return
	}

	bal, err := s.ex.Balance(trader, vars["ticker"])
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Trader: trader.Hex(), Ticker: vars["ticker"], Amount: bal.String()})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	trades, err := s.ex.RecentTrades(vars["ticker"], limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	out := make([]TradeInfo, len(trades))
	for i, t := range trades {
		out[i] = tradeInfo(t)
	}
	respondJSON(w, out)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// broadcastBook pushes a full snapshot of both sides to subscribers.
func (s *Server) broadcastBook(ticker string) {
	bids, err := s.ex.Orders(ticker, orderbook.Buy)
	if err != nil {
		return
	}
	asks, _ := s.ex.Orders(ticker, orderbook.Sell)

	snap := BookSnapshot{
		Ticker:    ticker,
		Bids:      make([]OrderInfo, len(bids)),
		Asks:      make([]OrderInfo, len(asks)),
		Timestamp: time.Now().UnixMilli(),
	}
	for i, o := range bids {
		snap.Bids[i] = orderInfo(o)
	}
	for i, o := range asks {
		snap.Asks[i] = orderInfo(o)
	}

	s.hub.BroadcastToChannel("orderbook:"+ticker, BookUpdate{Type: "orderbook", Book: snap})
}

func orderInfo(o *orderbook.Order) OrderInfo {
	return OrderInfo{
		ID:     o.ID,
		Trader: o.Trader.Hex(),
		Ticker: o.Ticker,
		Side:   uint8(o.Side),
		Price:  o.Price.String(),
		Amount: o.Amount.String(),
		Filled: o.Filled.String(),
	}
}

func tradeInfo(t *orderbook.Trade) TradeInfo {
	return TradeInfo{
		ID:         t.ID,
		Ticker:     t.Ticker,
		Price:      t.Price.String(),
		Qty:        t.Qty.String(),
		TakerSide:  uint8(t.TakerSide),
		Taker:      t.Taker.Hex(),
		Maker:      t.Maker.Hex(),
		MakerOrder: t.MakerOrder,
		Timestamp:  t.Timestamp,
	}
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(s string) (*big.Int, bool) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, false
	}
	return v, true
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: errMsg, Message: detail})
}

// respondEngineError maps engine sentinels onto HTTP statuses.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, instrument.ErrUnknownTicker):
		status = http.StatusNotFound
	case errors.Is(err, instrument.ErrDuplicateTicker):
		status = http.StatusConflict
	case errors.Is(err, dex.ErrZeroAmount), errors.Is(err, dex.ErrInvalidSide):
		status = http.StatusBadRequest
	case errors.Is(err, dex.ErrNotAdmin):
		status = http.StatusForbidden
	case errors.Is(err, ledger.ErrInsufficientBalance):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrExternalTransfer):
		status = http.StatusBadGateway
	}
	respondError(w, status, err.Error(), "")
}
