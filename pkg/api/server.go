package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/zenswap/escrowd/pkg/escrow"
	"github.com/zenswap/escrowd/pkg/escrow/vault"
)

// Server exposes the escrow engine over REST and streams lifecycle events
// over WebSocket. It also implements escrow.EventSink so the engine can
// notify it directly; broadcasts never block the engine.
type Server struct {
	engine *escrow.Engine
	ledger *vault.Ledger // devnet faucet and balance queries; may be nil
	router *mux.Router
	hub    *Hub
	log    *zap.SugaredLogger
}

func NewServer(engine *escrow.Engine, ledger *vault.Ledger, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		engine: engine,
		ledger: ledger,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		log:    logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Trades
	api.HandleFunc("/trades", s.handleListTrades).Methods("GET")
	api.HandleFunc("/trades", s.handleSubmitTrade).Methods("POST")
	api.HandleFunc("/trades/{id}", s.handleGetTrade).Methods("GET")
	api.HandleFunc("/trades/{id}/items", s.handleGetTradeItems).Methods("GET")

	// Owners
	api.HandleFunc("/owners/{address}/trades", s.handleListOwnerTrades).Methods("GET")
	api.HandleFunc("/owners/{address}/withdraw", s.handleWithdraw).Methods("POST")

	// Fees and admin
	api.HandleFunc("/fees", s.handleGetFees).Methods("GET")
	api.HandleFunc("/admin/fee", s.handleSetFee).Methods("POST")
	api.HandleFunc("/admin/transfer", s.handleTransferOwnership).Methods("POST")
	api.HandleFunc("/admin/withdraw-fees", s.handleWithdrawFees).Methods("POST")

	// Devnet faucet and balances
	api.HandleFunc("/faucet", s.handleFaucet).Methods("POST")
	api.HandleFunc("/balances/{address}", s.handleGetBalance).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the hub and blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// EventSink implementation: engine events fan out on the "trades" channel.

func (s *Server) TradeCreated(t escrow.Trade) {
	s.hub.BroadcastToChannel("trades", TradeEvent{Type: "trade_created", Trade: tradeView(t)})
}

func (s *Server) TradeRemoved(t escrow.Trade) {
	s.hub.BroadcastToChannel("trades", TradeEvent{Type: "trade_removed", Trade: tradeView(t)})
}

func (s *Server) TradesMatched(a, b escrow.Trade) {
	s.hub.BroadcastToChannel("trades", MatchEvent{Type: "trades_matched", Resting: tradeView(a), Incoming: tradeView(b)})
}

func (s *Server) TradesPartiallyMatched(a, b escrow.Trade) {
	s.hub.BroadcastToChannel("trades", MatchEvent{Type: "trades_partially_matched", Resting: tradeView(a), Incoming: tradeView(b)})
}

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	trades := s.engine.AllTrades()
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = tradeView(t)
	}
	respondJSON(w, views)
}

func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trade id", err.Error())
		return
	}
	t, err := s.engine.TradeByID(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "trade not found", err.Error())
		return
	}
	respondJSON(w, tradeView(t))
}

func (s *Server) handleGetTradeItems(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid trade id", err.Error())
		return
	}
	ids, err := s.engine.NFTTokenIDs(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "trade not found", err.Error())
		return
	}
	out := make([]string, len(ids))
	for i, itemID := range ids {
		out[i] = itemID.String()
	}
	respondJSON(w, out)
}

func (s *Server) handleListOwnerTrades(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	trades := s.engine.TradesOf(owner)
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = tradeView(t)
	}
	respondJSON(w, views)
}

func (s *Server) handleSubmitTrade(w http.ResponseWriter, r *http.Request) {
	var req SubmitTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	sub, err := s.buildSubmission(req)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid submission", err.Error())
		return
	}
	id, err := s.engine.SubmitTrade(sub)
	if err != nil {
		respondError(w, statusFor(err), "trade rejected", err.Error())
		return
	}
	respondJSON(w, SubmitTradeResponse{Status: "accepted", TradeID: id})
}

func (s *Server) buildSubmission(req SubmitTradeRequest) (escrow.Submission, error) {
	caller, err := parseAddress(req.Caller)
	if err != nil {
		return escrow.Submission{}, err
	}
	owner := caller
	if req.Owner != "" {
		if owner, err = parseAddress(req.Owner); err != nil {
			return escrow.Submission{}, err
		}
	}
	offered, err := parseAsset(req.Offered)
	if err != nil {
		return escrow.Submission{}, err
	}
	wanted, err := parseAsset(req.Wanted)
	if err != nil {
		return escrow.Submission{}, err
	}
	value, err := parseAmount(req.Value)
	if err != nil {
		return escrow.Submission{}, err
	}
	itemIDs := make([]*big.Int, 0, len(req.OfferedItemIDs))
	for _, raw := range req.OfferedItemIDs {
		id, err := parseAmount(raw)
		if err != nil {
			return escrow.Submission{}, err
		}
		itemIDs = append(itemIDs, id)
	}
	return escrow.Submission{
		Caller:         caller,
		Owner:          owner,
		Offered:        offered,
		OfferedItemIDs: itemIDs,
		Wanted:         wanted,
		AllowPartial:   req.AllowPartial,
		Duration:       req.Duration,
		Value:          value,
	}, nil
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	if err := s.engine.Withdraw(owner); err != nil {
		respondError(w, statusFor(err), "withdraw failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetFees(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, FeesResponse{
		FlatFee:        s.engine.CurrentFee().String(),
		AvailableFees:  s.engine.AvailableFees().String(),
		CollectedFees:  s.engine.CollectedFees().String(),
		Admin:          s.engine.Admin().Hex(),
		LastTradeIndex: s.engine.LastTradeIndex(),
		LastAssetIndex: s.engine.LastAssetIndex(),
	})
}

func (s *Server) handleSetFee(w http.ResponseWriter, r *http.Request) {
	var req SetFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	fee, err := parseAmount(req.FlatFee)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid fee", err.Error())
		return
	}
	if err := s.engine.SetFee(caller, fee); err != nil {
		respondError(w, statusFor(err), "set fee failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req TransferOwnershipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	newAdmin, err := parseAddress(req.NewAdmin)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid new admin", err.Error())
		return
	}
	if err := s.engine.TransferOwnership(caller, newAdmin); err != nil {
		respondError(w, statusFor(err), "transfer failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	var req WithdrawFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	to, err := parseAddress(req.To)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid recipient", err.Error())
		return
	}
	if err := s.engine.WithdrawFees(caller, to); err != nil {
		respondError(w, statusFor(err), "withdraw fees failed", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleFaucet(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusNotFound, "faucet disabled", "")
		return
	}
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	addr, err := parseAddress(req.Address)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	switch {
	case req.Contract == "":
		amount, err := parseAmount(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
			return
		}
		s.ledger.FundNative(addr, amount)
	case req.ItemID != "":
		contract, err := parseAddress(req.Contract)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid contract", err.Error())
			return
		}
		itemID, err := parseAmount(req.ItemID)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid item id", err.Error())
			return
		}
		if err := s.ledger.MintItem(contract, addr, itemID); err != nil {
			respondError(w, http.StatusConflict, "mint failed", err.Error())
			return
		}
	default:
		contract, err := parseAddress(req.Contract)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid contract", err.Error())
			return
		}
		amount, err := parseAmount(req.Amount)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
			return
		}
		s.ledger.MintToken(contract, addr, amount)
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		respondError(w, http.StatusNotFound, "balances unavailable", "")
		return
	}
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	resp := BalanceResponse{
		Address: addr.Hex(),
		Native:  s.ledger.NativeBalanceOf(addr).String(),
	}
	if c := r.URL.Query().Get("contract"); c != "" {
		contract, err := parseAddress(c)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid contract", err.Error())
			return
		}
		resp.Token = s.ledger.TokenBalanceOf(contract, addr).String()
	}
	respondJSON(w, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// statusFor maps engine errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrNotAdmin):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrUnknownTrade):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
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
