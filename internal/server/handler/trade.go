package handler

import (
	"net/http"
	"strconv"

	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/service"
)

// TradeHandler serves trading, redemption, and position endpoints.
type TradeHandler struct {
	exchange *service.Exchange
}

func NewTradeHandler(exchange *service.Exchange) *TradeHandler {
	return &TradeHandler{exchange: exchange}
}

type buyRequest struct {
	Account   string `json:"account"`
	OutcomeID int    `json:"outcome_id"`
	NumShares uint64 `json:"num_shares"`
	Payment   uint64 `json:"payment"`
}

// Buy handles POST /api/markets/{id}/buy.
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Account == "" {
		writeBadRequest(w, "account is required")
		return
	}

	receipt, err := h.exchange.Buy(r.Context(), id, req.Account, req.OutcomeID, req.NumShares, req.Payment)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type sellRequest struct {
	Account       string `json:"account"`
	OutcomeID     int    `json:"outcome_id"`
	NumShares     uint64 `json:"num_shares"`
	MinAcceptable uint64 `json:"min_acceptable"`
}

// Sell handles POST /api/markets/{id}/sell.
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	var req sellRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Account == "" {
		writeBadRequest(w, "account is required")
		return
	}

	receipt, err := h.exchange.Sell(r.Context(), id, req.Account, req.OutcomeID, req.NumShares, req.MinAcceptable)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type redeemRequest struct {
	Account string `json:"account"`
}

// Redeem handles POST /api/markets/{id}/redeem.
func (h *TradeHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	var req redeemRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Account == "" {
		writeBadRequest(w, "account is required")
		return
	}

	payout, err := h.exchange.Redeem(r.Context(), id, req.Account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"payout": payout})
}

// ListTrades handles GET /api/markets/{id}/trades.
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	trades, err := h.exchange.ListTrades(r.Context(), id, listOpts(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// Balances handles GET /api/markets/{id}/balances/{account}.
func (h *TradeHandler) Balances(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	account := r.PathValue("account")

	views, err := h.exchange.AccountBalances(r.Context(), id, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balances": views})
}

type outcomeBalanceResponse struct {
	Shares    uint64 `json:"shares"`
	HasRecord bool   `json:"has_record"`
}

// OutcomeBalance handles GET /api/markets/{id}/balances/{account}/{outcome}.
// has_record distinguishes an account that never traded from a zero balance.
func (h *TradeHandler) OutcomeBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	outcome, err := strconv.Atoi(r.PathValue("outcome"))
	if err != nil {
		writeBadRequest(w, "invalid outcome id")
		return
	}

	shares, hasRecord, err := h.exchange.OutcomeBalance(r.Context(), id, r.PathValue("account"), outcome)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcomeBalanceResponse{Shares: shares, HasRecord: hasRecord})
}

// Quote handles GET /api/markets/{id}/quote. It prices a prospective trade
// without executing it.
func (h *TradeHandler) Quote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	q := r.URL.Query()

	outcome, err := strconv.Atoi(q.Get("outcome_id"))
	if err != nil {
		writeBadRequest(w, "invalid outcome_id")
		return
	}
	numShares, err := strconv.ParseUint(q.Get("num_shares"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid num_shares")
		return
	}
	side := domain.Side(q.Get("side"))
	if side != domain.SideBuy && side != domain.SideSell {
		writeBadRequest(w, "side must be buy or sell")
		return
	}

	amount, err := h.exchange.Quote(r.Context(), id, outcome, numShares, side)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}
