package handler

import (
	"net/http"
	"time"

	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/service"
)

// MarketHandler serves market lifecycle and read endpoints.
type MarketHandler struct {
	exchange *service.Exchange
}

func NewMarketHandler(exchange *service.Exchange) *MarketHandler {
	return &MarketHandler{exchange: exchange}
}

type createMarketRequest struct {
	Title              string           `json:"title"`
	Description        string           `json:"description"`
	CollateralToken    string           `json:"collateral_token"`
	CollateralDecimals uint32           `json:"collateral_decimals"`
	EndTime            time.Time        `json:"end_time"`
	ResolutionTime     time.Time        `json:"resolution_time"`
	Outcomes           []domain.Outcome `json:"outcomes"`
	LiquidityB         float64          `json:"liquidity_b"`
	TradeFeeBps        uint16           `json:"trade_fee_bps"`
	Oracle             string           `json:"oracle"`
	Operator           string           `json:"operator"`
	FeeOwner           string           `json:"fee_owner"`
}

type createMarketResponse struct {
	MarketID       uint64 `json:"market_id"`
	MinimumDeposit uint64 `json:"minimum_deposit"`
}

// Defaults applies configured fallbacks for fields the request omits.
type Defaults struct {
	LiquidityB      float64
	MinDepositUnits uint64
}

// CreateMarket handles POST /api/markets.
func (h *MarketHandler) CreateMarket(defaults Defaults) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createMarketRequest
		if err := decodeBody(r, &req); err != nil {
			writeBadRequest(w, "invalid request body: "+err.Error())
			return
		}

		b := req.LiquidityB
		if b == 0 {
			b = defaults.LiquidityB
		}

		id, err := h.exchange.CreateMarket(r.Context(), domain.CreateMarketArgs{
			Title:              req.Title,
			Description:        req.Description,
			CollateralToken:    req.CollateralToken,
			CollateralDecimals: req.CollateralDecimals,
			EndTime:            req.EndTime,
			ResolutionTime:     req.ResolutionTime,
			Outcomes:           req.Outcomes,
			LiquidityB:         b,
			TradeFeeBps:        req.TradeFeeBps,
			Oracle:             req.Oracle,
			Operator:           req.Operator,
			FeeOwner:           req.FeeOwner,
			MinDepositUnits:    defaults.MinDepositUnits,
		})
		if err != nil {
			writeError(w, err)
			return
		}

		view, err := h.exchange.MarketView(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, createMarketResponse{
			MarketID:       id,
			MinimumDeposit: view.MinimumDeposit,
		})
	}
}

// ListMarkets handles GET /api/markets.
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	views, err := h.exchange.ListMarkets(r.Context(), listOpts(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views})
}

// GetMarket handles GET /api/markets/{id}.
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	view, err := h.exchange.MarketView(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// OpenMarket handles POST /api/markets/{id}/open.
func (h *MarketHandler) OpenMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	if err := h.exchange.OpenMarket(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": string(domain.StageOpen)})
}

// PauseMarket handles POST /api/markets/{id}/pause.
func (h *MarketHandler) PauseMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	if err := h.exchange.PauseMarket(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": string(domain.StagePaused)})
}

type resolveRequest struct {
	Payouts []uint64 `json:"payouts"`
}

// ResolveMarket handles POST /api/markets/{id}/resolve.
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	if err := h.exchange.ResolveMarket(r.Context(), id, req.Payouts); err != nil {
		writeError(w, err)
		return
	}
	view, err := h.exchange.MarketView(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": string(view.Stage)})
}

// WithdrawFees handles POST /api/markets/{id}/fees/withdraw.
func (h *MarketHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	amount, err := h.exchange.WithdrawFees(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"amount": amount})
}

// GetPrices handles GET /api/markets/{id}/prices.
func (h *MarketHandler) GetPrices(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, "invalid market id")
		return
	}
	prices, at, err := h.exchange.GetPrices(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, service.PricesEvent{MarketID: id, Prices: prices, At: at})
}
