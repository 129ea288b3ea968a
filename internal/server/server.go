// Package server exposes the market engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/server/handler"
	"github.com/outcomefi/marketd/internal/server/middleware"
	"github.com/outcomefi/marketd/internal/server/ws"
)

// Config holds the HTTP server configuration. OperatorKey guards market
// administration, OracleKey guards resolution; empty keys disable the
// respective check.
type Config struct {
	Port        int
	CORSOrigins []string
	OperatorKey string
	OracleKey   string

	// RateLimit requests per client per RateWindow; zero disables limiting.
	RateLimit  int
	RateWindow time.Duration

	CreateDefaults handler.Defaults
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Trades    *handler.TradeHandler
	Transfers *handler.TransferHandler
}

// Server is the HTTP + WebSocket API front of the market daemon.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers all routes, wires the middleware chain, and attaches
// the WebSocket hub. The rate limiter is optional.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	auth := middleware.NewAuth(cfg.OperatorKey, cfg.OracleKey)

	// Liveness, no auth.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market administration, operator key.
	mux.HandleFunc("POST /api/markets", auth.Operator(handlers.Markets.CreateMarket(cfg.CreateDefaults)))
	mux.HandleFunc("POST /api/markets/{id}/open", auth.Operator(handlers.Markets.OpenMarket))
	mux.HandleFunc("POST /api/markets/{id}/pause", auth.Operator(handlers.Markets.PauseMarket))
	mux.HandleFunc("POST /api/markets/{id}/fees/withdraw", auth.Operator(handlers.Markets.WithdrawFees))

	// Resolution, oracle key.
	mux.HandleFunc("POST /api/markets/{id}/resolve", auth.Oracle(handlers.Markets.ResolveMarket))

	// Public reads.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/prices", handlers.Markets.GetPrices)
	mux.HandleFunc("GET /api/markets/{id}/quote", handlers.Trades.Quote)
	mux.HandleFunc("GET /api/markets/{id}/trades", handlers.Trades.ListTrades)
	mux.HandleFunc("GET /api/markets/{id}/balances/{account}", handlers.Trades.Balances)
	mux.HandleFunc("GET /api/markets/{id}/balances/{account}/{outcome}", handlers.Trades.OutcomeBalance)

	// Trading and redemption, public.
	mux.HandleFunc("POST /api/markets/{id}/buy", handlers.Trades.Buy)
	mux.HandleFunc("POST /api/markets/{id}/sell", handlers.Trades.Sell)
	mux.HandleFunc("POST /api/markets/{id}/redeem", handlers.Trades.Redeem)

	// Collateral transfer boundary.
	mux.HandleFunc("POST /api/transfers", handlers.Transfers.HandleTransfer)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start listens until the server errors or shuts down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
