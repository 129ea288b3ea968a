package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/outcomefi/marketd/internal/server"
	"github.com/outcomefi/marketd/internal/server/handler"
	"github.com/outcomefi/marketd/internal/server/ws"
)

// shutdownGrace is how long the HTTP server gets to drain on shutdown.
const shutdownGrace = 10 * time.Second

// ServeMode runs the full daemon: HTTP API, WebSocket hub, and the
// settlement worker. It blocks until the context is cancelled or a
// component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	operatorKey, oracleKey, err := resolveAPIKeys(a.cfg)
	if err != nil {
		return err
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)

	var limiter = deps.RateLimiter
	if a.cfg.Server.RateLimit <= 0 {
		limiter = nil
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		OperatorKey: operatorKey,
		OracleKey:   oracleKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
		CreateDefaults: handler.Defaults{
			LiquidityB:      a.cfg.Market.DefaultLiquidityB,
			MinDepositUnits: a.cfg.Market.MinDepositUnits,
		},
	}, server.Handlers{
		Health:    handler.NewHealthHandler(),
		Markets:   handler.NewMarketHandler(deps.Exchange),
		Trades:    handler.NewTradeHandler(deps.Exchange),
		Transfers: handler.NewTransferHandler(deps.Exchange),
	}, hub, limiter, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(); err != nil {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := hub.Run(gctx)
		if err != nil && err != context.Canceled {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		err := deps.Outbox.Run(gctx)
		if err != nil && err != context.Canceled {
			return fmt.Errorf("app: settlement worker: %w", err)
		}
		return nil
	})

	// Shut the HTTP server down when the group context ends so Start
	// returns and the group can drain.
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// ArchiveMode runs one archive pass moving old trades and finished transfers
// to object storage, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires s3 configuration")
	}

	cutoff := time.Now().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	a.logger.InfoContext(ctx, "archive pass starting",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.cfg.Archive.RetentionDays),
	)

	trades, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive trades: %w", err)
	}
	transfers, err := deps.Archiver.ArchiveTransfers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive transfers: %w", err)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("trades", trades),
		slog.Int64("transfers", transfers),
	)
	return nil
}
