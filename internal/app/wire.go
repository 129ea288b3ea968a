package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/outcomefi/marketd/internal/blob/s3"
	"github.com/outcomefi/marketd/internal/cache/redis"
	"github.com/outcomefi/marketd/internal/config"
	"github.com/outcomefi/marketd/internal/crypto"
	"github.com/outcomefi/marketd/internal/domain"
	"github.com/outcomefi/marketd/internal/notify"
	"github.com/outcomefi/marketd/internal/service"
	"github.com/outcomefi/marketd/internal/settlement"
	"github.com/outcomefi/marketd/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	MarketStore   domain.MarketStore
	BalanceStore  domain.BalanceStore
	TradeStore    domain.TradeStore
	TransferStore domain.TransferStore
	AuditStore    domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	SignalBus   domain.SignalBus

	// Blob storage, nil when no bucket is configured.
	BlobWriter domain.BlobWriter
	Archiver   *s3blob.Archiver

	// Settlement
	Outbox *settlement.Outbox

	// Engine
	Exchange *service.Exchange

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	deps.MarketStore = postgres.NewMarketStore(pgClient)
	deps.BalanceStore = postgres.NewBalanceStore(pgClient)
	deps.TradeStore = postgres.NewTradeStore(pgClient)
	deps.TransferStore = postgres.NewTransferStore(pgClient)
	deps.AuditStore = postgres.NewAuditStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- S3 blob storage (optional in serve mode) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(
			deps.BlobWriter,
			deps.TradeStore,
			deps.TransferStore,
			deps.AuditStore,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Settlement ---
	deps.Outbox = settlement.NewOutbox(
		deps.TransferStore,
		settlement.NewLocalPayer(logger),
		deps.Notifier,
		logger,
		cfg.Settlement.Interval.Duration,
		cfg.Settlement.BatchSize,
	)

	// --- Exchange ---
	exchange, err := service.NewExchange(service.Deps{
		Logger:     logger,
		Markets:    deps.MarketStore,
		Balances:   deps.BalanceStore,
		Trades:     deps.TradeStore,
		Audit:      deps.AuditStore,
		Prices:     deps.PriceCache,
		Bus:        deps.SignalBus,
		Settlement: deps.Outbox,
		Notifier:   deps.Notifier,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: exchange: %w", err)
	}
	if err := exchange.Restore(ctx); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: restore markets: %w", err)
	}
	deps.Exchange = exchange

	return deps, cleanup, nil
}

// resolveAPIKeys returns the operator and oracle keys, preferring an
// encrypted vault file over the inline configuration values.
func resolveAPIKeys(cfg *config.Config) (operator, oracle string, err error) {
	operator = cfg.Server.OperatorKey
	oracle = cfg.Server.OracleKey
	if cfg.Server.EncryptedKeysPath == "" {
		return operator, oracle, nil
	}
	keys, err := crypto.LoadKeys(cfg.Server.EncryptedKeysPath, cfg.Server.KeysPassword)
	if err != nil {
		return "", "", fmt.Errorf("wire: load api keys: %w", err)
	}
	if keys.OperatorKey != "" {
		operator = keys.OperatorKey
	}
	if keys.OracleKey != "" {
		oracle = keys.OracleKey
	}
	return operator, oracle, nil
}
