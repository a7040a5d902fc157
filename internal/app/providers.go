package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	// Domains
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/domain/admin"
	"github.com/talkmeter/server/internal/domain/chat"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/domain/summary"

	// Inbound adapters
	ginadapter "github.com/talkmeter/server/internal/adapter/inbound/gin"

	// Ports
	"github.com/talkmeter/server/internal/port/inbound"
	"github.com/talkmeter/server/internal/port/outbound"

	// Outbound adapters
	"github.com/talkmeter/server/internal/adapter/outbound/llm"
	"github.com/talkmeter/server/internal/adapter/outbound/memory"
	"github.com/talkmeter/server/internal/adapter/outbound/postgres"
	redisadapter "github.com/talkmeter/server/internal/adapter/outbound/redis"
	s3adapter "github.com/talkmeter/server/internal/adapter/outbound/s3"
	stripeadapter "github.com/talkmeter/server/internal/adapter/outbound/stripe"
	"github.com/talkmeter/server/internal/adapter/outbound/yookassa"

	// Infrastructure
	"github.com/talkmeter/server/internal/infra/config"
	"github.com/talkmeter/server/internal/infra/httpclient"
	"github.com/talkmeter/server/internal/shared/cache"
	"github.com/talkmeter/server/internal/shared/database"
	"github.com/talkmeter/server/internal/shared/logger"

	// Utils
	"github.com/talkmeter/server/internal/utils/clock"
	"github.com/talkmeter/server/internal/utils/metrics"
	"github.com/talkmeter/server/internal/utils/middleware"
	"github.com/talkmeter/server/internal/utils/money"
)

// ===== Infrastructure Providers =====

// InfraSet provides infrastructure dependencies.
var InfraSet = wire.NewSet(
	ProvideLogger,
	ProvideZapLogger,
	ProvideRegistry,
	ProvideMetrics,
	ProvideHTTPClient,
	ProvideCalendar,
	ProvideDatabase,
	ProvideRedisClient,
)

// serviceName tags log lines and prefixes metric names.
const serviceName = "chatledger"

// ProvideLogger creates a logger instance.
func ProvideLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logConfig(cfg))
}

// ProvideZapLogger creates a zap logger instance.
func ProvideZapLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.NewZapLogger(logConfig(cfg))
}

func logConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Service: serviceName,
	}
}

// ProvideRegistry creates the prometheus registry served on /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a metrics instance.
func ProvideMetrics(reg *prometheus.Registry) *metrics.Metrics {
	return metrics.New(serviceName, reg)
}

// ProvideHTTPClient creates a shared HTTP client with connection pooling.
func ProvideHTTPClient(cfg *config.Config) *http.Client {
	return httpclient.New(cfg.HTTPClient)
}

// ProvideCalendar creates the service-day calendar.
func ProvideCalendar(cfg *config.Config) (*clock.Calendar, error) {
	return clock.NewCalendar(clock.System{}, cfg.Ledger.Timezone)
}

// ProvideDatabase opens and migrates the SQL database. The memory driver
// needs no connection and yields nil.
func ProvideDatabase(cfg *config.Config) (*gorm.DB, func(), error) {
	if cfg.Database.Driver == "memory" {
		return nil, func() {}, nil
	}
	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}
	cleanup := func() { _ = database.Close(db) }
	if err := postgres.AutoMigrate(db); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	return db, cleanup, nil
}

// ProvideRedisClient creates a Redis client. Without an address, or when
// Redis is unreachable, it yields nil and the guard stays in process.
func ProvideRedisClient(cfg *config.Config, zapLog *zap.Logger) (goredis.UniversalClient, func()) {
	if cfg.Redis.Address == "" {
		return nil, func() {}
	}
	client, err := cache.NewRedisClient(context.Background(), &cfg.Redis)
	if err != nil {
		zapLog.Warn("Redis connection failed, continuing with local guard", zap.Error(err))
		return nil, func() {}
	}
	return client, func() { _ = client.Close() }
}

// ===== Outbound Adapter Providers =====

// OutboundSet provides outbound port implementations.
var OutboundSet = wire.NewSet(
	ProvideLedgerStore,
	ProvideAccountGuard,
	ProvideGenerator,
	ProvideCardGateway,
	ProvideArchive,
	ProvideLedgerMetrics,
)

// ProvideLedgerStore picks the store for the configured driver.
func ProvideLedgerStore(db *gorm.DB) outbound.LedgerStorePort {
	if db == nil {
		return memory.NewStore()
	}
	return postgres.NewLedgerStore(db)
}

// ProvideAccountGuard uses Redis when available so several server replicas
// share one guard per account.
func ProvideAccountGuard(cfg *config.Config, redis goredis.UniversalClient) outbound.AccountGuardPort {
	if redis == nil {
		return memory.NewGuard(cfg.Ledger.GuardWait)
	}
	return redisadapter.NewGuard(redis, cfg.Redis.KeyPrefix, cfg.Ledger.GuardTTL, cfg.Ledger.GuardWait)
}

// ProvideGenerator creates the LLM client behind a circuit breaker.
func ProvideGenerator(cfg *config.Config, client *http.Client, m *metrics.Metrics) (outbound.GeneratorPort, error) {
	breaker := httpclient.NewBreaker("llm", httpclient.BreakerConfig{
		FailureThreshold: cfg.LLM.FailureThreshold,
		Timeout:          cfg.LLM.CircuitTimeout,
	}, m)
	return llm.NewGenerator(llm.Config{
		BaseURL:      cfg.LLM.BaseURL,
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.LLM.SystemPrompt,
	}, client, breaker)
}

// ProvideCardGateway creates the configured card gateway, or nil when card
// payments are disabled.
func ProvideCardGateway(cfg *config.Config, client *http.Client, m *metrics.Metrics) (outbound.CardGatewayPort, error) {
	if cfg.Card.Provider == "" {
		return nil, nil
	}
	breaker := httpclient.NewBreaker(cfg.Card.Provider, httpclient.BreakerConfig{}, m)

	switch cfg.Card.Provider {
	case "yookassa":
		return yookassa.NewGateway(yookassa.Config{
			BaseURL:       cfg.Card.BaseURL,
			ShopID:        cfg.Card.ShopID,
			SecretKey:     cfg.Card.SecretKey,
			WebhookSecret: cfg.Card.WebhookSecret,
			ForceBankCard: true,
		}, client, breaker)
	case "stripe":
		return stripeadapter.NewGateway(stripeadapter.Config{
			SecretKey:     cfg.Card.SecretKey,
			WebhookSecret: cfg.Card.WebhookSecret,
			ProductName:   cfg.Card.Description,
		}, client, breaker)
	default:
		return nil, fmt.Errorf("unsupported card provider %q", cfg.Card.Provider)
	}
}

// ProvideArchive creates the deletion archive, or nil without a bucket.
func ProvideArchive(cfg *config.Config) (outbound.ArchivePort, error) {
	if cfg.Archive.Bucket == "" {
		return nil, nil
	}
	client, err := s3adapter.NewClient(context.Background(), &s3adapter.Config{
		Endpoint:        cfg.Archive.Endpoint,
		Region:          cfg.Archive.Region,
		AccessKeyID:     cfg.Archive.AccessKeyID,
		SecretAccessKey: cfg.Archive.SecretAccessKey,
		Bucket:          cfg.Archive.Bucket,
	})
	if err != nil {
		return nil, fmt.Errorf("init archive: %w", err)
	}
	return s3adapter.NewArchive(client, cfg.Archive.Bucket, cfg.Archive.Prefix), nil
}

// ProvideLedgerMetrics exposes the prometheus metrics as the ledger metrics port.
func ProvideLedgerMetrics(m *metrics.Metrics) outbound.LedgerMetricsPort {
	return m
}

// ===== Domain Providers =====

// DomainSet provides the ledger domains.
var DomainSet = wire.NewSet(
	ProvideAccountConfig,
	ProvidePaymentConfig,
	ProvideChatConfig,
	ProvideSummaryConfig,
	ProvideMessageFilter,
	account.NewAccountDomain,
	payment.NewPaymentDomain,
	admin.NewAdminDomain,
	summary.NewSummaryDomain,
	chat.NewChatDomain,
)

// ProvideAccountConfig maps ledger limits.
func ProvideAccountConfig(cfg *config.Config) account.Config {
	return account.Config{
		FreeLimit:        cfg.Ledger.FreeLimit,
		DailyHardLimit:   cfg.Ledger.DailyHardLimit,
		SubscriptionDays: cfg.Ledger.SubscriptionDays,
	}
}

// ProvidePaymentConfig maps prices and invoice texts. The card price is
// configured in major units.
func ProvidePaymentConfig(cfg *config.Config, acct account.Config) (payment.Config, error) {
	out := payment.DefaultConfig()
	out.Account = acct
	out.PendingTTL = cfg.Ledger.PendingTTL
	out.TokenPrice = payment.Price{Amount: cfg.Token.Price, Currency: cfg.Token.Currency}
	if cfg.Token.Title != "" {
		out.InvoiceTitle = cfg.Token.Title
	}
	if cfg.Token.Description != "" {
		out.InvoiceDescription = cfg.Token.Description
	}

	if cfg.Card.Provider != "" {
		amount, err := money.ToMinor(cfg.Card.Price, cfg.Card.Currency)
		if err != nil {
			return payment.Config{}, fmt.Errorf("card price: %w", err)
		}
		out.CardPrice = payment.Price{Amount: amount, Currency: cfg.Card.Currency}
	}
	if cfg.Card.Description != "" {
		out.CardDescription = cfg.Card.Description
	}
	out.CardReturnURL = cfg.Card.ReturnURL
	return out, nil
}

// ProvideChatConfig maps turn timeouts.
func ProvideChatConfig(cfg *config.Config) chat.Config {
	out := chat.DefaultConfig()
	if cfg.Ledger.TurnTimeout > 0 {
		out.TurnTimeout = cfg.Ledger.TurnTimeout
		out.MemoryTimeout = cfg.Ledger.TurnTimeout
	}
	return out
}

// ProvideSummaryConfig maps the summary generator timeout.
func ProvideSummaryConfig(cfg *config.Config) summary.Config {
	out := summary.DefaultConfig()
	out.Timeout = cfg.LLM.Timeout
	return out
}

// ProvideMessageFilter returns the acknowledgement filter for memory updates.
func ProvideMessageFilter() chat.MessageFilter {
	return chat.NewAckFilter(chat.DefaultAckWords)
}

// ===== HTTP Providers =====

// HandlerSet provides HTTP handlers.
var HandlerSet = wire.NewSet(
	ginadapter.NewAccountAdapter,
	ginadapter.NewPaymentAdapter,
	ginadapter.NewWebhookAdapter,
	ProvideLedgerAdminHandler,
	ProvideSystemHandler,
	ProvideAdminTokens,
)

// ProvideLedgerAdminHandler creates the admin handler.
func ProvideLedgerAdminHandler(
	cfg *config.Config,
	adminDomain admin.AdminDomain,
	summaryDomain summary.SummaryDomain,
	cal *clock.Calendar,
) inbound.LedgerAdminPort {
	return ginadapter.NewLedgerAdminAdapter(adminDomain, summaryDomain, cal, cfg.Ledger.UnresolvedAfter)
}

// ProvideSystemHandler creates the health and metrics handler.
func ProvideSystemHandler(reg *prometheus.Registry, db *gorm.DB, redis goredis.UniversalClient) *ginadapter.SystemAdapter {
	var checks []ginadapter.HealthCheck
	if db != nil {
		checks = append(checks, ginadapter.HealthCheck{
			Name: "database",
			Check: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		})
	}
	if redis != nil {
		checks = append(checks, ginadapter.HealthCheck{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return redis.Ping(ctx).Err()
			},
		})
	}
	return ginadapter.NewSystemAdapter(reg, checks...)
}

// ProvideAdminTokens creates the admin token validator.
func ProvideAdminTokens(cfg *config.Config) *middleware.AdminTokens {
	return middleware.NewAdminTokens(cfg.Auth.JWTSecret, cfg.Auth.AdminAccountIDs())
}

// ===== Master Set =====

// AppSet is the master provider set that includes all dependencies.
var AppSet = wire.NewSet(
	InfraSet,
	OutboundSet,
	DomainSet,
	HandlerSet,
)
