package app

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	ginadapter "github.com/talkmeter/server/internal/adapter/inbound/gin"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/domain/admin"
	"github.com/talkmeter/server/internal/domain/chat"
	"github.com/talkmeter/server/internal/domain/payment"
	"github.com/talkmeter/server/internal/domain/summary"
	"github.com/talkmeter/server/internal/infra/config"
	"github.com/talkmeter/server/internal/port/inbound"
	"github.com/talkmeter/server/internal/port/outbound"
	"github.com/talkmeter/server/internal/shared/logger"
	"github.com/talkmeter/server/internal/utils/clock"
	"github.com/talkmeter/server/internal/utils/metrics"
	"github.com/talkmeter/server/internal/utils/middleware"
)

// Dependencies holds all injected dependencies.
type Dependencies struct {
	Config     *config.Config
	DB         *gorm.DB
	Redis      goredis.UniversalClient
	HTTPClient *http.Client
	Logger     *logger.Logger
	ZapLogger  *zap.Logger
	Registry   *prometheus.Registry
	Metrics    *metrics.Metrics
	Calendar   *clock.Calendar
	Store      outbound.LedgerStorePort

	// Domains
	AccountDomain account.AccountDomain
	ChatDomain    chat.ChatDomain
	PaymentDomain payment.PaymentDomain
	AdminDomain   admin.AdminDomain
	SummaryDomain summary.SummaryDomain

	// HTTP Handlers
	AccountHandler inbound.AccountHttpPort
	PaymentHandler inbound.PaymentHttpPort
	WebhookHandler inbound.WebhookHttpPort
	AdminHandler   inbound.LedgerAdminPort
	SystemHandler  *ginadapter.SystemAdapter
	AdminTokens    *middleware.AdminTokens
}
