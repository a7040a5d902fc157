package gin

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/domain/admin"
	"github.com/talkmeter/server/internal/domain/summary"
	"github.com/talkmeter/server/internal/model"
	"github.com/talkmeter/server/internal/port/inbound"
	"github.com/talkmeter/server/internal/utils/clock"
)

// ledgerAdminAdapter implements inbound.LedgerAdminPort.
type ledgerAdminAdapter struct {
	admin           admin.AdminDomain
	summary         summary.SummaryDomain
	cal             *clock.Calendar
	unresolvedAfter time.Duration
}

// NewLedgerAdminAdapter creates a new ledger admin HTTP adapter.
// unresolvedAfter is the default age for the unresolved payments listing.
func NewLedgerAdminAdapter(
	admin admin.AdminDomain,
	summary summary.SummaryDomain,
	cal *clock.Calendar,
	unresolvedAfter time.Duration,
) inbound.LedgerAdminPort {
	return &ledgerAdminAdapter{
		admin:           admin,
		summary:         summary,
		cal:             cal,
		unresolvedAfter: unresolvedAfter,
	}
}

// RegisterRoutes registers admin ledger routes. Callers attach the admin
// auth middleware to r.
func (a *ledgerAdminAdapter) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/admin/accounts")
	{
		accounts.GET("", a.ListAccounts)
		accounts.GET("/:id", a.GetAccount)
		accounts.POST("/:id/grant", a.GrantSubscription)
		accounts.POST("/:id/reset", a.ResetToFree)
		accounts.DELETE("/:id", a.DeleteAccount)
		accounts.GET("/:id/dialog", a.GetDialogText)
		accounts.PUT("/:id/summary", a.SaveSummary)
	}
	r.GET("/admin/payments/unresolved", a.ListUnresolvedPayments)
}

type listAccountsQuery struct {
	Subscribed bool `form:"subscribed"`
	Limit      int  `form:"limit"`
	Offset     int  `form:"offset"`
}

func (a *ledgerAdminAdapter) ListAccounts(c *gin.Context) {
	var q listAccountsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}

	filter := model.AccountFilter{SubscribedOnly: q.Subscribed, Limit: q.Limit, Offset: q.Offset}
	accounts, err := a.admin.ListAccounts(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}

	filter.DefaultLimit()
	c.JSON(http.StatusOK, gin.H{
		"accounts": accounts,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (a *ledgerAdminAdapter) GetAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	acc, err := a.admin.GetAccount(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

func (a *ledgerAdminAdapter) GrantSubscription(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	acc, err := a.admin.Grant30Days(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

func (a *ledgerAdminAdapter) ResetToFree(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	acc, err := a.admin.ResetToFree(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, acc)
}

func (a *ledgerAdminAdapter) DeleteAccount(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	if err := a.admin.DeleteAccount(c.Request.Context(), id); err != nil {
		handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *ledgerAdminAdapter) ListUnresolvedPayments(c *gin.Context) {
	olderThan, ok := parseDuration(c, "older_than", a.unresolvedAfter)
	if !ok {
		return
	}

	payments, err := a.admin.ListUnresolvedPayments(c.Request.Context(), olderThan)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

func (a *ledgerAdminAdapter) GetDialogText(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}
	day, ok := parseDay(c, "day", a.cal.Today())
	if !ok {
		return
	}

	text, err := a.summary.GetDialogText(c.Request.Context(), id, day)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"account_id": id,
		"day":        day.Format(time.DateOnly),
		"text":       text,
	})
}

type saveSummaryRequest struct {
	Day  string `json:"day"`
	Text string `json:"text" binding:"required"`
}

func (a *ledgerAdminAdapter) SaveSummary(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req saveSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}

	day := a.cal.Today()
	if req.Day != "" {
		parsed, err := clock.ParseDay(req.Day)
		if err != nil {
			badRequest(c, "invalid_day", "Day must be formatted as YYYY-MM-DD")
			return
		}
		day = parsed
	}

	saved, err := a.summary.SaveSummary(c.Request.Context(), id, day, req.Text)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved": saved})
}
