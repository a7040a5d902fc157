package gin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/talkmeter/server/internal/domain/account"
	"github.com/talkmeter/server/internal/domain/chat"
	"github.com/talkmeter/server/internal/port/inbound"
)

// accountAdapter implements inbound.AccountHttpPort.
type accountAdapter struct {
	accounts account.AccountDomain
	chat     chat.ChatDomain
}

// NewAccountAdapter creates a new account HTTP adapter.
func NewAccountAdapter(accounts account.AccountDomain, chat chat.ChatDomain) inbound.AccountHttpPort {
	return &accountAdapter{accounts: accounts, chat: chat}
}

// RegisterRoutes registers conversation routes.
func (a *accountAdapter) RegisterRoutes(r *gin.RouterGroup) {
	accounts := r.Group("/accounts")
	{
		accounts.GET("/:id", a.GetStatus)
		accounts.POST("/:id/turns", a.Turn)
	}
}

type turnRequest struct {
	Text     string `json:"text" binding:"required"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

func (a *accountAdapter) Turn(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req turnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid_input", err.Error())
		return
	}

	res, err := a.chat.Turn(c.Request.Context(), &chat.TurnRequest{
		AccountID: id,
		Text:      req.Text,
		Username:  req.Username,
		FullName:  req.FullName,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	// A denial is a normal outcome for the conversation layer, not an error.
	c.JSON(http.StatusOK, res)
}

func (a *accountAdapter) GetStatus(c *gin.Context) {
	id, ok := parseAccountID(c)
	if !ok {
		return
	}

	status, err := a.accounts.Status(c.Request.Context(), id)
	if err != nil {
		handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}
