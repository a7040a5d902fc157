package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	sharederrors "github.com/talkmeter/server/internal/shared/errors"
)

const (
	// AuthorizationHeader is the header key for authorization.
	AuthorizationHeader = "Authorization"
	// BearerPrefix is the prefix for bearer tokens.
	BearerPrefix = "Bearer "
	// AdminIDKey is the context key for the authenticated admin account id.
	AdminIDKey = "admin_id"
	// AccountIDKey is the context key for the account a request acts on.
	AccountIDKey = "account_id"
)

var (
	// ErrInvalidToken is returned for malformed, expired or badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrNotAdmin is returned when the token subject is not an administrator.
	ErrNotAdmin = errors.New("subject is not an administrator")
)

// AdminTokens issues and validates HS256 admin tokens. The subject is the
// admin's account id.
type AdminTokens struct {
	secret []byte
	admins map[int64]struct{}
	now    func() time.Time
}

// NewAdminTokens creates an admin token manager. An empty admin set accepts
// any subject signed with the secret.
func NewAdminTokens(secret string, adminIDs []int64) *AdminTokens {
	admins := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = struct{}{}
	}
	return &AdminTokens{
		secret: []byte(secret),
		admins: admins,
		now:    time.Now,
	}
}

// Issue signs a token for adminID valid for ttl.
func (a *AdminTokens) Issue(adminID int64, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(adminID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns the admin account id.
func (a *AdminTokens) Validate(tokenString string) (int64, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	adminID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || adminID <= 0 {
		return 0, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	if len(a.admins) > 0 {
		if _, ok := a.admins[adminID]; !ok {
			return 0, ErrNotAdmin
		}
	}
	return adminID, nil
}

// RequireAdmin returns a middleware that rejects requests without a valid
// admin bearer token.
func RequireAdmin(tokens *AdminTokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			abortWith(c, sharederrors.Unauthorized("unauthorized", "Authorization header required"))
			return
		}

		adminID, err := tokens.Validate(token)
		switch {
		case errors.Is(err, ErrNotAdmin):
			abortWith(c, sharederrors.Forbidden("forbidden", "Administrator access required"))
			return
		case err != nil:
			abortWith(c, sharederrors.Unauthorized("invalid_token", "Invalid or expired token"))
			return
		}

		c.Set(AdminIDKey, adminID)
		c.Next()
	}
}

func abortWith(c *gin.Context, err *sharederrors.AppError) {
	c.AbortWithStatusJSON(sharederrors.GetStatusCode(err), err.ToResponse())
}

// extractBearerToken extracts the bearer token from the Authorization header.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader(AuthorizationHeader)
	if strings.HasPrefix(authHeader, BearerPrefix) {
		return strings.TrimPrefix(authHeader, BearerPrefix)
	}
	return ""
}

// GetAdminID returns the authenticated admin id, or 0.
func GetAdminID(c *gin.Context) int64 {
	if val, exists := c.Get(AdminIDKey); exists {
		if id, ok := val.(int64); ok {
			return id
		}
	}
	return 0
}
