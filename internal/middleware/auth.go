package middleware

import (
	"net/http"
	"strings"

	apperrors "geminivoice-go/internal/errors"

	"github.com/gin-gonic/gin"
)

// AdminAuth accepts the admin key from:
// - Authorization: Bearer <token>
// - x-api-key: <token>
// The key itself is never stored on the context.
func AdminAuth(validate func(key string) bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := providedKey(c)
		if key == "" {
			abortWith(c, apperrors.New(http.StatusUnauthorized, "missing_api_key", "authentication_error", "API key not provided"))
			return
		}
		if validate == nil || !validate(key) {
			abortWith(c, apperrors.New(http.StatusUnauthorized, "invalid_api_key", "authentication_error", "Invalid API key"))
			return
		}
		c.Set("authenticated", true)
		c.Next()
	}
}

func providedKey(c *gin.Context) string {
	auth := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(c.GetHeader("x-api-key"))
}
