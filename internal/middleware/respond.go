package middleware

import (
	apperrors "geminivoice-go/internal/errors"

	"github.com/gin-gonic/gin"
)

// abortWith writes the standard error envelope and stops the chain.
func abortWith(c *gin.Context, err *apperrors.APIError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.Envelope())
}
