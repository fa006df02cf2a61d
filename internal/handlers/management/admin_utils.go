package management

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"geminivoice-go/internal/credential"
	apperrors "geminivoice-go/internal/errors"
	"geminivoice-go/internal/session"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func respondError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.HTTPStatus, apiErr.Envelope())
}

// respondDomainError maps pool and controller errors onto the API envelope.
func respondDomainError(c *gin.Context, err error) {
	var circuit *session.CircuitOpenError
	switch {
	case errors.Is(err, credential.ErrCredentialNotFound):
		respondError(c, apperrors.NotFound(err.Error()))
	case errors.Is(err, credential.ErrDuplicate), errors.Is(err, credential.ErrCredentialInvalid):
		respondError(c, apperrors.Conflict(err.Error()))
	case errors.Is(err, credential.ErrNoAvailableCredential):
		respondError(c, apperrors.Unavailable(err.Error()))
	case errors.As(err, &circuit):
		respondError(c, apperrors.Unavailable(err.Error()).WithDetails(map[string]interface{}{
			"retry_at": circuit.Until,
		}))
	case errors.Is(err, session.ErrNotConnected), errors.Is(err, session.ErrClosed):
		respondError(c, apperrors.New(http.StatusConflict, "not_connected", "invalid_request_error", err.Error()))
	default:
		respondError(c, apperrors.Internal(err.Error()))
	}
}

func (h *AdminAPIHandler) audit(c *gin.Context, action string, fields log.Fields) {
	if fields == nil {
		fields = log.Fields{}
	}
	fields["component"] = "audit"
	fields["action"] = action
	fields["remote_ip"] = c.ClientIP()
	if rid, ok := c.Get("request_id"); ok {
		fields["request_id"] = rid
	}
	log.WithFields(fields).Info("management audit")
}

// sameOrigin accepts WebSocket upgrades from non-browser clients and same-host pages.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}
