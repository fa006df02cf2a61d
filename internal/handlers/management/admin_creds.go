package management

import (
	"net/http"
	"strings"

	apperrors "geminivoice-go/internal/errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// ListCredentials returns pool counters and every record with its secret masked.
func (h *AdminAPIHandler) ListCredentials(c *gin.Context) {
	c.JSON(http.StatusOK, h.pool.Stats())
}

// GetCredential returns one record from the stats view.
func (h *AdminAPIHandler) GetCredential(c *gin.Context) {
	name := c.Param("name")
	for _, k := range h.pool.Stats().Keys {
		if k.Label == name {
			c.JSON(http.StatusOK, k)
			return
		}
	}
	respondError(c, apperrors.NotFound("credential not found: "+name))
}

type addCredentialRequest struct {
	Name string `json:"name" binding:"required"`
	Key  string `json:"key" binding:"required"`
}

// AddCredential pools an administrator-supplied key.
func (h *AdminAPIHandler) AddCredential(c *gin.Context) {
	var req addCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apperrors.BadRequest("name and key are required"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if err := h.pool.AddKey(name, strings.TrimSpace(req.Key)); err != nil {
		respondDomainError(c, err)
		return
	}
	h.audit(c, "credential.add", log.Fields{"credential": name})
	c.JSON(http.StatusCreated, gin.H{"message": "Credential added", "name": name})
}

// EnableCredential enables a credential
func (h *AdminAPIHandler) EnableCredential(c *gin.Context) {
	h.mutate(c, "credential.enable", "Credential enabled", h.pool.Enable)
}

// DisableCredential disables a credential
func (h *AdminAPIHandler) DisableCredential(c *gin.Context) {
	h.mutate(c, "credential.disable", "Credential disabled", h.pool.Disable)
}

// ResetCredential clears the error counter.
func (h *AdminAPIHandler) ResetCredential(c *gin.Context) {
	h.mutate(c, "credential.reset", "Credential errors reset", h.pool.ResetErrors)
}

func (h *AdminAPIHandler) mutate(c *gin.Context, action, message string, fn func(string) error) {
	name := c.Param("name")
	if err := fn(name); err != nil {
		respondDomainError(c, err)
		return
	}
	h.audit(c, action, log.Fields{"credential": name})
	rec, err := h.pool.Get(name)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": message, "name": name, "status": rec.Status})
}

// RunHealthCheck runs the periodic sweep immediately.
func (h *AdminAPIHandler) RunHealthCheck(c *gin.Context) {
	n := h.pool.HealthCheck()
	h.audit(c, "credential.health_check", log.Fields{"updated": n})
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

type rotationRequest struct {
	Enabled *bool `json:"enabled"`
}

// SetRotation switches automatic rotation on rate limits.
func (h *AdminAPIHandler) SetRotation(c *gin.Context) {
	var req rotationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		respondError(c, apperrors.BadRequest("enabled (bool) is required"))
		return
	}
	h.pool.SetRotationEnabled(*req.Enabled)
	h.audit(c, "credential.rotation", log.Fields{"enabled": *req.Enabled})
	c.JSON(http.StatusOK, gin.H{"rotation_enabled": *req.Enabled})
}
