package management

import (
	"bytes"
	"net/http"
	"runtime"
	"time"

	"geminivoice-go/internal/config"
	apperrors "geminivoice-go/internal/errors"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// GetSystemInfo returns system information
func (h *AdminAPIHandler) GetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"go_version": runtime.Version(),
		"uptime":     time.Since(h.startTime).Seconds(),
		"timestamp":  time.Now().Unix(),
		"goroutines": runtime.NumGoroutine(),
	})
}

// GetHealth returns 200 while storage answers and the session is healthy, 503 otherwise.
func (h *AdminAPIHandler) GetHealth(c *gin.Context) {
	healthy := true
	checks := gin.H{}

	if h.storage != nil {
		if err := h.storage.Health(c.Request.Context()); err != nil {
			healthy = false
			checks["storage"] = gin.H{"status": "unhealthy", "backend": h.storage.Name(), "error": err.Error()}
		} else {
			checks["storage"] = gin.H{"status": "healthy", "backend": h.storage.Name()}
		}
	}

	st := h.pool.Stats()
	credStatus := gin.H{"total": st.Total, "active": st.Active}
	if st.Total > 0 && st.Active == 0 && st.RateLimited == 0 {
		healthy = false
		credStatus["status"] = "unhealthy"
	} else {
		credStatus["status"] = "ok"
	}
	checks["credentials"] = credStatus

	if h.controller != nil {
		s := h.controller.Status()
		checks["session"] = gin.H{"state": s.State, "healthy": s.Healthy}
		if !s.Healthy {
			healthy = false
		}
	}

	status := http.StatusOK
	label := "healthy"
	if !healthy {
		status = http.StatusServiceUnavailable
		label = "unhealthy"
	}
	c.JSON(status, gin.H{"status": label, "checks": checks})
}

// GetStatus returns the controller's status report, or pool stats alone without one.
func (h *AdminAPIHandler) GetStatus(c *gin.Context) {
	if h.controller == nil {
		c.JSON(http.StatusOK, gin.H{"connected": false, "credentials": h.pool.Stats()})
		return
	}
	c.JSON(http.StatusOK, h.controller.Status())
}

// RotateCredential forces a move to the next available credential.
func (h *AdminAPIHandler) RotateCredential(c *gin.Context) {
	if h.controller == nil {
		respondError(c, apperrors.Unavailable("session controller not configured"))
		return
	}
	label, err := h.controller.ForceRotate(c.Request.Context())
	if label == "" && err != nil {
		respondDomainError(c, err)
		return
	}
	h.audit(c, "session.rotate", log.Fields{"credential": label})
	resp := gin.H{"credential": label}
	if err != nil {
		resp["reconnect_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ReconnectSession tears down and reopens the session.
func (h *AdminAPIHandler) ReconnectSession(c *gin.Context) {
	if h.controller == nil {
		respondError(c, apperrors.Unavailable("session controller not configured"))
		return
	}
	if err := h.controller.Reconnect(c.Request.Context()); err != nil {
		respondDomainError(c, err)
		return
	}
	h.audit(c, "session.reconnect", nil)
	c.JSON(http.StatusOK, h.controller.Status())
}

// ListTasks lists background tasks with capacity stats.
func (h *AdminAPIHandler) ListTasks(c *gin.Context) {
	if h.tasks == nil {
		c.JSON(http.StatusOK, gin.H{"tasks": []any{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": h.tasks.ListTasks(), "stats": h.tasks.GetStats()})
}

// GetConfig returns the effective configuration as YAML with secrets redacted.
func (h *AdminAPIHandler) GetConfig(c *gin.Context) {
	if h.cfg == nil {
		respondError(c, apperrors.Unavailable("configuration manager not configured"))
		return
	}
	var buf bytes.Buffer
	if err := config.Export(&buf, h.cfg.Get()); err != nil {
		respondError(c, apperrors.Internal(err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/yaml; charset=utf-8", buf.Bytes())
}

// ReloadConfig re-reads the config file.
func (h *AdminAPIHandler) ReloadConfig(c *gin.Context) {
	if h.cfg == nil {
		respondError(c, apperrors.Unavailable("configuration manager not configured"))
		return
	}
	if err := h.cfg.Reload(); err != nil {
		respondError(c, apperrors.BadRequest("reload failed: "+err.Error()))
		return
	}
	h.audit(c, "config.reload", nil)
	c.JSON(http.StatusOK, gin.H{"message": "Configuration reloaded"})
}
