package management

import (
	"context"
	"time"

	"geminivoice-go/internal/config"
	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/logging"
	"geminivoice-go/internal/runtime"
	"geminivoice-go/internal/session"
	"geminivoice-go/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// CredentialPool is the part of the credential pool the admin API drives.
type CredentialPool interface {
	Stats() credential.Stats
	Get(label string) (*credential.Record, error)
	AddKey(label, secret string) error
	Enable(label string) error
	Disable(label string) error
	ResetErrors(label string) error
	SetRotationEnabled(enabled bool)
	HealthCheck() int
}

// SessionController is the part of the session controller the admin API drives.
type SessionController interface {
	Status() session.Status
	ForceRotate(ctx context.Context) (string, error)
	Reconnect(ctx context.Context) error
}

// TaskLister exposes background task state.
type TaskLister interface {
	ListTasks() []runtime.Task
	GetStats() runtime.TaskStats
}

// LogFeed serves recent log lines and events, live or by cursor.
type LogFeed interface {
	FetchSince(cursor uint64, limit int) ([]logging.Message, uint64, bool)
	AddClient(conn *websocket.Conn) error
	RemoveClient(conn *websocket.Conn)
}

// ConfigSource returns the live configuration and reloads it on demand.
type ConfigSource interface {
	Get() *config.Config
	Reload() error
}

// Dependencies wires the handler to the running services. Only Pool is required.
type Dependencies struct {
	Pool       CredentialPool
	Controller SessionController
	Tasks      TaskLister
	Logs       LogFeed
	Config     ConfigSource
	Storage    storage.Backend
}

// AdminAPIHandler provides the management API endpoints.
type AdminAPIHandler struct {
	pool       CredentialPool
	controller SessionController
	tasks      TaskLister
	logs       LogFeed
	cfg        ConfigSource
	storage    storage.Backend
	startTime  time.Time
	upgrader   websocket.Upgrader
}

func NewAdminAPIHandler(deps Dependencies) *AdminAPIHandler {
	return &AdminAPIHandler{
		pool:       deps.Pool,
		controller: deps.Controller,
		tasks:      deps.Tasks,
		logs:       deps.Logs,
		cfg:        deps.Config,
		storage:    deps.Storage,
		startTime:  time.Now(),
		upgrader:   websocket.Upgrader{CheckOrigin: sameOrigin},
	}
}

// RegisterRoutes registers all management routes
func (h *AdminAPIHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/system", h.GetSystemInfo)
	group.GET("/status", h.GetStatus)

	group.GET("/credentials", h.ListCredentials)
	group.POST("/credentials", h.AddCredential)
	group.GET("/credentials/:name", h.GetCredential)
	group.POST("/credentials/:name/enable", h.EnableCredential)
	group.POST("/credentials/:name/disable", h.DisableCredential)
	group.POST("/credentials/:name/reset", h.ResetCredential)
	group.POST("/credentials/health-check", h.RunHealthCheck)
	group.PUT("/rotation", h.SetRotation)

	group.POST("/session/rotate", h.RotateCredential)
	group.POST("/session/reconnect", h.ReconnectSession)

	group.GET("/tasks", h.ListTasks)

	group.GET("/config", h.GetConfig)
	group.POST("/config/reload", h.ReloadConfig)

	group.GET("/logs", h.GetLogs)
	group.GET("/logs/stream", h.StreamLogs)
}
