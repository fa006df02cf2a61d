package constants

import "time"

const (
	// ServerShutdownTimeout bounds graceful HTTP server shutdown.
	ServerShutdownTimeout = 30 * time.Second
	// ServerReadHeaderTimeout caps how long a client may take to send headers.
	ServerReadHeaderTimeout = 10 * time.Second
	// PersistFlushTimeout bounds the final metadata write on shutdown.
	PersistFlushTimeout = 5 * time.Second
	// SessionCloseTimeout bounds closing the upstream session on shutdown.
	SessionCloseTimeout = 5 * time.Second
	// StorageInitTimeout bounds connecting to the storage backend at startup.
	StorageInitTimeout = 15 * time.Second
)

// 日志推送
const (
	LogHistoryCapacity  = 1000
	LogStreamMaxClients = 16
)
