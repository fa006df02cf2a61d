// Package live talks to the Gemini Live API over a WebSocket.
package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"geminivoice-go/internal/upstream"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// DefaultEndpoint is the public BidiGenerateContent endpoint.
const DefaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

const (
	apiKeyHeader        = "x-goog-api-key"
	defaultDialTimeout  = 15 * time.Second
	defaultWriteTimeout = 10 * time.Second
	maxErrorBody        = 512
)

// Options configure a Transport.
type Options struct {
	Endpoint     string
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	Headers      http.Header
}

// Transport dials one WebSocket per session.
type Transport struct {
	endpoint     string
	dialer       *websocket.Dialer
	writeTimeout time.Duration
	headers      http.Header
}

// New builds a live Transport.
func New(opts Options) *Transport {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	dialTimeout := opts.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &Transport{
		endpoint: endpoint,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   32 * 1024,
			WriteBufferSize:  32 * 1024,
		},
		writeTimeout: writeTimeout,
		headers:      opts.Headers,
	}
}

// Open dials the endpoint, sends the setup frame and waits for setupComplete.
func (t *Transport) Open(ctx context.Context, secret string, cfg upstream.SessionConfig) (upstream.Session, error) {
	if secret == "" {
		return nil, fmt.Errorf("unauthorized: empty api key")
	}
	setup, err := buildSetup(cfg)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	for k, vs := range t.headers {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	header.Set(apiKeyHeader, secret)

	conn, resp, err := t.dialer.DialContext(ctx, t.endpoint, header)
	if err != nil {
		return nil, dialError(resp, err)
	}

	s := &session{conn: conn, writeTimeout: t.writeTimeout}
	if err := s.writeFrame(ctx, setup); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup: %w", err)
	}

	// anything that arrives before setupComplete is dropped
	for {
		raw, err := s.readFrame(ctx)
		if err != nil {
			_ = conn.Close()
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("session closed during setup: %w", io.ErrUnexpectedEOF)
			}
			return nil, fmt.Errorf("await setup: %w", err)
		}
		_, kind, perr := parseFrame(raw)
		if perr != nil {
			_ = conn.Close()
			return nil, perr
		}
		if kind == frameSetupComplete {
			break
		}
	}
	log.WithField("model", cfg.Model).Debug("live session established")
	return s, nil
}

func dialError(resp *http.Response, err error) error {
	if resp == nil {
		return fmt.Errorf("live dial: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if len(body) > 0 {
		return fmt.Errorf("live dial: %d %s: %s: %w", resp.StatusCode, http.StatusText(resp.StatusCode), strings.TrimSpace(string(body)), err)
	}
	return fmt.Errorf("live dial: %d %s: %w", resp.StatusCode, http.StatusText(resp.StatusCode), err)
}

type session struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func (s *session) Send(ctx context.Context, msg upstream.Message) error {
	frame, err := buildMessage(msg)
	if err != nil {
		return err
	}
	return s.writeFrame(ctx, frame)
}

func (s *session) Recv(ctx context.Context) (*upstream.Response, error) {
	for {
		raw, err := s.readFrame(ctx)
		if err != nil {
			return nil, err
		}
		resp, kind, err := parseFrame(raw)
		if err != nil {
			return nil, err
		}
		if kind == frameContent {
			return resp, nil
		}
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.writeMu.Lock()
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		s.writeMu.Unlock()
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// gorilla allows one concurrent writer; writeMu serializes Send and Close.
func (s *session) writeFrame(ctx context.Context, frame []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return translateCloseError(err)
	}
	return nil
}

func (s *session) readFrame(ctx context.Context) ([]byte, error) {
	// unblock the read when ctx ends; gorilla treats the timeout as fatal, so a
	// cancelled Recv leaves the session unusable
	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetReadDeadline(time.Now())
	})
	defer stop()
	if d, ok := ctx.Deadline(); ok {
		_ = s.conn.SetReadDeadline(d)
	} else {
		_ = s.conn.SetReadDeadline(time.Time{})
	}

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, translateCloseError(err)
	}
	return raw, nil
}

// translateCloseError maps a normal close to io.EOF and keeps the close reason in the
// error text so the classifier can see quota and key problems.
func translateCloseError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return io.EOF
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("session closed (%d): %s", ce.Code, ce.Text)
	}
	return err
}
