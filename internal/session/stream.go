package session

import (
	"context"
	"errors"
	"io"

	"geminivoice-go/internal/upstream"

	log "github.com/sirupsen/logrus"
)

// Stream is a lazy sequence of upstream responses. It follows the controller across
// reconnects: after a new session is installed, Next continues on that session.
type Stream struct {
	c     *Controller
	gen   uint64
	ended bool
}

// Receive returns a stream bound to whatever session is current when Next is called.
func (c *Controller) Receive() *Stream {
	return &Stream{c: c}
}

// Next blocks for the next response. It returns io.EOF once the upstream ends the
// session normally; later calls keep returning io.EOF. Transport failures are
// classified and returned, and the following call reconnects.
func (s *Stream) Next(ctx context.Context) (*upstream.Response, error) {
	c := s.c
	for {
		if s.ended {
			return nil, io.EOF
		}
		sess, gen, label, ok := c.activeSession()
		if !ok {
			if err := c.AutoReconnect(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if s.gen != 0 && s.gen != gen {
			log.WithField("credential", label).Debug("receive stream moved to new session")
		}
		s.gen = gen

		resp, err := sess.Recv(ctx)
		if err == nil {
			c.touch(gen)
			c.rememberResume(ctx, resp)
			if resp.GoAway {
				log.WithFields(log.Fields{"credential": label, "time_left": resp.TimeLeft}).Warn("upstream announced session shutdown")
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			// an interrupted read leaves the connection unusable; no blame on the credential
			c.dropSession(gen)
			return nil, ctx.Err()
		}
		if c.isClosed() {
			return nil, ErrClosed
		}
		if c.generationChanged(gen) {
			// another caller replaced the session underneath us
			continue
		}
		if errors.Is(err, io.EOF) {
			c.dropSession(gen)
			s.ended = true
			return nil, io.EOF
		}

		c.handleSessionError(gen, label, err, "receive")
		c.dropSession(gen)
		return nil, err
	}
}

func (c *Controller) generationChanged(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}
