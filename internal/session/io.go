package session

import (
	"context"
	"time"

	apperrors "geminivoice-go/internal/errors"
	"geminivoice-go/internal/upstream"

	log "github.com/sirupsen/logrus"
)

// Send delivers msg on the current session, reconnecting first when needed. A send that
// fails on a credential problem is retried once on the replacement session.
func (c *Controller) Send(ctx context.Context, msg upstream.Message) error {
	sess, gen, label, ok := c.activeSession()
	if !ok {
		if err := c.AutoReconnect(ctx); err != nil {
			return err
		}
		if sess, gen, label, ok = c.activeSession(); !ok {
			return ErrNotConnected
		}
	}

	err := sess.Send(ctx, msg)
	if err == nil {
		c.touch(gen)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if !c.handleSessionError(gen, label, err, "send") {
		return err
	}

	if rerr := c.AutoReconnect(ctx); rerr != nil {
		return rerr
	}
	sess, gen, _, ok = c.activeSession()
	if !ok {
		return ErrNotConnected
	}
	if err := sess.Send(ctx, msg); err != nil {
		return err
	}
	c.touch(gen)
	return nil
}

// SendAudio streams one chunk of PCM audio.
func (c *Controller) SendAudio(ctx context.Context, pcm []byte) error {
	return c.Send(ctx, upstream.AudioMessage(pcm))
}

// SendText sends user text; endOfTurn asks the model to respond.
func (c *Controller) SendText(ctx context.Context, text string, endOfTurn bool) error {
	return c.Send(ctx, upstream.TextMessage(text, endOfTurn))
}

// SendFunctionResponses answers tool calls from the model.
func (c *Controller) SendFunctionResponses(ctx context.Context, responses []upstream.FunctionResponse) error {
	return c.Send(ctx, upstream.FunctionResponsesMessage(responses))
}

// handleSessionError books a send or receive failure against the session's credential.
// It returns true when the session was torn down and a reconnect is due.
func (c *Controller) handleSessionError(gen uint64, label string, err error, op string) bool {
	class := c.recordFailure(label, err, op)
	log.WithError(err).WithFields(log.Fields{
		"credential": label,
		"op":         op,
		"class":      class.String(),
	}).Warn("upstream session error")

	if until, open := c.noteError(); open {
		c.openCircuit(until)
		return true
	}
	switch class {
	case apperrors.ClassRateLimit, apperrors.ClassInvalidCredential:
		c.dropSession(gen)
		return true
	}
	return false
}

// dropSession closes the session of generation gen if it is still current.
func (c *Controller) dropSession(gen uint64) {
	c.mu.Lock()
	if c.generation != gen || c.session == nil {
		c.mu.Unlock()
		return
	}
	stale := c.session
	c.session = nil
	label := c.activeLabel
	var s State
	changed := false
	if c.state != StateCircuitOpen {
		s, changed = c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()

	_ = stale.Close()
	c.announce(s, changed, label)
}

func (c *Controller) rememberResume(ctx context.Context, resp *upstream.Response) {
	if resp.ResumeHandle == "" || !resp.Resumable {
		return
	}
	c.mu.Lock()
	c.resumeHandle = resp.ResumeHandle
	id := c.sessionID
	c.mu.Unlock()

	if c.opts.Resume == nil {
		return
	}
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := c.opts.Resume.Save(saveCtx, resp.ResumeHandle, map[string]any{"session_id": id}); err != nil {
		log.WithError(err).Warn("failed to persist session resume handle")
	}
}
