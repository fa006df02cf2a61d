package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"geminivoice-go/internal/credential"
	"geminivoice-go/internal/session"

	log "github.com/sirupsen/logrus"
)

// console is the text front end: each stdin line is one user turn, text replies and
// transcriptions are printed as they stream in. Lines starting with "/" are commands.
type console struct {
	ctrl *session.Controller
	in   io.Reader

	outMu sync.Mutex
	out   io.Writer
}

func newConsole(ctrl *session.Controller, in io.Reader, out io.Writer) *console {
	return &console{ctrl: ctrl, in: in, out: out}
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

func (c *console) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	recvDone := make(chan error, 1)
	go func() { recvDone <- c.receive(ctx) }()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("connected; type a message, /status, /rotate or /quit\n")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-recvDone:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.handleLine(ctx, strings.TrimSpace(line))
			if err != nil {
				c.printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

func (c *console) handleLine(ctx context.Context, line string) (bool, error) {
	switch line {
	case "":
		return false, nil
	case "/quit", "/exit":
		return true, nil
	case "/status":
		data, err := json.MarshalIndent(c.ctrl.Status(), "", "  ")
		if err != nil {
			return false, err
		}
		c.printf("%s\n", data)
		return false, nil
	case "/rotate":
		label, err := c.ctrl.ForceRotate(ctx)
		if label != "" {
			c.printf("now using credential %s\n", label)
		}
		return false, err
	}
	return false, c.ctrl.SendText(ctx, line, true)
}

// receive prints responses until the session ends normally or ctx is canceled.
// Transient stream errors are logged and the stream reconnects on the next call;
// an exhausted pool or an open breaker ends the loop.
func (c *console) receive(ctx context.Context) error {
	stream := c.ctrl.Receive()
	var failed *session.ConnectionFailedError
	for {
		resp, err := stream.Next(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			c.printf("\n[session ended]\n")
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, session.ErrClosed):
			return nil
		case session.IsCircuitOpen(err), errors.As(err, &failed),
			errors.Is(err, credential.ErrNoAvailableCredential), errors.Is(err, session.ErrNotConnected):
			return err
		default:
			log.WithError(err).Warn("receive failed")
			continue
		}

		if resp.InputTranscription != "" {
			c.printf("you> %s\n", resp.InputTranscription)
		}
		if resp.Text != "" {
			c.printf("%s", resp.Text)
		}
		if resp.OutputTranscription != "" {
			c.printf("%s", resp.OutputTranscription)
		}
		if resp.Interrupted {
			c.printf(" [interrupted]")
		}
		if resp.TurnComplete {
			c.printf("\n")
		}
	}
}
