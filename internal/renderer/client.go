// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package renderer

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/session"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	sioclient "github.com/zishang520/socket.io-client-go/socket"
	"github.com/zishang520/socket.io/v2/socket"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultChangeBuffer   = 256
	connectTimeout        = 15 * time.Second
)

// RemoteError is an error reported by the server for one request.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "renderer server: " + e.Message
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds every request. Zero means 10s.
	Timeout time.Duration
	// Permission answers permission questions. Nil answers no.
	Permission func(PermissionMessage) bool
	// ChangeBuffer bounds the change channel. Zero means 256. Changes that
	// do not fit are dropped.
	ChangeBuffer int
}

// Client is a renderer connected to a docgrid server.
type Client struct {
	io      *sioclient.Socket
	timeout time.Duration
	changes chan ChangeMessage

	// emitMu keeps the timeout flag and its emit together.
	emitMu sync.Mutex
}

// Dial connects to the server at rawURL, for example
// http://localhost:8080/socket.io/.
func Dial(ctx context.Context, rawURL string, opts ClientOptions) (*Client, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)
	logger.Debug("Connecting renderer client...")

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRequestTimeout
	}
	if opts.ChangeBuffer <= 0 {
		opts.ChangeBuffer = defaultChangeBuffer
	}

	sopts := sioclient.DefaultOptions()
	sopts.SetPath(parsedURL.Path)
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		sopts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	sopts.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := sioclient.NewManager(baseURL, sopts)
	c := &Client{
		io:      manager.Socket(opts.Namespace, sopts),
		timeout: opts.Timeout,
		changes: make(chan ChangeMessage, opts.ChangeBuffer),
	}

	c.io.On(types.EventName(EventCellChanged), func(args ...any) {
		if len(args) == 0 {
			return
		}
		var msg ChangeMessage
		if err := fromWire(args[0], &msg); err != nil {
			logger.Warn("Dropping malformed change event.", "error", err)
			return
		}
		select {
		case c.changes <- msg:
		default:
			logger.Warn("Change buffer full, dropping event.", "address", msg.Address, "variable", msg.Variable)
		}
	})
	c.io.On(types.EventName(EventPermission), func(args ...any) {
		if len(args) == 0 {
			return
		}
		ack, ok := args[len(args)-1].(socket.Ack)
		if !ok {
			return
		}
		var msg PermissionMessage
		allowed := false
		if len(args) > 1 && fromWire(args[0], &msg) == nil && opts.Permission != nil {
			allowed = opts.Permission(msg)
		}
		ack([]any{allowed}, nil)
	})

	connectChan := make(chan error, 1)
	c.io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Successfully connected", "sid", c.io.Id())
		connectChan <- nil
	})
	c.io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("%v", errs[0])
		}
		connectChan <- err
	})
	c.io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			c.io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return c, nil
	case <-ctx.Done():
		c.io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(connectTimeout):
		c.io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", connectTimeout)
	}
}

// Changes delivers change events pushed by the server.
func (c *Client) Changes() <-chan ChangeMessage {
	return c.changes
}

// Close disconnects from the server.
func (c *Client) Close() {
	c.io.Disconnect()
}

// Snapshot fetches the current state of every component.
func (c *Client) Snapshot(ctx context.Context) (SnapshotMessage, error) {
	var out SnapshotMessage
	err := c.call(ctx, EventSnapshot, &out)
	return out, err
}

// Dispatch sends an action and returns its outcome.
func (c *Client) Dispatch(ctx context.Context, a session.Action) (OutcomeMessage, error) {
	msg, err := NewActionMessage(a)
	if err != nil {
		return OutcomeMessage{}, err
	}
	payload, err := toWire(msg)
	if err != nil {
		return OutcomeMessage{}, err
	}
	var out OutcomeMessage
	err = c.call(ctx, EventDispatch, &out, payload)
	return out, err
}

// Wait returns the final outcome of a pending action.
func (c *Client) Wait(ctx context.Context, token string) (OutcomeMessage, error) {
	var out OutcomeMessage
	err := c.call(ctx, EventWait, &out, token)
	return out, err
}

// Diagnostics fetches the document's diagnostics as text.
func (c *Client) Diagnostics(ctx context.Context) ([]string, error) {
	var out []string
	err := c.call(ctx, EventDiagnostics, &out)
	return out, err
}

// call emits ev and decodes the [payload, error message] acknowledgement
// into out.
func (c *Client) call(ctx context.Context, ev string, out any, args ...any) error {
	type reply struct {
		args []any
		err  error
	}
	replies := make(chan reply, 1)
	c.emitMu.Lock()
	c.io.Timeout(c.timeout).EmitWithAck(ev, args...)(func(args []any, err error) {
		replies <- reply{args, err}
	})
	c.emitMu.Unlock()

	select {
	case r := <-replies:
		if r.err != nil {
			return fmt.Errorf("%s: %w", ev, r.err)
		}
		if len(r.args) > 1 {
			if msg, ok := r.args[1].(string); ok && msg != "" {
				return &RemoteError{Message: msg}
			}
		}
		if len(r.args) == 0 || r.args[0] == nil {
			return nil
		}
		if err := fromWire(r.args[0], out); err != nil {
			return fmt.Errorf("decoding %s reply: %w", ev, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
