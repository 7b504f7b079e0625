// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package renderer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/host"
	"github.com/vk/docgrid/internal/session"
	"github.com/zishang520/socket.io/v2/socket"
)

// ErrNoDocument is returned while no document is attached to the server.
var ErrNoDocument = errors.New("no document attached")

const defaultPermissionTimeout = 30 * time.Second

// ServerOptions configures a Server.
type ServerOptions struct {
	// PermissionTimeout bounds how long a permission question waits for
	// renderers. Zero means 30s.
	PermissionTimeout time.Duration
}

// Server exposes one open document to socket.io renderers. Requests run
// through the document's pipeline; change events are pushed to every
// connected renderer.
type Server struct {
	ctx  context.Context
	opts ServerOptions
	io   *socket.Server

	mu       sync.RWMutex
	entry    *host.Entry
	stop     chan struct{}
	pumpDone chan struct{}
}

// NewServer creates a server with no document attached.
func NewServer(ctx context.Context, opts ServerOptions) *Server {
	if opts.PermissionTimeout <= 0 {
		opts.PermissionTimeout = defaultPermissionTimeout
	}
	s := &Server{ctx: ctx, opts: opts, io: socket.NewServer(nil, nil)}
	s.io.On("connection", s.onConnection)
	return s
}

// Handler is the socket.io endpoint, usually mounted at /socket.io/.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Attach makes entry the served document and returns the previous one.
// Connected renderers receive a reloaded event.
func (s *Server) Attach(entry *host.Entry) *host.Entry {
	s.mu.Lock()
	prev := s.entry
	s.stopPump()
	s.entry = entry
	if entry != nil {
		s.stop = make(chan struct{})
		s.pumpDone = make(chan struct{})
		go s.pump(entry.Session.Events(), s.stop, s.pumpDone)
	}
	s.mu.Unlock()

	if prev != nil && entry != nil {
		ctxlog.FromContext(s.ctx).Info("🔄 Document reloaded.", "session", entry.ID)
		s.io.Emit(EventReloaded, entry.ID)
	}
	return prev
}

// Close stops pushing events and disconnects every renderer.
func (s *Server) Close() {
	s.mu.Lock()
	s.stopPump()
	s.entry = nil
	s.mu.Unlock()
	s.io.Close(nil)
}

// stopPump must be called with mu held.
func (s *Server) stopPump() {
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.pumpDone
	s.stop, s.pumpDone = nil, nil
}

func (s *Server) current() (*host.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.entry == nil {
		return nil, ErrNoDocument
	}
	return s.entry, nil
}

// pump forwards change events of one session until stop is closed.
func (s *Server) pump(q *session.EventQueue, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	logger := ctxlog.FromContext(s.ctx)
	for {
		select {
		case <-stop:
			return
		case <-q.Ready():
			for _, e := range q.Drain() {
				msg, err := toWire(e)
				if err != nil {
					logger.Error("Failed to encode change event.", "address", e.Address, "variable", e.Variable, "error", err)
					continue
				}
				s.io.Emit(EventCellChanged, msg)
			}
		}
	}
}

func (s *Server) onConnection(clients ...any) {
	client, ok := clients[0].(*socket.Socket)
	if !ok {
		return
	}
	logger := ctxlog.FromContext(s.ctx).With("sid", client.Id())
	logger.Info("Renderer connected.")

	// Handlers leave the socket's read loop free, so acks for permission
	// questions keep arriving while a request waits.
	on := func(ev string, fn func(context.Context, *host.Entry, []any) (any, error)) {
		client.On(ev, func(args ...any) {
			go s.reply(ev, args, fn)
		})
	}
	on(EventSnapshot, s.snapshot)
	on(EventDispatch, s.dispatch)
	on(EventWait, s.wait)
	on(EventDiagnostics, s.diagnostics)

	client.On("disconnect", func(reason ...any) {
		logger.Info("Renderer disconnected.", "reason", reason)
	})
}

// reply runs fn and acknowledges with [payload, error message].
func (s *Server) reply(ev string, args []any, fn func(context.Context, *host.Entry, []any) (any, error)) {
	var ack socket.Ack
	if n := len(args); n > 0 {
		if a, ok := args[n-1].(socket.Ack); ok {
			ack = a
			args = args[:n-1]
		}
	}
	logger := ctxlog.FromContext(s.ctx).With("event", ev)

	result, err := func() (any, error) {
		entry, err := s.current()
		if err != nil {
			return nil, err
		}
		return fn(s.ctx, entry, args)
	}()
	if err != nil {
		logger.Warn("Renderer request failed.", "error", err)
		if ack != nil {
			ack([]any{nil, err.Error()}, nil)
		}
		return
	}
	if ack == nil {
		return
	}
	payload, err := toWire(result)
	if err != nil {
		logger.Error("Failed to encode reply.", "error", err)
		ack([]any{nil, err.Error()}, nil)
		return
	}
	ack([]any{payload, ""}, nil)
}

func (s *Server) snapshot(ctx context.Context, e *host.Entry, _ []any) (any, error) {
	return e.Pipeline.Snapshot(ctx)
}

func (s *Server) dispatch(ctx context.Context, e *host.Entry, args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("dispatch needs an action")
	}
	var msg ActionMessage
	if err := fromWire(args[0], &msg); err != nil {
		return nil, fmt.Errorf("decoding action: %w", err)
	}
	a, err := msg.Action()
	if err != nil {
		return nil, fmt.Errorf("decoding action: %w", err)
	}
	return e.Pipeline.Dispatch(ctx, a)
}

func (s *Server) wait(ctx context.Context, e *host.Entry, args []any) (any, error) {
	if len(args) == 0 {
		return nil, errors.New("wait needs a token")
	}
	token, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("token must be a string, got %T", args[0])
	}
	return e.Pipeline.Wait(ctx, token)
}

func (s *Server) diagnostics(ctx context.Context, e *host.Entry, _ []any) (any, error) {
	var out []string
	err := e.Pipeline.Do(ctx, func(_ context.Context, sess *session.Session) error {
		for _, d := range sess.Diagnostics() {
			out = append(out, d.String())
		}
		return nil
	})
	return out, err
}

// Permission asks connected renderers whether a suspended action may
// complete. It is granted only when at least one renderer answers and every
// answer is yes. It satisfies pipeline.PermissionFunc.
func (s *Server) Permission(ctx context.Context, req session.PermissionRequest) (bool, error) {
	msg, err := toWire(PermissionMessage{Action: req.Action, Target: req.Target})
	if err != nil {
		return false, err
	}
	type answer struct {
		responses []any
		err       error
	}
	answers := make(chan answer, 1)
	s.io.Timeout(s.opts.PermissionTimeout).EmitWithAck(EventPermission, msg)(func(responses []any, err error) {
		select {
		case answers <- answer{responses, err}:
		default:
		}
	})

	select {
	case a := <-answers:
		if a.err != nil {
			return false, fmt.Errorf("asking renderers: %w", a.err)
		}
		return granted(a.responses), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func granted(responses []any) bool {
	if len(responses) == 0 {
		return false
	}
	for _, r := range responses {
		if list, ok := r.([]any); ok {
			if len(list) == 0 {
				return false
			}
			r = list[0]
		}
		if yes, ok := r.(bool); !ok || !yes {
			return false
		}
	}
	return true
}
