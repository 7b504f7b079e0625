// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/metrics"
	"github.com/vk/docgrid/internal/session"
)

var (
	// ErrClosed is returned for work submitted after Close.
	ErrClosed = errors.New("pipeline closed")
	// ErrUnknownToken is returned by Wait for tokens it never issued or
	// already answered.
	ErrUnknownToken = errors.New("unknown action token")
)

// PermissionFunc answers whether a suspended action may complete.
type PermissionFunc func(ctx context.Context, req session.PermissionRequest) (bool, error)

// AllowAll grants every request.
func AllowAll(context.Context, session.PermissionRequest) (bool, error) {
	return true, nil
}

// Options configures a Pipeline.
type Options struct {
	// Permission is consulted for suspended actions. Defaults to AllowAll.
	Permission PermissionFunc
	Metrics    *metrics.Metrics
}

// Pipeline owns a session and applies work to it sequentially.
type Pipeline struct {
	s    *session.Session
	opts Options

	mu      sync.Mutex
	queue   []*job
	closed  bool
	pending map[string]chan session.Outcome

	ctx        context.Context // jobs run with this context
	permCtx    context.Context
	permCancel context.CancelFunc
	permWG     sync.WaitGroup

	wake chan struct{}
	done chan struct{}
}

// New starts a pipeline around s. The session should already be settled.
func New(ctx context.Context, s *session.Session, opts Options) *Pipeline {
	if opts.Permission == nil {
		opts.Permission = AllowAll
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	p := &Pipeline{
		s:       s,
		opts:    opts,
		pending: make(map[string]chan session.Outcome),
		ctx:     context.WithoutCancel(ctx),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	p.permCtx, p.permCancel = context.WithCancel(p.ctx)
	go p.worker()
	ctxlog.FromContext(ctx).Debug("Pipeline started.")
	return p
}

// Submit queues an action and returns a channel that receives its outcome.
func (p *Pipeline) Submit(a session.Action) (<-chan session.Outcome, error) {
	j := &job{action: &a, result: make(chan session.Outcome, 1)}
	if err := p.enqueue(j); err != nil {
		return nil, err
	}
	return j.result, nil
}

// Dispatch queues an action and waits for its outcome.
func (p *Pipeline) Dispatch(ctx context.Context, a session.Action) (session.Outcome, error) {
	ch, err := p.Submit(a)
	if err != nil {
		return session.Outcome{}, err
	}
	select {
	case out := <-ch:
		return out, nil
	case <-ctx.Done():
		return session.Outcome{}, ctx.Err()
	}
}

// Wait returns the final outcome of a pending action. Each token can be
// waited for once.
func (p *Pipeline) Wait(ctx context.Context, token string) (session.Outcome, error) {
	p.mu.Lock()
	ch, ok := p.pending[token]
	p.mu.Unlock()
	if !ok {
		return session.Outcome{}, fmt.Errorf("%w: %q", ErrUnknownToken, token)
	}
	select {
	case out := <-ch:
		p.mu.Lock()
		delete(p.pending, token)
		p.mu.Unlock()
		return out, nil
	case <-ctx.Done():
		return session.Outcome{}, ctx.Err()
	}
}

// Do runs fn on the worker and returns its error.
func (p *Pipeline) Do(ctx context.Context, fn func(context.Context, *session.Session) error) error {
	errCh := make(chan error, 1)
	j := &job{fn: func(ctx context.Context, s *session.Session) {
		defer func() {
			if r := recover(); r != nil {
				errCh <- fmt.Errorf("panic in pipeline job: %v", r)
			}
		}()
		errCh <- fn(ctx, s)
	}}
	if err := p.enqueue(j); err != nil {
		return err
	}
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the session snapshot, taken on the worker.
func (p *Pipeline) Snapshot(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	err := p.Do(ctx, func(ctx context.Context, s *session.Session) error {
		var err error
		snap, err = s.Snapshot(ctx)
		return err
	})
	return snap, err
}

// Close stops accepting work, lets the queued jobs finish and stops the
// worker. Pending permission checks are cancelled; their waiters get a
// failed outcome.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		<-p.done
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.permCancel()
	p.permWG.Wait()
	p.signal()
	<-p.done
	ctxlog.FromContext(p.ctx).Debug("Pipeline closed.")
}

func (p *Pipeline) enqueue(j *job) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	var superseded []*job
	if j.action != nil {
		p.queue, superseded = supersede(p.queue, j.action)
	}
	p.queue = append(p.queue, j)
	p.opts.Metrics.QueueDepth.Set(float64(len(p.queue)))
	p.mu.Unlock()

	for _, old := range superseded {
		p.opts.Metrics.Superseded.Inc()
		p.opts.Metrics.Actions.WithLabelValues(old.action.Name, session.StatusSuperseded.String()).Inc()
		old.deliver(session.Outcome{Status: session.StatusSuperseded})
	}
	p.signal()
	return nil
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest job. ok is false once the pipeline is closed and the
// queue is empty.
func (p *Pipeline) next() (j *job, ok bool) {
	for {
		p.mu.Lock()
		if len(p.queue) > 0 {
			j = p.queue[0]
			p.queue[0] = nil
			p.queue = p.queue[1:]
			p.opts.Metrics.QueueDepth.Set(float64(len(p.queue)))
			p.mu.Unlock()
			return j, true
		}
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return nil, false
		}
		<-p.wake
	}
}

// suspend registers a pending action and starts its permission check.
func (p *Pipeline) suspend(susp *session.Suspension) (string, error) {
	token := uuid.NewString()
	ch := make(chan session.Outcome, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}
	p.pending[token] = ch
	// Added under the lock so Close never waits on a group still growing.
	p.permWG.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.permWG.Done()
		logger := ctxlog.FromContext(p.permCtx).With("token", token, "target", susp.Request.Target)
		allowed, err := p.opts.Permission(p.permCtx, susp.Request)
		if err != nil {
			logger.Warn("Permission check failed; denying.", "error", err)
			allowed = false
		}
		resume := susp.Resume(allowed)
		j := &job{action: &resume, result: ch}
		if err := p.enqueue(j); err != nil {
			logger.Debug("Resumed action dropped.", "error", err)
			ch <- session.Outcome{Status: session.StatusFailed, Err: err}
		}
	}()
	return token, nil
}
