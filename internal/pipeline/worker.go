// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/docgrid/internal/ctxlog"
	"github.com/vk/docgrid/internal/session"
)

// job is one unit of work: an action or a function run against the session.
type job struct {
	action *session.Action
	result chan session.Outcome

	fn func(context.Context, *session.Session)
}

func (j *job) deliver(out session.Outcome) {
	if j.result != nil {
		j.result <- out
	}
}

// supersede removes the queued jobs that a would replace.
func supersede(queue []*job, a *session.Action) ([]*job, []*job) {
	var dropped []*job
	kept := queue[:0]
	for _, j := range queue {
		if j.action != nil && (j.action.Transient || j.action.Skippable) &&
			j.action.Name == a.Name && j.action.Target == a.Target {
			dropped = append(dropped, j)
			continue
		}
		kept = append(kept, j)
	}
	return kept, dropped
}

// worker is the processing loop. It is the only goroutine touching the
// session.
func (p *Pipeline) worker() {
	defer close(p.done)
	logger := ctxlog.FromContext(p.ctx)
	logger.Debug("Worker started.")
	for {
		j, ok := p.next()
		if !ok {
			break
		}
		p.run(j)
	}
	logger.Debug("Worker finished.")
}

func (p *Pipeline) run(j *job) {
	ctx := p.ctx
	if j.fn != nil {
		j.fn(ctx, p.s)
		return
	}

	a := *j.action
	logger := ctxlog.FromContext(ctx).With("action", a.Name, "target", a.Target)
	start := time.Now()
	out := p.apply(ctx, a)
	p.opts.Metrics.ActionDuration.Observe(time.Since(start).Seconds())
	p.opts.Metrics.Actions.WithLabelValues(a.Name, out.Status.String()).Inc()

	if out.Status == session.StatusPending && out.Suspension != nil {
		token, err := p.suspend(out.Suspension)
		if err != nil {
			out = session.Outcome{Status: session.StatusFailed, Err: err}
		} else {
			out.Token = token
		}
	}
	logger.Debug("Worker applied action.", "status", out.Status.String(), "recomputed", out.Recomputed)
	j.deliver(out)
}

// apply runs one action and settles afterwards. A panic fails the action
// and leaves the session as the action left it.
func (p *Pipeline) apply(ctx context.Context, a session.Action) (out session.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Worker recovered from a panic.", "action", a.Name, "panic", r)
			out = session.Outcome{Status: session.StatusFailed, Err: fmt.Errorf("panic while applying %s: %v", a.Name, r)}
		}
	}()

	out = p.s.Apply(ctx, a)
	if a.Transient || (out.Status != session.StatusAccepted && out.Status != session.StatusNoOp) {
		return out
	}
	if err := p.s.Settle(ctx); err != nil {
		return session.Outcome{Status: session.StatusFailed, Diagnostics: out.Diagnostics, Err: err}
	}
	out.Recomputed = 1
	return out
}
