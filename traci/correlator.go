package traci

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// DefaultRequestTimeout bounds how long a single request may stay on the
// wire before it is rejected.
const DefaultRequestTimeout = 5 * time.Second

type roundtripResult struct {
	frame Frame
	err   error
}

type pendingRequest struct {
	frame  []byte
	resp   chan roundtripResult
	sentAt time.Time
	done   bool // guarded by Correlator.mu, settled exactly once
}

// Correlator enforces the protocol's only correlation mechanism: order. The
// server interleaves no correlation id, so at most one request may be on the
// wire at a time and each response belongs to the oldest unanswered request.
// The correlator is the sole writer to the connection; callers that arrive
// while a request is outstanding are queued FIFO and written one at a time.
//
// A timed-out or cancelled request that already hit the wire leaves the
// connection indeterminate: its response is still coming and must be
// absorbed and discarded before the next response can be trusted. Until that
// stray debt drains (or the connection is torn down, the recommended
// recovery), no queued request is dispatched.
type Correlator struct {
	w       io.Writer
	timeout time.Duration

	mu        sync.Mutex
	pending   *pendingRequest
	queue     []*pendingRequest
	strayDebt int
	err       error
}

// NewCorrelator wraps the connection's write side. A non-positive timeout
// falls back to DefaultRequestTimeout.
func NewCorrelator(w io.Writer, timeout time.Duration) *Correlator {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Correlator{w: w, timeout: timeout}
}

// Roundtrip writes frame (immediately if the slot is free, otherwise after
// every earlier caller has been answered) and blocks until the matching
// response arrives, the per-request timeout fires, or ctx is cancelled.
// The timeout is a total-roundtrip deadline measured from admission, so
// time spent queued behind earlier callers counts against it; a request
// that times out before reaching the wire is simply dequeued and leaves no
// stray debt.
func (c *Correlator) Roundtrip(ctx context.Context, frame []byte) (Frame, error) {
	req := &pendingRequest{frame: frame, resp: make(chan roundtripResult, 1)}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return Frame{}, err
	}
	if c.pending == nil && c.strayDebt == 0 {
		c.writeLocked(req)
	} else {
		c.queue = append(c.queue, req)
	}
	c.mu.Unlock()

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res := <-req.resp:
		return res.frame, res.err
	case <-timer.C:
		return c.abandon(req, fmt.Errorf("%w after %s", ErrTimeout, c.timeout))
	case <-ctx.Done():
		return c.abandon(req, ctx.Err())
	}
}

// abandon settles a request whose caller gave up waiting. If the request was
// already on the wire its response becomes stray debt; the protocol has no
// cancel primitive, so that response must still be received and discarded.
func (c *Correlator) abandon(req *pendingRequest, cause error) (Frame, error) {
	c.mu.Lock()
	if req.done {
		// A response (or a connection failure) raced ahead of the
		// deadline and was already delivered; honor it.
		c.mu.Unlock()
		res := <-req.resp
		return res.frame, res.err
	}
	req.done = true
	if c.pending == req {
		c.pending = nil
		c.strayDebt++
		slog.Warn("request abandoned on the wire, response will be discarded",
			"cause", cause, "stray_debt", c.strayDebt)
	} else {
		c.removeQueuedLocked(req)
	}
	c.mu.Unlock()
	return Frame{}, cause
}

// HandleFrame routes one complete response frame. Stray responses owed by
// abandoned requests are consumed and discarded first; only then is the
// outstanding request resolved and the next queued request dispatched.
func (c *Correlator) HandleFrame(f Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.strayDebt > 0 {
		c.strayDebt--
		slog.Warn("discarded stray response", "command", fmt.Sprintf("0x%02X", f.CommandID), "stray_debt", c.strayDebt)
		if c.strayDebt == 0 {
			c.dispatchLocked()
		}
		return
	}
	if c.pending == nil {
		slog.Warn("unsolicited frame with no request outstanding", "command", fmt.Sprintf("0x%02X", f.CommandID))
		return
	}

	req := c.pending
	c.pending = nil
	req.done = true
	req.resp <- roundtripResult{frame: f}
	c.dispatchLocked()
}

// Fail poisons the correlator after a transport or framing error. The
// outstanding request and every queued caller are rejected with err, and all
// future roundtrips fail fast.
func (c *Correlator) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failLocked(err)
}

// Indeterminate reports whether responses for abandoned requests are still
// owed by the wire. While true, request/response pairing cannot be trusted
// and tearing the connection down is the recommended recovery.
func (c *Correlator) Indeterminate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strayDebt > 0
}

func (c *Correlator) writeLocked(req *pendingRequest) {
	req.sentAt = time.Now()
	c.pending = req
	if _, err := c.w.Write(req.frame); err != nil {
		werr := fmt.Errorf("%w: write: %v", ErrClosed, err)
		c.failLocked(werr)
	}
}

func (c *Correlator) dispatchLocked() {
	for c.err == nil && c.pending == nil && c.strayDebt == 0 && len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		if next.done {
			continue
		}
		c.writeLocked(next)
	}
}

func (c *Correlator) failLocked(err error) {
	if c.err != nil {
		return
	}
	c.err = err
	if c.pending != nil {
		c.pending.done = true
		c.pending.resp <- roundtripResult{err: err}
		c.pending = nil
	}
	for _, req := range c.queue {
		if !req.done {
			req.done = true
			req.resp <- roundtripResult{err: err}
		}
	}
	c.queue = nil
	c.strayDebt = 0
}

func (c *Correlator) removeQueuedLocked(req *pendingRequest) {
	for i, queued := range c.queue {
		if queued == req {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return
		}
	}
}
