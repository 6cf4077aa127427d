// Package worker implements the bounded off-thread codec worker pool: a
// fixed-size pool of pipeline handles with queueing, exposing Take/Put
// around a semaphore-gated capacity limit, with FIFO release order for
// blocked acquirers (the
// documented behavior of golang.org/x/sync/semaphore.Weighted).
package worker

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/zipline/zipline/internal/codec"
)

// Dispatcher is a process-wide (or caller-scoped) bounded pool of codec
// pipeline workers. Up to maxWorkers pipelines may be in flight at once;
// an (maxWorkers+1)-th Acquire blocks until another Handle's Flush runs.
type Dispatcher struct {
	sem *semaphore.Weighted

	mu   sync.Mutex
	idle []*slot
}

type slot struct{}

// New returns a Dispatcher bounded at maxWorkers concurrent pipelines.
// maxWorkers < 1 is treated as 1.
func New(maxWorkers int) *Dispatcher {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Dispatcher{sem: semaphore.NewWeighted(int64(maxWorkers))}
}

// Handle is a bound, in-flight worker: init → (append)* → flush. A Handle
// must not be reused after Flush returns; the pipeline is poisoned on any
// error, per the dispatcher contract.
type Handle struct {
	d        *Dispatcher
	slot     *slot
	pipeline *codec.Pipeline
	done     bool
}

// Acquire binds a worker to a freshly assembled pipeline for the given
// direction and policy, blocking until a slot is available or ctx is
// cancelled. On error the slot (if any was taken) is released immediately.
func (d *Dispatcher) Acquire(ctx context.Context, dir codec.Direction, policy codec.Policy) (*Handle, error) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	d.mu.Lock()
	var sl *slot
	if n := len(d.idle); n > 0 {
		sl = d.idle[n-1]
		d.idle = d.idle[:n-1]
	} else {
		sl = &slot{}
	}
	d.mu.Unlock()

	pipeline, err := codec.Assemble(dir, policy)
	if err != nil {
		d.sem.Release(1)
		return nil, err
	}

	return &Handle{d: d, slot: sl, pipeline: pipeline}, nil
}

// Append drives a window of input through the bound pipeline.
func (h *Handle) Append(p []byte) ([]byte, error) {
	if h.done {
		return nil, errPoisoned
	}
	out, err := h.pipeline.Append(p)
	if err != nil {
		h.poison()
		return nil, err
	}
	return out, nil
}

// Flush finalises the pipeline and releases the worker back to the pool,
// serving the head of any FIFO-blocked Acquire calls next.
func (h *Handle) Flush() ([]byte, error) {
	if h.done {
		return nil, errPoisoned
	}
	out, err := h.pipeline.Flush()
	h.poison()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CRC32 returns the pipeline's accumulated CRC-32 (0 if unsigned/encrypted).
func (h *Handle) CRC32() uint32 {
	return h.pipeline.CRC32()
}

func (h *Handle) poison() {
	if h.done {
		return
	}
	h.done = true
	h.d.mu.Lock()
	h.d.idle = append(h.d.idle, h.slot)
	h.d.mu.Unlock()
	h.d.sem.Release(1)
}
