package offload

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrTimeout - an offloaded job missed its deadline; the caller reran it
	// inline.
	ErrTimeout = errors.New("offload result timeout")
	// ErrClosed - the dispatcher is shut down; jobs run inline.
	ErrClosed = errors.New("offload dispatcher closed")
)

// DefaultTimeout bounds how long a tick waits for an offloaded result
// before computing inline.
const DefaultTimeout = 250 * time.Millisecond

type request struct {
	seq uint64
	fn  func() interface{}
	out chan result
}

type result struct {
	value interface{}
	err   error
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Inline     uint64 `json:"inline"`
	Timeouts   uint64 `json:"timeouts"`
	QueueFull  uint64 `json:"queueFull"`
	Panics     uint64 `json:"panics"`
}

// Dispatcher runs pure extractor jobs on a bounded worker pool. Every path
// degrades to inline execution: no workers, a full queue, a timeout, or a
// closed dispatcher all compute the result synchronously for that call.
type Dispatcher struct {
	logger  *log.Logger
	timeout time.Duration
	queue   chan request
	done    chan struct{}
	wg      sync.WaitGroup

	available bool
	closed    atomic.Bool

	dispatched atomic.Uint64
	inline     atomic.Uint64
	timeouts   atomic.Uint64
	queueFull  atomic.Uint64
	panics     atomic.Uint64
}

// NewDispatcher starts workers goroutines with a queue bounded at the pool
// size. workers <= 0 builds a dispatcher that always computes inline, which
// is how callers run when offloading is disabled or unavailable.
func NewDispatcher(workers int, timeout time.Duration, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Dispatcher{
		logger:  logger,
		timeout: timeout,
		done:    make(chan struct{}),
	}
	if workers <= 0 {
		return d
	}

	d.available = true
	d.queue = make(chan request, workers)
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}
	logger.Printf("[Offload] %d workers started, timeout %v", workers, timeout)
	return d
}

// Available reports whether a worker pool is running.
func (d *Dispatcher) Available() bool {
	return d.available && !d.closed.Load()
}

// Do runs fn, preferring the worker pool, and returns its result. The seq
// tags the tick for log correlation; a result arriving after the timeout is
// abandoned with its channel. fn must be pure: it may not touch state owned
// by the calling goroutine.
func (d *Dispatcher) Do(ctx context.Context, seq uint64, fn func() interface{}) (interface{}, error) {
	if !d.Available() {
		d.inline.Add(1)
		return d.run(fn)
	}

	out := make(chan result, 1)
	select {
	case d.queue <- request{seq: seq, fn: fn, out: out}:
	default:
		d.queueFull.Add(1)
		d.inline.Add(1)
		return d.run(fn)
	}
	d.dispatched.Add(1)

	timer := time.NewTimer(d.timeout)
	defer timer.Stop()
	select {
	case res := <-out:
		return res.value, res.err
	case <-timer.C:
		d.timeouts.Add(1)
		d.inline.Add(1)
		d.logger.Printf("[Offload] tick %d: %v, computing inline", seq, ErrTimeout)
		return d.run(fn)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the workers. Calls in flight finish; later Do calls run
// inline.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}
	close(d.done)
	d.wg.Wait()
}

// Snapshot returns the cumulative counters.
func (d *Dispatcher) Snapshot() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Inline:     d.inline.Load(),
		Timeouts:   d.timeouts.Load(),
		QueueFull:  d.queueFull.Load(),
		Panics:     d.panics.Load(),
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for {
		select {
		case <-d.done:
			return
		case req := <-d.queue:
			var res result
			res.value, res.err = d.run(req.fn)
			select {
			case req.out <- res:
			default:
			}
		}
	}
}

// run executes fn, converting a panic into an error so one bad frame never
// takes down the loop or a worker.
func (d *Dispatcher) run(fn func() interface{}) (v interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return fn(), nil
}
