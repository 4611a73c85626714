package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// maxLineSize bounds a single worker output line.
const maxLineSize = 1024 * 1024

// DispatcherOpts configures a Dispatcher.
type DispatcherOpts struct {
	// CallTimeout bounds calls whose context carries no deadline. Zero
	// disables the default timeout.
	CallTimeout time.Duration
	Logger      zerolog.Logger
	// OnDesync is invoked when the response stream can no longer be trusted
	// to line up with the pending queue.
	OnDesync func(reason string)
}

// Dispatcher multiplexes concurrent callers onto one ordered worker channel.
// The worker carries no call identifiers, so each response line resolves the
// oldest pending call.
type Dispatcher struct {
	callTimeout time.Duration
	log         zerolog.Logger

	// wmu serializes enqueue+write so queue order always equals write order.
	wmu sync.Mutex

	mu       sync.Mutex
	w        io.Writer
	queue    []*pendingCall
	onDesync func(reason string)
}

type pendingCall struct {
	fn        string
	done      chan callResult
	abandoned bool
}

type callResult struct {
	value json.RawMessage
	err   error
}

// NewDispatcher creates a Dispatcher with no worker attached.
func NewDispatcher(opts DispatcherOpts) *Dispatcher {
	return &Dispatcher{
		callTimeout: opts.CallTimeout,
		log:         opts.Logger.With().Str("component", "dispatcher").Logger(),
		onDesync:    opts.OnDesync,
	}
}

// SetDesyncHandler replaces the desynchronization hook.
func (d *Dispatcher) SetDesyncHandler(fn func(reason string)) {
	d.mu.Lock()
	d.onDesync = fn
	d.mu.Unlock()
}

// Attach makes w the destination for subsequent requests.
func (d *Dispatcher) Attach(w io.Writer) {
	d.wmu.Lock()
	defer d.wmu.Unlock()
	d.mu.Lock()
	d.w = w
	d.mu.Unlock()
}

// Fail detaches the current worker and fails every pending call with err.
func (d *Dispatcher) Fail(err error) {
	d.mu.Lock()
	pending := d.queue
	d.queue = nil
	d.w = nil
	for _, pc := range pending {
		pc.done <- callResult{err: err}
	}
	d.mu.Unlock()

	if len(pending) > 0 {
		d.log.Warn().Int("calls", len(pending)).Err(err).Msg("failed pending calls")
	}
}

// Pending returns the number of calls awaiting a response, abandoned ones
// included.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Call sends fn(args...) to the worker and waits for its response line.
// String arguments are sanitized before encoding.
func (d *Dispatcher) Call(ctx context.Context, fn string, args ...any) (json.RawMessage, error) {
	payload, err := encodeRequest(fn, sanitizeArgs(args))
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok && d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}

	pc := &pendingCall{fn: fn, done: make(chan callResult, 1)}

	d.wmu.Lock()
	d.mu.Lock()
	w := d.w
	if w == nil {
		d.mu.Unlock()
		d.wmu.Unlock()
		return nil, fmt.Errorf("bridge: %s: %w", fn, ErrWorkerUnavailable)
	}
	d.queue = append(d.queue, pc)
	d.mu.Unlock()
	n, werr := w.Write(payload)
	d.wmu.Unlock()

	if werr != nil {
		d.remove(pc)
		if n > 0 {
			d.desync("partial request write")
		}
		return nil, fmt.Errorf("bridge: write %s request: %w (%v)", fn, ErrWorkerUnavailable, werr)
	}

	select {
	case r := <-pc.done:
		return r.value, r.err
	case <-ctx.Done():
	}

	d.abandon(pc)
	select {
	case r := <-pc.done:
		return r.value, r.err
	default:
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.log.Warn().Str("func", fn).Msg("call timed out")
		d.desync("call " + fn + " timed out")
		return nil, fmt.Errorf("bridge: %s: %w", fn, ErrCallTimeout)
	}
	return nil, fmt.Errorf("bridge: %s: %w", fn, ctx.Err())
}

// Serve reads worker output from r until EOF, resolving pending calls in
// FIFO order. Lines that do not start with '{' or '[' are logged as worker
// noise. When r is exhausted every remaining call fails with
// ErrWorkerUnavailable.
func (d *Dispatcher) Serve(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !isResponseLine(line) {
			if line != "" {
				d.log.Debug().Str("line", line).Msg("worker output")
			}
			continue
		}

		value, err := decodeResponse(line)
		if err != nil {
			d.log.Error().Err(err).Msg("undecodable response")
			if !d.resolve(callResult{err: err}) {
				d.desync("undecodable response with no pending call")
			}
			continue
		}
		if !d.resolve(callResult{value: value}) {
			perr := &ProtocolError{Reason: "response with no pending call", Line: line}
			d.log.Error().Err(perr).Msg("unexpected response")
			d.desync(perr.Reason)
		}
	}

	err := scanner.Err()
	d.Fail(ErrWorkerUnavailable)
	if err != nil {
		return fmt.Errorf("bridge: read worker output: %w", err)
	}
	return nil
}

// resolve pops the FIFO head and delivers res to it. Abandoned heads swallow
// the result. It reports false when the queue was empty.
//
// The pop and the send share one critical section with abandon, so a caller
// that abandons and then re-checks done either finds res or knows it was
// discarded. done is buffered and each call is popped once, so the send
// never blocks.
func (d *Dispatcher) resolve(res callResult) bool {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.mu.Unlock()
		return false
	}
	pc := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	abandoned := pc.abandoned
	if !abandoned {
		pc.done <- res
	}
	d.mu.Unlock()

	if abandoned {
		d.log.Debug().Str("func", pc.fn).Msg("discarded response for abandoned call")
	}
	return true
}

// abandon marks pc so its eventual response is consumed without delivery.
func (d *Dispatcher) abandon(pc *pendingCall) {
	d.mu.Lock()
	pc.abandoned = true
	d.mu.Unlock()
}

func (d *Dispatcher) remove(pc *pendingCall) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q == pc {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return
		}
	}
}

func (d *Dispatcher) desync(reason string) {
	d.mu.Lock()
	fn := d.onDesync
	d.mu.Unlock()
	if fn != nil {
		fn(reason)
	}
}
