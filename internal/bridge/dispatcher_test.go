package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDispatcher wires a Dispatcher to a fake worker and starts serving.
func newTestDispatcher(t *testing.T, timeout time.Duration, onDesync func(string)) (*Dispatcher, *fakeWorker) {
	t.Helper()
	d := NewDispatcher(DispatcherOpts{CallTimeout: timeout, Logger: zerolog.Nop(), OnDesync: onDesync})
	fw := newFakeWorker(42)
	d.Attach(fw.Stdin())
	go d.Serve(fw.Stdout())
	t.Cleanup(func() { fw.Kill() })
	return d, fw
}

func TestDispatcher_FIFOResolution(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)
	ctx := context.Background()

	chA := callAsync(ctx, d, "f", "A")
	require.Equal(t, []any{"A"}, fw.next(t).Args)
	chB := callAsync(ctx, d, "f", "B")
	require.Equal(t, []any{"B"}, fw.next(t).Args)
	chC := callAsync(ctx, d, "f", "C")
	require.Equal(t, []any{"C"}, fw.next(t).Args)

	fw.send(t, `{"r":"A"}`)
	fw.send(t, `{"r":"B"}`)
	fw.send(t, `{"r":"C"}`)

	for want, ch := range map[string]<-chan callResult{"A": chA, "B": chB, "C": chC} {
		r := await(t, ch)
		require.NoError(t, r.err)
		assert.JSONEq(t, fmt.Sprintf(`{"r":%q}`, want), string(r.value))
	}
	assert.Equal(t, 0, d.Pending())
}

func TestDispatcher_ConcurrentCallersGetOwnResponses(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)

	// Echo worker: answers each request with its own argument, in order.
	go func() {
		for req := range fw.requests {
			line, _ := json.Marshal(map[string]any{"echo": req.Args[0]})
			if _, err := fw.stdoutW.Write(append(line, '\n')); err != nil {
				return
			}
		}
	}()

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			arg := fmt.Sprintf("caller-%d", i)
			raw, err := d.Call(context.Background(), "echo", arg)
			if err != nil {
				errs <- err
				return
			}
			var got struct{ Echo string }
			if err := json.Unmarshal(raw, &got); err != nil {
				errs <- err
				return
			}
			if got.Echo != arg {
				errs <- fmt.Errorf("caller %s received %s", arg, got.Echo)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestDispatcher_LogNoiseIgnored(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)

	ch := callAsync(context.Background(), d, "f")
	fw.next(t)
	fw.send(t, "loading...")
	fw.send(t, "")
	fw.send(t, "   ")
	fw.send(t, `  {"x":1}  `)

	r := await(t, ch)
	require.NoError(t, r.err)
	assert.JSONEq(t, `{"x":1}`, string(r.value))
}

func TestDispatcher_MalformedLineFailsOldest(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)
	ctx := context.Background()

	chA := callAsync(ctx, d, "f", "A")
	fw.next(t)
	chB := callAsync(ctx, d, "f", "B")
	fw.next(t)

	fw.send(t, `{"x":`)
	fw.send(t, `{"y":2}`)

	rA := await(t, chA)
	var perr *ProtocolError
	require.ErrorAs(t, rA.err, &perr)
	assert.Equal(t, `{"x":`, perr.Line)

	rB := await(t, chB)
	require.NoError(t, rB.err)
	assert.JSONEq(t, `{"y":2}`, string(rB.value))
}

func TestDispatcher_TwoValuesOnOneLineRejected(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)

	ch := callAsync(context.Background(), d, "f")
	fw.next(t)
	fw.send(t, `{}{}`)

	var perr *ProtocolError
	require.ErrorAs(t, await(t, ch).err, &perr)
}

func TestDispatcher_UnexpectedResponseDesyncs(t *testing.T) {
	reasons := make(chan string, 1)
	_, fw := newTestDispatcher(t, 0, func(r string) { reasons <- r })

	fw.send(t, `{"stray":true}`)

	select {
	case r := <-reasons:
		assert.Contains(t, r, "no pending call")
	case <-time.After(2 * time.Second):
		t.Fatal("desync hook not called")
	}
}

func TestDispatcher_WorkerDeathFailsAllPending(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)
	ctx := context.Background()

	chA := callAsync(ctx, d, "f", "A")
	fw.next(t)
	chB := callAsync(ctx, d, "f", "B")
	fw.next(t)
	require.Equal(t, 2, d.Pending())

	fw.Kill()

	assert.ErrorIs(t, await(t, chA).err, ErrWorkerUnavailable)
	assert.ErrorIs(t, await(t, chB).err, ErrWorkerUnavailable)
	assert.Equal(t, 0, d.Pending())

	// The dead worker is detached; new calls fail fast.
	_, err := d.Call(ctx, "f")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestDispatcher_NoWorkerAttached(t *testing.T) {
	d := NewDispatcher(DispatcherOpts{Logger: zerolog.Nop()})
	_, err := d.Call(context.Background(), "f")
	assert.ErrorIs(t, err, ErrWorkerUnavailable)
}

func TestDispatcher_TimeoutAbandonsCall(t *testing.T) {
	reasons := make(chan string, 4)
	d, fw := newTestDispatcher(t, 50*time.Millisecond, func(r string) { reasons <- r })
	ctx := context.Background()

	chA := callAsync(ctx, d, "slow", "A")
	fw.next(t)

	rA := await(t, chA)
	require.ErrorIs(t, rA.err, ErrCallTimeout)
	select {
	case r := <-reasons:
		assert.Contains(t, r, "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("desync hook not called on timeout")
	}
	assert.Equal(t, 1, d.Pending(), "abandoned call stays queued")

	// The late answer to A is consumed without reaching anyone.
	fw.send(t, `{"late":"A"}`)
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, 5*time.Millisecond)

	chB := callAsync(ctx, d, "f", "B")
	fw.next(t)
	fw.send(t, `{"r":"B"}`)
	rB := await(t, chB)
	require.NoError(t, rB.err)
	assert.JSONEq(t, `{"r":"B"}`, string(rB.value))
}

// discardCounter counts "discarded response" log events.
type discardCounter struct{ n atomic.Int64 }

func (c *discardCounter) Run(_ *zerolog.Event, _ zerolog.Level, msg string) {
	if msg == "discarded response for abandoned call" {
		c.n.Add(1)
	}
}

func TestDispatcher_ResponseRacingTimeoutIsNeverLost(t *testing.T) {
	var discards discardCounter
	const timeout = 2 * time.Millisecond
	d := NewDispatcher(DispatcherOpts{CallTimeout: timeout, Logger: zerolog.New(io.Discard).Hook(&discards)})
	fw := newFakeWorker(42)
	d.Attach(fw.Stdin())
	go d.Serve(fw.Stdout())
	t.Cleanup(func() { fw.Kill() })

	// Answers land just before, at, or just after the deadline. Each one
	// must either reach its caller or be discarded for an abandoned call.
	var timeouts int64
	for i := 0; i < 200; i++ {
		ch := callAsync(context.Background(), d, "f", i)
		fw.next(t)
		time.Sleep(time.Duration(i%5) * timeout / 2)
		fw.send(t, fmt.Sprintf(`{"i":%d}`, i))

		r := await(t, ch)
		if r.err != nil {
			require.ErrorIs(t, r.err, ErrCallTimeout)
			timeouts++
		} else {
			assert.JSONEq(t, fmt.Sprintf(`{"i":%d}`, i), string(r.value))
		}
		require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, time.Millisecond)
	}

	require.Eventually(t, func() bool { return discards.n.Load() == timeouts }, time.Second, 5*time.Millisecond,
		"timeouts=%d discards=%d", timeouts, discards.n.Load())
}

func TestDispatcher_CallerDeadlineWins(t *testing.T) {
	d, fw := newTestDispatcher(t, time.Hour, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	ch := callAsync(ctx, d, "f")
	fw.next(t)

	assert.ErrorIs(t, await(t, ch).err, ErrCallTimeout)
}

func TestDispatcher_CancelAbandonsWithoutDesync(t *testing.T) {
	var desyncs int
	var mu sync.Mutex
	d, fw := newTestDispatcher(t, 0, func(string) {
		mu.Lock()
		desyncs++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	ch := callAsync(ctx, d, "f")
	fw.next(t)
	cancel()

	r := await(t, ch)
	assert.True(t, errors.Is(r.err, context.Canceled), "err = %v", r.err)
	assert.False(t, errors.Is(r.err, ErrCallTimeout))

	fw.send(t, `{"late":true}`)
	require.Eventually(t, func() bool { return d.Pending() == 0 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, desyncs)
}

func TestDispatcher_SanitizesTextArgs(t *testing.T) {
	d, fw := newTestDispatcher(t, 0, nil)

	ch := callAsync(context.Background(), d, "f", "  cafe\u0301\xed\xa0\x80\ufffd ", 3)
	req := fw.next(t)
	fw.send(t, `{}`)
	require.NoError(t, await(t, ch).err)

	require.Len(t, req.Args, 2)
	assert.Equal(t, "caf\u00e9", req.Args[0])
	assert.Equal(t, float64(3), req.Args[1])
}
