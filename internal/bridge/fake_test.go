package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

// fakeWorker is an in-memory Process backed by pipes. Requests written to its
// stdin are decoded onto the requests channel; tests answer with send.
type fakeWorker struct {
	pid int

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter
	stderrR *io.PipeReader
	stderrW *io.PipeWriter

	requests chan request
	exited   chan struct{}
	once     sync.Once
}

func newFakeWorker(pid int) *fakeWorker {
	fw := &fakeWorker{
		pid:      pid,
		requests: make(chan request, 64),
		exited:   make(chan struct{}),
	}
	fw.stdinR, fw.stdinW = io.Pipe()
	fw.stdoutR, fw.stdoutW = io.Pipe()
	fw.stderrR, fw.stderrW = io.Pipe()

	go func() {
		scanner := bufio.NewScanner(fw.stdinR)
		for scanner.Scan() {
			var req request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			fw.requests <- req
		}
		// stdin closed: behave like a worker reaching EOF on its input.
		fw.exit()
	}()
	return fw
}

func (fw *fakeWorker) Pid() int              { return fw.pid }
func (fw *fakeWorker) Stdin() io.WriteCloser { return fw.stdinW }
func (fw *fakeWorker) Stdout() io.Reader     { return fw.stdoutR }
func (fw *fakeWorker) Stderr() io.Reader     { return fw.stderrR }

func (fw *fakeWorker) Wait() error {
	<-fw.exited
	return nil
}

func (fw *fakeWorker) Kill() error {
	fw.exit()
	return nil
}

func (fw *fakeWorker) exit() {
	fw.once.Do(func() {
		fw.stdinR.CloseWithError(io.ErrClosedPipe)
		fw.stdoutW.Close()
		fw.stderrW.Close()
		close(fw.exited)
	})
}

// send writes one line to the worker's stdout.
func (fw *fakeWorker) send(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(fw.stdoutW, line+"\n"); err != nil {
		t.Fatalf("send %q: %v", line, err)
	}
}

// sendErr writes one line to the worker's stderr.
func (fw *fakeWorker) sendErr(t *testing.T, line string) {
	t.Helper()
	if _, err := io.WriteString(fw.stderrW, line+"\n"); err != nil {
		t.Fatalf("send stderr %q: %v", line, err)
	}
}

// next waits for the next request the worker receives.
func (fw *fakeWorker) next(t *testing.T) request {
	t.Helper()
	select {
	case req := <-fw.requests:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for request")
		return request{}
	}
}

// fakeSpawner hands out queued fake workers.
type fakeSpawner struct {
	mu      sync.Mutex
	workers []*fakeWorker
	spawned []*fakeWorker
	failErr error
	nextPID int
}

func (s *fakeSpawner) Spawn(ctx context.Context) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return nil, s.failErr
	}
	var fw *fakeWorker
	if len(s.workers) > 0 {
		fw, s.workers = s.workers[0], s.workers[1:]
	} else {
		s.nextPID++
		fw = newFakeWorker(1000 + s.nextPID)
	}
	s.spawned = append(s.spawned, fw)
	return fw, nil
}

func (s *fakeSpawner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

func (s *fakeSpawner) worker(i int) *fakeWorker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawned[i]
}

var errSpawn = errors.New("exec: python3: not found")

// callAsync runs a Call in the background.
func callAsync(ctx context.Context, d *Dispatcher, fn string, args ...any) <-chan callResult {
	ch := make(chan callResult, 1)
	go func() {
		v, err := d.Call(ctx, fn, args...)
		ch <- callResult{value: v, err: err}
	}()
	return ch
}

func await(t *testing.T, ch <-chan callResult) callResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for call result")
		return callResult{}
	}
}
