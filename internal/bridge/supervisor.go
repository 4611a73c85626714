package bridge

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
	"gorm.io/gorm"
)

// SupervisorOpts configures a Supervisor.
type SupervisorOpts struct {
	Spawner    Spawner
	Dispatcher *Dispatcher
	// DB, when set, receives the worker's stderr as WorkerLog rows.
	DB     *gorm.DB
	Logger zerolog.Logger

	RestartBackoff time.Duration // default 1s
	MaxBackoff     time.Duration // default 30s
	StableAfter    time.Duration // uptime that resets the backoff; default 1m
	StopTimeout    time.Duration // grace period before Stop kills; default 10s
	FlushInterval  time.Duration // default DefaultFlushInterval
}

// Status is a point-in-time view of the supervised worker.
type Status struct {
	Alive      bool `json:"alive"`
	PID        int  `json:"pid"`
	Generation int  `json:"generation"`
	Restarts   int  `json:"restarts"`
	Pending    int  `json:"pending"`
}

// Supervisor owns the lifecycle of the single long-lived worker: it starts
// it, pumps its output into the Dispatcher, captures stderr and respawns it
// with exponential backoff when it exits unexpectedly.
type Supervisor struct {
	spawner    Spawner
	dispatcher *Dispatcher
	db         *gorm.DB
	log        zerolog.Logger

	restartBackoff time.Duration
	maxBackoff     time.Duration
	stableAfter    time.Duration
	stopTimeout    time.Duration
	flushInterval  time.Duration

	mu         sync.Mutex
	proc       Process
	alive      bool
	generation int
	restarts   int
	started    bool
	stopping   bool

	stopCh chan struct{}
	done   chan struct{}
}

// NewSupervisor validates opts and returns a Supervisor. The dispatcher's
// desync hook is pointed at Restart.
func NewSupervisor(opts SupervisorOpts) (*Supervisor, error) {
	if opts.Spawner == nil {
		return nil, fmt.Errorf("bridge: spawner is required")
	}
	if opts.Dispatcher == nil {
		return nil, fmt.Errorf("bridge: dispatcher is required")
	}

	s := &Supervisor{
		spawner:        opts.Spawner,
		dispatcher:     opts.Dispatcher,
		db:             opts.DB,
		log:            opts.Logger.With().Str("component", "supervisor").Logger(),
		restartBackoff: opts.RestartBackoff,
		maxBackoff:     opts.MaxBackoff,
		stableAfter:    opts.StableAfter,
		stopTimeout:    opts.StopTimeout,
		flushInterval:  opts.FlushInterval,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
	if s.restartBackoff <= 0 {
		s.restartBackoff = time.Second
	}
	if s.maxBackoff < s.restartBackoff {
		s.maxBackoff = 30 * time.Second
		if s.maxBackoff < s.restartBackoff {
			s.maxBackoff = s.restartBackoff
		}
	}
	if s.stableAfter <= 0 {
		s.stableAfter = time.Minute
	}
	if s.stopTimeout <= 0 {
		s.stopTimeout = 10 * time.Second
	}
	if s.flushInterval <= 0 {
		s.flushInterval = DefaultFlushInterval
	}

	opts.Dispatcher.SetDesyncHandler(s.Restart)
	return s, nil
}

// Start spawns the first worker and returns once it is running. A failure to
// spawn is returned to the caller; later exits are handled by respawning
// until ctx is cancelled or Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("bridge: supervisor already started")
	}
	s.started = true
	s.mu.Unlock()

	proc, err := s.spawner.Spawn(ctx)
	if err != nil {
		close(s.done)
		return fmt.Errorf("bridge: start worker: %w", err)
	}
	s.attach(proc)

	go s.run(ctx, proc)
	return nil
}

// run watches the current worker and respawns it after unexpected exits.
func (s *Supervisor) run(ctx context.Context, proc Process) {
	defer close(s.done)

	backoff := s.restartBackoff
	for {
		startedAt := time.Now()
		waitErr := s.watch(ctx, proc)

		s.mu.Lock()
		s.alive = false
		stopping := s.stopping
		s.mu.Unlock()
		s.dispatcher.Fail(ErrWorkerUnavailable)

		if stopping || ctx.Err() != nil {
			s.log.Info().Int("pid", proc.Pid()).Msg("worker stopped")
			return
		}

		s.log.Warn().Int("pid", proc.Pid()).AnErr("exit", waitErr).
			Dur("uptime", time.Since(startedAt)).Msg("worker exited unexpectedly")
		if time.Since(startedAt) >= s.stableAfter {
			backoff = s.restartBackoff
		}

		for {
			s.log.Info().Dur("backoff", backoff).Msg("restarting worker")
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}

			next, err := s.spawner.Spawn(ctx)
			if err != nil {
				s.log.Error().Err(err).Msg("respawn worker")
				continue
			}
			proc = next
			break
		}

		s.mu.Lock()
		if s.stopping {
			s.mu.Unlock()
			proc.Kill()
			s.drain(proc)
			return
		}
		s.restarts++
		s.mu.Unlock()
		s.attach(proc)
	}
}

// attach records proc as the live worker and routes requests to its stdin.
func (s *Supervisor) attach(proc Process) {
	s.mu.Lock()
	s.proc = proc
	s.alive = true
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.dispatcher.Attach(proc.Stdin())
	s.log.Info().Int("pid", proc.Pid()).Int("generation", gen).Msg("worker started")
}

// watch pumps stdout into the dispatcher and stderr into the logs, then
// reaps the process.
func (s *Supervisor) watch(ctx context.Context, proc Process) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	var wg conc.WaitGroup
	wg.Go(func() {
		if err := s.dispatcher.Serve(proc.Stdout()); err != nil {
			s.log.Error().Err(err).Msg("worker output stream broken")
			proc.Kill()
		}
	})
	wg.Go(func() {
		s.captureStderr(ctx, proc, gen)
	})
	wg.Wait()

	return proc.Wait()
}

// captureStderr logs each stderr line and, when a DB is configured, persists
// the stream as WorkerLog rows.
func (s *Supervisor) captureStderr(ctx context.Context, proc Process, gen int) {
	var lw *logWriter
	if s.db != nil {
		lw = newLogWriter(s.db, proc.Pid(), gen, "err")
		flushCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		startFlusher(flushCtx, lw, s.flushInterval)
		defer func() {
			if err := lw.Close(); err != nil {
				s.log.Error().Err(err).Msg("flush worker log")
			}
		}()
	}

	scanner := bufio.NewScanner(proc.Stderr())
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		s.log.Warn().Int("pid", proc.Pid()).Str("stream", "stderr").Msg(line)
		if lw != nil {
			lw.Write([]byte(line + "\n"))
		}
	}
}

// drain reads a process's streams to EOF and reaps it.
func (s *Supervisor) drain(proc Process) {
	var wg conc.WaitGroup
	wg.Go(func() { drainReader(proc.Stdout()) })
	wg.Go(func() { drainReader(proc.Stderr()) })
	wg.Wait()
	proc.Wait()
}

// Restart kills the current worker so the supervisor respawns it. It is a
// no-op when no worker is alive.
func (s *Supervisor) Restart(reason string) {
	s.mu.Lock()
	proc, alive := s.proc, s.alive
	s.mu.Unlock()
	if !alive || proc == nil {
		return
	}

	s.log.Warn().Int("pid", proc.Pid()).Str("reason", reason).Msg("restarting worker")
	if err := proc.Kill(); err != nil {
		s.log.Error().Err(err).Msg("kill worker")
	}
}

// Stop closes the worker's stdin and waits for it to exit, killing it if it
// outlives the stop timeout or ctx. No respawn happens after Stop.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	proc, alive := s.proc, s.alive
	s.mu.Unlock()
	close(s.stopCh)

	if alive && proc != nil {
		if err := proc.Stdin().Close(); err != nil {
			s.log.Debug().Err(err).Msg("close worker stdin")
		}
	}

	timer := time.NewTimer(s.stopTimeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	if proc != nil {
		s.log.Warn().Int("pid", proc.Pid()).Msg("worker did not exit, killing")
		proc.Kill()
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("bridge: stop worker: %w", ctx.Err())
	}
}

// Done is closed once the supervisor has stopped managing workers.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Status reports the current worker state.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	st := Status{
		Alive:      s.alive,
		Generation: s.generation,
		Restarts:   s.restarts,
	}
	if s.alive && s.proc != nil {
		st.PID = s.proc.Pid()
	}
	s.mu.Unlock()
	st.Pending = s.dispatcher.Pending()
	return st
}
