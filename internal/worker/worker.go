// Package worker hosts an expensive resource inside a child process and talks
// to it over a framed command/response channel on the child's stdin and
// stdout. The parent side is Worker; the child side is Child.
package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ChildCommand is the hidden subcommand that runs the child side when the
	// service binary re-executes itself.
	ChildCommand = "_worker"

	// defaultGracePeriod bounds how long Stop waits for a voluntary exit.
	defaultGracePeriod = 5 * time.Second

	maxLogLine = 1 << 20
)

// Option configures a Worker.
type Option func(*Worker)

// WithCommand overrides the child command. By default the current executable
// is re-executed with ChildCommand.
func WithCommand(path string, args ...string) Option {
	return func(w *Worker) {
		w.path = path
		w.args = args
	}
}

// WithEnv appends KEY=VALUE pairs to the child's inherited environment.
func WithEnv(env ...string) Option {
	return func(w *Worker) {
		w.env = append(w.env, env...)
	}
}

// WithGracePeriod sets how long Stop waits before killing the child.
func WithGracePeriod(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.grace = d
		}
	}
}

// WithLogger sets the parent-side logger. Child log lines are re-logged here.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = l
	}
}

// WithStatusDir sets where the shared status file is created.
func WithStatusDir(dir string) Option {
	return func(w *Worker) {
		w.statusDir = dir
	}
}

// Worker owns at most one child process. Start and Stop are idempotent and
// serialized; commands are serialized so only one is ever in flight.
type Worker struct {
	cfg       Config
	path      string
	args      []string
	env       []string
	grace     time.Duration
	statusDir string
	logger    *slog.Logger

	mu   sync.Mutex
	proc atomic.Pointer[process]
	sem  chan struct{}
}

type process struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *os.File
	reader   *bufio.Reader
	status   *sharedStatus
	exited   chan struct{}
	stopping atomic.Bool

	// Guarded by Worker.sem.
	ready   bool
	initErr error
}

func (p *process) pid() int {
	return p.cmd.Process.Pid
}

func (p *process) alive() bool {
	select {
	case <-p.exited:
		return false
	default:
		return true
	}
}

// New creates a stopped worker bound to cfg.
func New(cfg Config, opts ...Option) *Worker {
	w := &Worker{
		cfg:    cfg,
		grace:  defaultGracePeriod,
		logger: slog.New(slog.DiscardHandler),
		sem:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Config returns the configuration handed to the child.
func (w *Worker) Config() Config {
	return w.cfg
}

// IsAlive reports whether the child process is running.
func (w *Worker) IsAlive() bool {
	p := w.proc.Load()
	return p != nil && p.alive()
}

// IsProcessing reports whether the child is executing a command. A dead
// child is never processing, whatever its status word was left at.
func (w *Worker) IsProcessing() bool {
	p := w.proc.Load()
	return p != nil && p.alive() && p.status.processing()
}

// Pid returns the child's process id, or 0 when stopped.
func (w *Worker) Pid() int {
	if p := w.proc.Load(); p != nil {
		return p.pid()
	}
	return 0
}

// Start spawns the child if none is alive. It does not wait for the engine to
// initialize; the first command observes the outcome.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p := w.proc.Load(); p != nil {
		if p.alive() {
			return nil
		}
		w.proc.Store(nil)
		w.release(p)
	}

	path, args := w.path, w.args
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		path, args = exe, []string{ChildCommand}
	}

	status, err := createStatus(w.statusDir)
	if err != nil {
		return err
	}

	p, err := w.spawn(path, args, status)
	if err != nil {
		status.close(true)
		return err
	}

	w.proc.Store(p)
	spawnsTotal.Inc()
	w.logger.Info("worker started", "model", w.cfg.Model, "worker_pid", p.pid())
	return nil
}

func (w *Worker) spawn(path string, args []string, status *sharedStatus) (*process, error) {
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), w.env...)
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	// Own process group: terminal signals go to the parent, which stops the child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err == nil {
		err = cmd.Start()
	}
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdoutR,
		reader: bufio.NewReader(stdoutR),
		status: status,
		exited: make(chan struct{}),
	}
	go w.forwardLogs(p, stderrR)
	go w.watch(p)

	if err := WriteMessage(stdin, &Hello{Config: w.cfg, StatusPath: status.path()}); err != nil {
		p.stopping.Store(true)
		_ = cmd.Process.Kill()
		<-p.exited
		stdoutR.Close()
		return nil, fmt.Errorf("send hello: %w", err)
	}
	return p, nil
}

// watch reaps the child and marks it dead, whatever the cause of exit.
func (w *Worker) watch(p *process) {
	workersAlive.Inc()
	err := p.cmd.Wait()
	close(p.exited)
	workersAlive.Dec()

	if p.stopping.Load() {
		w.logger.Debug("worker process exited", "worker_pid", p.pid())
		return
	}
	w.logger.Warn("worker process exited unexpectedly", "worker_pid", p.pid(), "model", w.cfg.Model, "error", err)
}

// forwardLogs re-logs the child's JSON log lines at their original level.
func (w *Worker) forwardLogs(p *process, r io.ReadCloser) {
	defer r.Close()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for scanner.Scan() {
		w.logChildLine(p.pid(), scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		w.logger.Warn("stop forwarding worker logs", "worker_pid", p.pid(), "error", err)
		// Keep the pipe drained so the child never blocks or gets SIGPIPE.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (w *Worker) logChildLine(pid int, line []byte) {
	var entry map[string]any
	if err := json.Unmarshal(line, &entry); err != nil {
		w.logger.Info("worker output", "worker_pid", pid, "line", string(line))
		return
	}

	level := slog.LevelInfo
	if s, ok := entry["level"].(string); ok {
		_ = level.UnmarshalText([]byte(s))
	}
	msg, _ := entry["msg"].(string)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case slog.TimeKey, slog.LevelKey, slog.MessageKey:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]any, 0, 2+2*len(keys))
	attrs = append(attrs, "worker_pid", pid)
	for _, k := range keys {
		attrs = append(attrs, k, entry[k])
	}
	w.logger.Log(context.Background(), level, msg, attrs...)
}

// Stop closes the channel, waits up to the grace period for the child to
// exit, then kills it. The worker is not alive afterwards.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.proc.Swap(nil)
	if p == nil {
		return nil
	}
	return w.terminate(p)
}

// StopIfIdle stops the worker only if the child is not executing a command.
// The check and the transition to draining happen under the shared lock, so a
// command cannot begin between them; the child refuses commands that arrive
// while draining. It reports whether the worker was stopped.
func (w *Worker) StopIfIdle() (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p := w.proc.Load()
	if p == nil {
		return false, nil
	}
	if p.alive() {
		drained, err := p.status.drainIfIdle()
		if err != nil {
			return false, fmt.Errorf("check worker status: %w", err)
		}
		if !drained {
			return false, nil
		}
	}

	w.proc.Store(nil)
	return true, w.terminate(p)
}

func (w *Worker) terminate(p *process) error {
	p.stopping.Store(true)
	pid := p.pid()
	_ = p.stdin.Close()

	var err error
	grace := time.NewTimer(w.grace)
	defer grace.Stop()

	select {
	case <-p.exited:
	case <-grace.C:
		w.logger.Warn("worker did not exit in time, killing",
			"worker_pid", pid,
			"grace_period", w.grace.String(),
			"error", ErrShutdownTimeout,
		)
		forcedKillsTotal.Inc()
		if kerr := p.cmd.Process.Kill(); kerr != nil && !errors.Is(kerr, os.ErrProcessDone) {
			err = fmt.Errorf("kill worker process: %w", kerr)
		} else {
			<-p.exited
		}
	}

	w.release(p)
	w.logger.Info("worker stopped", "model", w.cfg.Model, "worker_pid", pid)
	return err
}

func (w *Worker) release(p *process) {
	p.stdout.Close()
	if err := p.status.close(true); err != nil {
		w.logger.Debug("release status file", "worker_pid", p.pid(), "error", err)
	}
}

// Call sends one command and waits for its reply, decoding a result into
// reply when it is non-nil. Callers queue behind any command in flight;
// ctx only bounds that wait, not the round-trip itself.
func (w *Worker) Call(ctx context.Context, name string, args, reply any) error {
	p := w.proc.Load()
	if p == nil || !p.alive() {
		return ErrNotRunning
	}

	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-w.sem }()

	if w.proc.Load() != p || !p.alive() {
		return ErrNotRunning
	}

	start := time.Now()
	if err := p.handshake(); err != nil {
		return err
	}

	payload, err := msgpack.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode %s args: %w", name, err)
	}
	if err := WriteMessage(p.stdin, &Request{Command: name, Args: payload}); err != nil {
		if errors.Is(err, ErrMessageTooLarge) {
			return fmt.Errorf("encode %s request: %w", name, err)
		}
		return fmt.Errorf("%w: send %s: %v", ErrChannelClosed, name, err)
	}

	var resp Response
	if err := ReadMessage(p.reader, &resp); err != nil {
		return fmt.Errorf("%w: receive %s: %v", ErrChannelClosed, name, err)
	}
	commandDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

	switch resp.Kind {
	case KindResult:
		if reply == nil {
			return nil
		}
		if err := msgpack.Unmarshal(resp.Result, reply); err != nil {
			return fmt.Errorf("decode %s result: %w", name, err)
		}
		return nil
	case KindError:
		if resp.Error == nil {
			return fmt.Errorf("%w: %s failed without detail", ErrEngine, name)
		}
		return resp.Error
	default:
		return fmt.Errorf("unexpected response kind %q for %s", resp.Kind, name)
	}
}

// handshake consumes the child's one-time initialization reply.
func (p *process) handshake() error {
	if p.ready {
		return nil
	}
	if p.initErr != nil {
		return p.initErr
	}

	var resp Response
	if err := ReadMessage(p.reader, &resp); err != nil {
		p.initErr = fmt.Errorf("%w: await ready: %v", ErrChannelClosed, err)
		return p.initErr
	}
	if resp.Kind != KindReady {
		msg := fmt.Sprintf("unexpected handshake %q", resp.Kind)
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		p.initErr = fmt.Errorf("%w: %s", ErrInitialize, msg)
		return p.initErr
	}

	p.ready = true
	return nil
}
