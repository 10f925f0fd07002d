package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/log"
)

// joinTimeout bounds how long Shutdown waits for the drain and writer
// goroutines once the process is gone.
const joinTimeout = time.Second

type writeReq struct {
	line   string
	result chan error
}

// Controller drives one executor session.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	state    State
	cmd      *exec.Cmd
	exitCode int
	exitErr  error

	sendMu sync.Mutex
	writes chan writeReq

	out        *os.File
	tail       *lineTail
	onOutput   func(string)
	ready      chan struct{}
	readyOnce  sync.Once
	exited     chan struct{}
	drained    chan struct{}
	stopWriter chan struct{}
	writerDone chan struct{}

	shutdownOnce sync.Once
}

// New creates a Controller that has not been started.
func New(cfg Config) *Controller {
	cfg = cfg.withDefaults()
	return &Controller{
		cfg:        cfg,
		logger:     log.WithComponent("executor"),
		state:      StateNotStarted,
		exitCode:   -1,
		writes:     make(chan writeReq),
		tail:       newLineTail(cfg.OutputTail),
		ready:      make(chan struct{}),
		exited:     make(chan struct{}),
		drained:    make(chan struct{}),
		stopWriter: make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

// OnOutput registers a callback for every child output line. Must be called
// before Start.
func (c *Controller) OnOutput(fn func(line string)) {
	c.onOutput = fn
}

// Start spawns the executor and waits until it prints a ready marker, exits,
// or the launch timeout passes. A timeout with the process still alive is
// treated as ready.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNotStarted {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("executor already started (state %s)", st)
	}
	c.state = StateLaunching
	c.mu.Unlock()

	if len(c.cfg.Command) == 0 {
		c.setState(StateTerminated)
		return &LaunchError{ExitCode: -1, Err: errors.New("executor command is empty")}
	}

	cmd := exec.Command(c.cfg.Command[0], c.cfg.Command[1:]...)
	cmd.Dir = c.cfg.Dir
	cmd.Env = append(os.Environ(), c.cfg.Env...)
	// Own process group: a terminal ^C reaches only us, and we decide when
	// the child hears about it.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		c.setState(StateTerminated)
		return &LaunchError{ExitCode: -1, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	pr, pw, err := os.Pipe()
	if err != nil {
		_ = stdin.Close()
		c.setState(StateTerminated)
		return &LaunchError{ExitCode: -1, Err: fmt.Errorf("output pipe: %w", err)}
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	c.logger.Info("launching executor", "command", c.cfg.Command)
	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		_ = stdin.Close()
		c.setState(StateTerminated)
		return &LaunchError{ExitCode: -1, Err: fmt.Errorf("start %s: %w", c.cfg.Command[0], err)}
	}
	// The child holds its own copy of the write end.
	_ = pw.Close()

	c.mu.Lock()
	c.cmd = cmd
	c.out = pr
	c.mu.Unlock()

	go c.drain(pr)
	go c.wait()
	go c.writer(stdin)

	timer := time.NewTimer(c.cfg.LaunchTimeout)
	defer timer.Stop()

	select {
	case <-c.ready:
		c.setState(StateReady)
		c.logger.Info("executor ready", "pid", cmd.Process.Pid)
		return nil
	case <-c.exited:
		return c.launchFailed(nil)
	case <-timer.C:
		c.setState(StateReady)
		c.logger.Warn("no ready marker before launch timeout, proceeding",
			"timeout", c.cfg.LaunchTimeout, "markers", c.cfg.ReadyMarkers)
		return nil
	case <-ctx.Done():
		c.signal(syscall.SIGKILL)
		<-c.exited
		return c.launchFailed(ctx.Err())
	}
}

// launchFailed tears down after the child exited during launch.
func (c *Controller) launchFailed(cause error) error {
	c.join()
	c.setState(StateTerminated)

	c.mu.Lock()
	code, exitErr := c.exitCode, c.exitErr
	c.mu.Unlock()

	if cause == nil {
		cause = exitErr
	}
	if cause == nil {
		cause = errors.New("exited before ready marker")
	}
	lerr := &LaunchError{ExitCode: code, Output: c.tail.snapshot(), Err: cause}
	c.logger.Error("executor launch failed", "exit_code", code, "error", cause)
	return lerr
}

// Send writes the menu line for code. Only menu actions are valid.
func (c *Controller) Send(ctx context.Context, code intent.ActionCode) error {
	if !code.IsMenu() {
		return fmt.Errorf("action %s is not a menu action", code)
	}
	return c.send(ctx, fmt.Sprintf("%d\n", int(code)))
}

// SendGo writes the "/go" trigger line.
func (c *Controller) SendGo(ctx context.Context) error {
	return c.send(ctx, GoLine)
}

func (c *Controller) send(ctx context.Context, line string) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	switch st := c.State(); st {
	case StateReady, StateActive:
	default:
		return fmt.Errorf("%w: %w (state %s)", ErrWriteFailure, ErrNotRunning, st)
	}

	if err := c.writeLine(ctx, line); err != nil {
		c.logger.Warn("executor write failed", "line", trimNewline(line), "error", err)
		return err
	}

	c.mu.Lock()
	if c.state == StateReady {
		c.state = StateActive
	}
	c.mu.Unlock()
	c.logger.Debug("line sent", "line", trimNewline(line))
	return nil
}

// writeLine hands line to the writer goroutine, bounded by the write timeout.
func (c *Controller) writeLine(ctx context.Context, line string) error {
	select {
	case <-c.exited:
		return fmt.Errorf("%w: executor exited", ErrWriteFailure)
	default:
	}

	timer := time.NewTimer(c.cfg.WriteTimeout)
	defer timer.Stop()

	req := writeReq{line: line, result: make(chan error, 1)}
	select {
	case c.writes <- req:
	case <-c.exited:
		return fmt.Errorf("%w: executor exited", ErrWriteFailure)
	case <-timer.C:
		return fmt.Errorf("%w: writer busy after %s", ErrWriteFailure, c.cfg.WriteTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteFailure, ctx.Err())
	}

	select {
	case err := <-req.result:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWriteFailure, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: write not completed within %s", ErrWriteFailure, c.cfg.WriteTimeout)
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrWriteFailure, ctx.Err())
	}
}

// Shutdown ends the session: quit line, then SIGTERM, then SIGKILL. It is
// safe to call more than once; later calls return nil.
func (c *Controller) Shutdown(ctx context.Context) error {
	var (
		first bool
		err   error
	)
	c.shutdownOnce.Do(func() {
		first = true
		err = c.shutdown(ctx)
	})
	if !first {
		return nil
	}
	return err
}

func (c *Controller) shutdown(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateNotStarted, StateTerminated:
		c.state = StateTerminated
		c.mu.Unlock()
		return nil
	}
	c.state = StateShuttingDown
	c.mu.Unlock()
	defer c.setState(StateTerminated)

	c.logger.Info("shutting down executor")
	if err := c.writeLine(ctx, QuitLine); err != nil {
		c.logger.Debug("quit line not delivered", "error", err)
	}

	escalated := false
	graceful := time.NewTimer(c.cfg.ShutdownTimeout)
	defer graceful.Stop()

	select {
	case <-c.exited:
	case <-graceful.C:
		escalated = true
	case <-ctx.Done():
		escalated = true
	}

	if escalated {
		c.logger.Warn("executor did not exit after quit, sending SIGTERM", "timeout", c.cfg.ShutdownTimeout)
		c.signal(syscall.SIGTERM)

		grace := time.NewTimer(c.cfg.KillGrace)
		defer grace.Stop()

		select {
		case <-c.exited:
			c.logger.Info("executor exited after SIGTERM")
		case <-grace.C:
			c.logger.Warn("executor did not exit after SIGTERM, sending SIGKILL")
			c.signal(syscall.SIGKILL)
			<-c.exited
		}
	}

	c.join()

	c.mu.Lock()
	code := c.exitCode
	c.mu.Unlock()
	c.logger.Info("executor terminated", "exit_code", code, "escalated", escalated)

	if escalated {
		return ErrShutdownTimeout
	}
	return nil
}

// signal sends sig to the child's process group, falling back to the
// process itself.
func (c *Controller) signal(sig syscall.Signal) {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err == nil {
		return
	}
	if err := cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		c.logger.Error("failed to signal executor", "signal", sig.String(), "error", err)
	}
}

// join stops the writer and waits for output to drain. A grandchild that
// keeps the output pipe open is cut off after joinTimeout.
func (c *Controller) join() {
	select {
	case <-c.stopWriter:
	default:
		close(c.stopWriter)
	}

	select {
	case <-c.writerDone:
	case <-time.After(joinTimeout):
		c.logger.Warn("executor writer did not stop")
	}

	select {
	case <-c.drained:
	case <-time.After(joinTimeout):
		c.mu.Lock()
		out := c.out
		c.mu.Unlock()
		if out != nil {
			_ = out.Close()
		}
		<-c.drained
	}
}

func (c *Controller) drain(r *os.File) {
	defer close(c.drained)
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		c.tail.add(line)
		if c.cfg.MirrorOutput {
			c.logger.Info("executor output", "stream", "child", "line", line)
		} else {
			c.logger.Debug("executor output", "stream", "child", "line", line)
		}
		if c.onOutput != nil {
			c.onOutput(line)
		}
		if c.cfg.isReadyLine(line) {
			c.readyOnce.Do(func() { close(c.ready) })
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		c.logger.Warn("executor output read failed", "error", err)
	}
}

func (c *Controller) wait() {
	err := c.cmd.Wait()

	c.mu.Lock()
	c.exitErr = err
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
	}
	st, code := c.state, c.exitCode
	c.mu.Unlock()

	if st == StateReady || st == StateActive {
		c.logger.Warn("executor exited unexpectedly", "exit_code", code, "error", err)
	}

	close(c.exited)
}

func (c *Controller) writer(stdin io.WriteCloser) {
	defer close(c.writerDone)
	defer stdin.Close()

	w := bufio.NewWriter(stdin)
	for {
		select {
		case req := <-c.writes:
			_, err := w.WriteString(req.line)
			if err == nil {
				err = w.Flush()
			}
			if err != nil {
				// Drop whatever is left; the next line starts clean.
				w.Reset(stdin)
			}
			req.result <- err
		case <-c.stopWriter:
			return
		}
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done is closed when the child exits. It never closes if Start failed
// before the process was spawned.
func (c *Controller) Done() <-chan struct{} {
	return c.exited
}

// ExitCode is -1 until the child has exited.
func (c *Controller) ExitCode() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode
}

// PID returns 0 before Start.
func (c *Controller) PID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// Output returns the retained tail of child output, oldest first.
func (c *Controller) Output() []string {
	return c.tail.snapshot()
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}
