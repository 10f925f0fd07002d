package asr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

// recognizerStopGrace is how long a recognizer gets after SIGTERM.
const recognizerStopGrace = 2 * time.Second

// CommandSource runs an external recognizer and reads Vosk JSON lines from
// its stdout. Its stderr is logged at debug level.
type CommandSource struct {
	argv   []string
	logger *slog.Logger

	cancel   context.CancelFunc
	cmd      *exec.Cmd
	src      *JSONSource
	waitOnce sync.Once
	waitErr  error
}

func NewCommandSource(argv []string) *CommandSource {
	return &CommandSource{
		argv:   argv,
		logger: log.WithComponent("asr"),
	}
}

// Start launches the recognizer. It stops when ctx is cancelled or Close is
// called.
func (c *CommandSource) Start(ctx context.Context) error {
	if len(c.argv) == 0 {
		return errors.New("asr command is empty")
	}
	if c.cmd != nil {
		return errors.New("asr command already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, c.argv[0], c.argv[1:]...)
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = recognizerStopGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recognizer stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recognizer stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start recognizer %s: %w", c.argv[0], err)
	}

	c.logger.Info("recognizer started", "command", c.argv, "pid", cmd.Process.Pid)
	c.cancel = cancel
	c.cmd = cmd
	c.src = NewJSONSource("asr-command", stdout)
	go c.logStderr(stderr)
	return nil
}

func (c *CommandSource) Next(ctx context.Context) (transcript.Transcript, error) {
	if c.src == nil {
		return transcript.Transcript{}, errors.New("asr command not started")
	}
	t, err := c.src.Next(ctx)
	if errors.Is(err, io.EOF) {
		if werr := c.wait(); werr != nil {
			return transcript.Transcript{}, fmt.Errorf("recognizer exited: %w", werr)
		}
	}
	return t, err
}

// Close stops the recognizer and waits for it.
func (c *CommandSource) Close() error {
	if c.cmd == nil {
		return nil
	}
	c.cancel()
	c.src.Close()
	err := c.wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(err, context.Canceled) {
		// Terminated by us.
		return nil
	}
	return err
}

func (c *CommandSource) wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.cmd.Wait()
		c.logger.Info("recognizer exited", "error", c.waitErr)
	})
	return c.waitErr
}

func (c *CommandSource) logStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		c.logger.Debug("recognizer output", "stream", "stderr", "line", scanner.Text())
	}
}
