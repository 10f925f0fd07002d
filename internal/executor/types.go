package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateReady
	StateActive
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateShuttingDown:
		return "shutting_down"
	case StateTerminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Protocol lines with fixed content.
const (
	GoLine   = "/go\n"
	QuitLine = "q\n"
)

var (
	// ErrLaunchFailure marks a child that could not be started or exited
	// before it became ready. Fatal for the dispatcher.
	ErrLaunchFailure = errors.New("executor launch failed")
	// ErrWriteFailure marks a line that could not be delivered. The session
	// continues.
	ErrWriteFailure = errors.New("executor write failed")
	// ErrNotRunning is returned for writes outside the Ready/Active states.
	ErrNotRunning = errors.New("executor not running")
	// ErrShutdownTimeout reports that the child ignored the quit line and had
	// to be signalled.
	ErrShutdownTimeout = errors.New("executor shutdown timed out")
)

// LaunchError carries what the child printed before it died.
type LaunchError struct {
	// ExitCode is -1 when the process never started or was killed by a signal.
	ExitCode int
	Output   []string
	Err      error
}

func (e *LaunchError) Error() string {
	msg := fmt.Sprintf("executor launch failed (exit code %d)", e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrLaunchFailure}
	}
	return []error{ErrLaunchFailure, e.Err}
}

// Config describes how to launch and drive the executor.
type Config struct {
	// Command is argv, e.g. ["sudo", "-n", "-E", "/path/go2_motion2", "eth0"].
	Command []string
	Dir     string
	Env     []string

	// ReadyMarkers are substrings; any one on an output line means ready.
	ReadyMarkers []string

	LaunchTimeout   time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	KillGrace       time.Duration

	// OutputTail is how many recent child lines are retained.
	OutputTail int
	// MirrorOutput logs child lines at INFO instead of DEBUG.
	MirrorOutput bool
}

// Defaults for zero-valued Config fields.
const (
	DefaultLaunchTimeout   = 3 * time.Second
	DefaultWriteTimeout    = 1 * time.Second
	DefaultShutdownTimeout = 3 * time.Second
	DefaultKillGrace       = 2 * time.Second
	DefaultOutputTail      = 200
)

// DefaultReadyMarker is the banner go2_motion prints once its menu is up.
const DefaultReadyMarker = "Go2 Motion"

func (c Config) withDefaults() Config {
	if c.LaunchTimeout <= 0 {
		c.LaunchTimeout = DefaultLaunchTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.OutputTail <= 0 {
		c.OutputTail = DefaultOutputTail
	}
	if len(c.ReadyMarkers) == 0 {
		c.ReadyMarkers = []string{DefaultReadyMarker}
	}
	return c
}

func (c Config) isReadyLine(line string) bool {
	for _, m := range c.ReadyMarkers {
		if m != "" && strings.Contains(line, m) {
			return true
		}
	}
	return false
}
