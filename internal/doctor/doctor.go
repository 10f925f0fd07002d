// Package doctor runs preflight checks before go2voice drives the robot:
// config validity, the go2_motion binary, cached sudo credentials, the
// intent vocabulary, and the journal location.
package doctor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mattjoyce/go2voice/internal/config"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/lock"
	"github.com/mattjoyce/go2voice/internal/storage"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

const minSecretLength = 16

// Doctor checks a loaded config against the host it will run on.
type Doctor struct {
	cfg *config.Config

	lookPath  func(string) (string, error)
	stat      func(string) (os.FileInfo, error)
	sudoCheck func(ctx context.Context) error
	journalFS func(string) (storage.Location, error)
	alive     func(pid int) bool
}

// New creates a Doctor for cfg.
func New(cfg *config.Config) *Doctor {
	return &Doctor{
		cfg:       cfg,
		lookPath:  exec.LookPath,
		stat:      os.Stat,
		sudoCheck: sudoCached,
		journalFS: storage.InspectJournalPath,
		alive:     processAlive,
	}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate(ctx context.Context) *Result {
	r := &Result{Valid: true}

	d.validateConfig(r)
	d.validateExecutor(ctx, r)
	d.validateIntents(r)
	d.validateASR(r)
	d.validateJournal(r)
	d.validateListeners(r)
	d.warnRunningInstance(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateConfig(r *Result) {
	if err := config.Validate(d.cfg); err != nil {
		d.addError(r, "config", "", err.Error())
	}
}

// validateExecutor checks that the motion binary exists and, when it runs
// under sudo -n, that credentials are cached. An uncached sudo makes the
// launch fail before the menu ever appears.
func (d *Doctor) validateExecutor(ctx context.Context, r *Result) {
	argv := d.cfg.Executor.Command
	if len(argv) == 0 {
		return
	}

	if _, err := d.lookPath(argv[0]); err != nil {
		d.addError(r, "executor", "executor.command", fmt.Sprintf("%s not found: %v", argv[0], err))
		return
	}

	if filepath.Base(argv[0]) == "sudo" {
		target := sudoTarget(argv[1:])
		if target == "" {
			d.addError(r, "executor", "executor.command", "sudo has no program to run")
			return
		}
		d.checkBinary(r, target)

		if !hasFlag(argv[1:], "-n") {
			d.addWarning(r, "executor", "executor.command", "sudo without -n will prompt for a password and stall the launch")
		}
		if err := d.sudoCheck(ctx); err != nil {
			d.addWarning(r, "sudo", "", "sudo credentials are not cached; run `sudo -v` before `go2voice start`")
		}
	} else {
		d.checkBinary(r, argv[0])
	}

	if len(d.cfg.Executor.ReadyMarkers) == 0 {
		d.addWarning(r, "executor", "executor.ready_markers",
			fmt.Sprintf("no ready markers; startup will always wait the full launch_timeout (%s)", d.cfg.Executor.LaunchTimeout))
	}
}

func (d *Doctor) checkBinary(r *Result, path string) {
	if _, err := d.lookPath(path); err != nil {
		// Binaries under another user's home are often unreadable to
		// LookPath but still runnable through sudo.
		info, statErr := d.stat(path)
		if statErr != nil {
			d.addError(r, "executor", "executor.command", fmt.Sprintf("executor binary %s: %v", path, statErr))
			return
		}
		if info.IsDir() || info.Mode()&0o111 == 0 {
			d.addError(r, "executor", "executor.command", fmt.Sprintf("executor binary %s is not executable", path))
		}
	}
}

// sudoTarget returns the program sudo would run: the first argument that
// is not an option.
func sudoTarget(args []string) string {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		case a == "-u" || a == "-g" || a == "-C" || a == "-D":
			i++
		case strings.HasPrefix(a, "-"):
		default:
			return a
		}
	}
	return ""
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag || (a == "--non-interactive" && flag == "-n") {
			return true
		}
		if !strings.HasPrefix(a, "-") {
			return false
		}
	}
	return false
}

func (d *Doctor) validateIntents(r *Result) {
	reg := intent.DefaultRegistry()
	if path := d.cfg.IntentsPath(); path != "" {
		loaded, err := intent.LoadRegistry(path)
		if err != nil {
			d.addError(r, "intents", "dispatch.intents_file", err.Error())
			return
		}
		reg = loaded
	}

	threshold := d.cfg.Dispatch.Threshold
	for _, in := range reg.Intents() {
		var total float64
		for _, rule := range in.Rules {
			total += rule.Weight
		}
		if total < threshold {
			d.addWarning(r, "intents", "dispatch.threshold",
				fmt.Sprintf("%s can never score above the threshold %.2f (max %.2f)", in.Code, threshold, total))
		}
	}
	if len(reg.QuitRules()) == 0 {
		d.addWarning(r, "intents", "quit", "no quit phrases; only a signal can stop the dispatcher")
	}
}

func (d *Doctor) validateASR(r *Result) {
	if d.cfg.ASR.Source != config.ASRSourceCommand || len(d.cfg.ASR.Command) == 0 {
		return
	}
	if _, err := d.lookPath(d.cfg.ASR.Command[0]); err != nil {
		d.addError(r, "asr", "asr.command", fmt.Sprintf("%s not found: %v", d.cfg.ASR.Command[0], err))
	}
}

func (d *Doctor) validateJournal(r *Result) {
	if !d.cfg.Journal.Enabled {
		return
	}
	path := d.cfg.JournalPath()
	loc, err := d.journalFS(path)
	if err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
		return
	}
	if err := loc.Err(); err != nil {
		d.addError(r, "journal", "journal.path", err.Error())
	}
}

func (d *Doctor) validateListeners(r *Result) {
	if d.cfg.API.Enabled && !loopback(d.cfg.API.Listen) {
		d.addWarning(r, "api", "api.listen", fmt.Sprintf("API listens on %s; anyone with a token can move the robot", d.cfg.API.Listen))
	}
	if d.cfg.Ingress.Enabled {
		if s := d.cfg.Ingress.Secret; s != "" && len(s) < minSecretLength {
			d.addWarning(r, "ingress", "ingress.secret", fmt.Sprintf("secret is shorter than %d characters", minSecretLength))
		}
	}
	if d.cfg.API.Enabled && d.cfg.Ingress.Enabled && d.cfg.API.Listen == d.cfg.Ingress.Listen {
		d.addError(r, "ingress", "ingress.listen", "api and ingress cannot share a listen address")
	}
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (d *Doctor) warnRunningInstance(r *Result) {
	path := d.cfg.PIDPath()
	if path == "" {
		return
	}
	pid, err := lock.Holder(path)
	if err != nil {
		return
	}
	if pid != os.Getpid() && d.alive(pid) {
		d.addWarning(r, "lock", "service.pid_file", fmt.Sprintf("go2voice may already be running (pid %d)", pid))
	}
}

func sudoCached(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "sudo", "-n", "true").Run()
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// FormatHuman returns a human-readable report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	switch {
	case r.Valid && len(r.Warnings) == 0:
		b.WriteString("All checks passed.\n")
		return b.String()
	case r.Valid:
		fmt.Fprintf(&b, "Checks passed (%d warning(s))\n", len(r.Warnings))
	default:
		fmt.Fprintf(&b, "Checks failed (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
