package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattjoyce/go2voice/internal/api"
	"github.com/mattjoyce/go2voice/internal/asr"
	"github.com/mattjoyce/go2voice/internal/config"
	"github.com/mattjoyce/go2voice/internal/engine"
	"github.com/mattjoyce/go2voice/internal/events"
	"github.com/mattjoyce/go2voice/internal/executor"
	"github.com/mattjoyce/go2voice/internal/ingress"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/journal"
	"github.com/mattjoyce/go2voice/internal/lock"
	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/metrics"
	"github.com/mattjoyce/go2voice/internal/policy"
)

const sudoHint = "Hint: go2_motion runs under `sudo -n`. Cache credentials with `sudo -v` and start again."

func runStart(args []string) int {
	fs := newFlagSet("start")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	// stdout may carry transcripts in pipelines; logs go to stderr.
	log.SetupWriter(cfg.Service.LogLevel, cfg.Service.LogFormat, os.Stderr)
	logger := log.WithComponent("main")
	logger.Info("go2voice starting", "version", version, "config", cfg.Path)

	pidLock, err := lock.Acquire(cfg.PIDPath())
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", cfg.PIDPath(), "error", err)
		return 1
	}
	defer pidLock.Release()

	reg, err := loadRegistry(cfg)
	if err != nil {
		logger.Error("failed to load intents", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, reg, os.Stdin, os.Stderr)
}

func loadRegistry(cfg *config.Config) (*intent.Registry, error) {
	if path := cfg.IntentsPath(); path != "" {
		return intent.LoadRegistry(path)
	}
	return intent.DefaultRegistry(), nil
}

// serve runs one dispatcher session: executor first, then the transcript
// sources. It returns the process exit code. The executor is always shut
// down before serve returns.
func serve(ctx context.Context, cfg *config.Config, reg *intent.Registry, stdin io.Reader, stderr io.Writer) int {
	logger := log.WithComponent("main")
	hub := events.NewHub(256)
	m := metrics.New()

	var store *journal.Store
	if cfg.Journal.Enabled {
		var err error
		if store, err = journal.Open(ctx, cfg.JournalPath()); err != nil {
			logger.Error("failed to open journal", "path", cfg.JournalPath(), "error", err)
			return 1
		}
		defer store.Close()
	}

	ctrl := executor.New(executor.Config{
		Command:         cfg.Executor.Command,
		Dir:             cfg.Executor.Dir,
		Env:             cfg.Executor.Env,
		ReadyMarkers:    cfg.Executor.ReadyMarkers,
		LaunchTimeout:   cfg.Executor.LaunchTimeout,
		WriteTimeout:    cfg.Executor.WriteTimeout,
		ShutdownTimeout: cfg.Executor.ShutdownTimeout,
		KillGrace:       cfg.Executor.KillGrace,
		OutputTail:      cfg.Executor.OutputTail,
		MirrorOutput:    cfg.Executor.MirrorOutput,
	})
	ctrl.OnOutput(func(line string) {
		hub.Publish(events.TypeExecutorOutput, events.ExecutorOutput{Line: line})
	})
	publishState := func() {
		st := ctrl.State()
		m.SetExecutorUp(st == executor.StateReady || st == executor.StateActive)
		hub.Publish(events.TypeExecutorState, events.ExecutorState{
			State:    st.String(),
			PID:      ctrl.PID(),
			ExitCode: ctrl.ExitCode(),
		})
	}

	defer func() {
		// A fresh context: the session one is usually already cancelled.
		budget := cfg.Executor.ShutdownTimeout + cfg.Executor.KillGrace + 2*time.Second
		shutdownCtx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()
		if err := ctrl.Shutdown(shutdownCtx); err != nil {
			logger.Warn("executor shutdown", "error", err)
		}
		publishState()
		logger.Info("go2voice stopped", "executor_exit_code", ctrl.ExitCode())
	}()

	if err := ctrl.Start(ctx); err != nil {
		reportLaunchFailure(stderr, err)
		return 1
	}
	publishState()

	eng, err := engine.New(engine.Options{
		Registry: reg,
		Policy: policy.New(policy.Config{
			Cooldown:      cfg.Dispatch.Cooldown,
			GoMinInterval: cfg.Dispatch.GoMinInterval,
		}),
		Sender:    ctrl,
		Threshold: cfg.Dispatch.Threshold,
		Journal:   recorderOrNil(store),
		Events:    hub,
		Metrics:   m,
	})
	if err != nil {
		logger.Error("failed to build engine", "error", err)
		return 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	if cfg.API.Enabled {
		deps := api.Deps{
			Dispatcher:  eng,
			Executor:    ctrl,
			Events:      hub,
			Metrics:     m.Handler(),
			Fingerprint: reg.Fingerprint(),
			Version:     version,
		}
		if store != nil {
			deps.History = store
		}
		srv := api.New(api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey, Tokens: cfg.API.Tokens}, deps)
		go func() {
			if err := srv.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
	}

	if cfg.Ingress.Enabled {
		maxBody, err := config.ParseByteSize(cfg.Ingress.MaxBodySize)
		if err != nil {
			logger.Error("invalid ingress.max_body_size", "error", err)
			return 1
		}
		srv := ingress.New(ingress.Config{
			Listen:          cfg.Ingress.Listen,
			Path:            cfg.Ingress.Path,
			Secret:          cfg.Ingress.Secret,
			SignatureHeader: cfg.Ingress.SignatureHeader,
			MaxBodySize:     maxBody,
		}, eng, m)
		go func() {
			if err := srv.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("ingress: %w", err)
			}
		}()
	}

	src, closeSrc, err := openSource(runCtx, cfg, stdin)
	if err != nil {
		logger.Error("failed to start transcript source", "error", err)
		return 1
	}
	defer closeSrc()

	srcDone := make(chan error, 1)
	if src != nil {
		go func() { srcDone <- eng.Run(runCtx, src) }()
	}

	logger.Info("go2voice listening", "asr", cfg.ASR.Source, "fingerprint", reg.Fingerprint())

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case <-eng.Quit():
		logger.Info("quit command heard")
	case err := <-srcDone:
		switch {
		case err == nil:
			logger.Info("transcript source ended")
		case errors.Is(err, engine.ErrQuit):
			logger.Info("quit command heard")
		default:
			logger.Error("transcript source failed", "error", err)
			return 1
		}
	case <-ctrl.Done():
		logger.Error("go2_motion exited", "exit_code", ctrl.ExitCode(), "output", ctrl.Output())
		return 1
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		return 1
	}
	return 0
}

func reportLaunchFailure(w io.Writer, err error) {
	fmt.Fprintf(w, "go2_motion failed to start: %v\n", err)
	var lerr *executor.LaunchError
	if errors.As(err, &lerr) && len(lerr.Output) > 0 {
		fmt.Fprintln(w, "Executor output:")
		for _, line := range lerr.Output {
			fmt.Fprintf(w, "  | %s\n", line)
		}
	}
	fmt.Fprintln(w, sudoHint)
}

// recorderOrNil keeps a nil *Store from becoming a non-nil interface.
func recorderOrNil(s *journal.Store) engine.Recorder {
	if s == nil {
		return nil
	}
	return s
}

func openSource(ctx context.Context, cfg *config.Config, stdin io.Reader) (asr.Source, func(), error) {
	switch cfg.ASR.Source {
	case config.ASRSourceStdin:
		s := asr.NewLineSource("stdin", stdin)
		return s, func() { _ = s.Close() }, nil
	case config.ASRSourceCommand:
		s := asr.NewCommandSource(cfg.ASR.Command)
		if err := s.Start(ctx); err != nil {
			return nil, func() {}, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}
