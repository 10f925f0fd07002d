// Package asr adapts speech recognizers to a stream of transcripts.
package asr

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mattjoyce/go2voice/internal/log"
	"github.com/mattjoyce/go2voice/internal/transcript"
)

// Source yields transcripts until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (transcript.Transcript, error)
}

// PartialPrefix marks a partial hypothesis in plain-text input.
const PartialPrefix = "~"

type readResult struct {
	line string
	err  error
}

// lineFeed reads lines on its own goroutine so Next can honor ctx.
type lineFeed struct {
	results chan readResult
	done    chan struct{}
	once    sync.Once
}

func newLineFeed(r io.Reader) *lineFeed {
	f := &lineFeed{
		results: make(chan readResult),
		done:    make(chan struct{}),
	}
	go f.read(r)
	return f
}

func (f *lineFeed) read(r io.Reader) {
	defer close(f.results)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case f.results <- readResult{line: scanner.Text()}:
		case <-f.done:
			return
		}
	}
	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	select {
	case f.results <- readResult{err: err}:
	case <-f.done:
	}
}

func (f *lineFeed) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-f.results:
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func (f *lineFeed) close() {
	f.once.Do(func() { close(f.done) })
}

// LineSource treats each non-empty line as a final transcript. Lines
// starting with "~" are partials.
type LineSource struct {
	name string
	feed *lineFeed
	now  func() time.Time
}

func NewLineSource(name string, r io.Reader) *LineSource {
	return &LineSource{name: name, feed: newLineFeed(r), now: time.Now}
}

func (s *LineSource) Next(ctx context.Context) (transcript.Transcript, error) {
	for {
		line, err := s.feed.next(ctx)
		if err != nil {
			return transcript.Transcript{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, PartialPrefix); ok {
			if rest = strings.TrimSpace(rest); rest != "" {
				return transcript.NewPartial(s.name, rest, s.now()), nil
			}
			continue
		}
		return transcript.NewFinal(s.name, line, s.now()), nil
	}
}

// Close stops the reader goroutine. The underlying reader is not closed.
func (s *LineSource) Close() error {
	s.feed.close()
	return nil
}

// voskResult covers both Vosk result shapes.
type voskResult struct {
	Text    *string `json:"text"`
	Partial *string `json:"partial"`
}

// JSONSource reads Vosk-style JSON lines: {"text": "..."} is final,
// {"partial": "..."} is partial. Empty results (silence) are skipped.
type JSONSource struct {
	name   string
	feed   *lineFeed
	now    func() time.Time
	logger *slog.Logger
}

func NewJSONSource(name string, r io.Reader) *JSONSource {
	return &JSONSource{
		name:   name,
		feed:   newLineFeed(r),
		now:    time.Now,
		logger: log.WithComponent("asr"),
	}
}

func (s *JSONSource) Next(ctx context.Context) (transcript.Transcript, error) {
	for {
		line, err := s.feed.next(ctx)
		if err != nil {
			return transcript.Transcript{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var res voskResult
		if err := json.Unmarshal([]byte(line), &res); err != nil {
			s.logger.Warn("skipping malformed recognizer line", "line", line, "error", err)
			continue
		}
		switch {
		case res.Text != nil:
			if text := strings.TrimSpace(*res.Text); text != "" {
				return transcript.NewFinal(s.name, text, s.now()), nil
			}
		case res.Partial != nil:
			if text := strings.TrimSpace(*res.Partial); text != "" {
				return transcript.NewPartial(s.name, text, s.now()), nil
			}
		}
	}
}

func (s *JSONSource) Close() error {
	s.feed.close()
	return nil
}
