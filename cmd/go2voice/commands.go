package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/go2voice/internal/config"
	"github.com/mattjoyce/go2voice/internal/doctor"
	"github.com/mattjoyce/go2voice/internal/intent"
	"github.com/mattjoyce/go2voice/internal/journal"
	"github.com/mattjoyce/go2voice/internal/transcript"
	"github.com/mattjoyce/go2voice/internal/tui"
)

const redacted = "<redacted>"

func runConfigCheck(args []string) int {
	fs := newFlagSet("config check")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := resolveConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	if _, err := loadRegistry(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Intents invalid: %v\n", err)
		return 1
	}
	fmt.Printf("Configuration valid: %s\n", cfg.Path)
	return 0
}

func runConfigLock(args []string) int {
	fs := newFlagSet("config lock")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Show hashes without writing .checksums")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	path := *configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			fmt.Fprintf(os.Stderr, "No config found: %v\n", err)
			return 1
		}
		path = discovered
	}

	// Locking must work on a config whose previous checksums are stale.
	cfg, err := config.LoadUnverified(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	report, err := config.Lock(cfg, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Lock failed: %v\n", err)
		return 1
	}

	for _, f := range report.Files {
		fmt.Printf("%s  %s\n", f.Hash, f.Key)
	}
	if report.Written {
		fmt.Printf("Wrote %s\n", report.ChecksumPath)
	} else {
		fmt.Println("Dry run: no files written")
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := newFlagSet("config show")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	data, err := yaml.Marshal(redactConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	if cfg.Path != "" {
		fmt.Printf("# %s\n", cfg.Path)
	} else {
		fmt.Println("# built-in defaults")
	}
	fmt.Print(string(data))
	return 0
}

// redactConfig returns a copy of cfg with credentials masked.
func redactConfig(cfg *config.Config) config.Config {
	out := *cfg
	if out.API.APIKey != "" {
		out.API.APIKey = redacted
	}
	if len(cfg.API.Tokens) > 0 {
		out.API.Tokens = append(out.API.Tokens[:0:0], cfg.API.Tokens...)
		for i := range out.API.Tokens {
			out.API.Tokens[i].Token = redacted
		}
	}
	if out.Ingress.Secret != "" {
		out.Ingress.Secret = redacted
	}
	return out
}

func runIntentList(args []string) int {
	fs := newFlagSet("intent list")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load intents: %v\n", err)
		return 1
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tWEIGHT\tPATTERN")
	for _, in := range reg.Intents() {
		for i, rule := range in.Rules {
			code, name := "", ""
			if i == 0 {
				code, name = fmt.Sprint(int(in.Code)), in.Code.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%.2f\t%s\n", code, name, rule.Weight, rule.Pattern)
		}
	}
	writeTriggerRows(w, intent.ActionGo, reg.GoRules())
	writeTriggerRows(w, intent.ActionQuit, reg.QuitRules())
	if err := w.Flush(); err != nil {
		return 1
	}
	fmt.Printf("\nfingerprint: %s\n", reg.Fingerprint())
	return 0
}

func writeTriggerRows(w *tabwriter.Writer, code intent.ActionCode, rules []intent.Rule) {
	for i, rule := range rules {
		name := ""
		if i == 0 {
			name = code.String()
		}
		fmt.Fprintf(w, "-\t%s\ttrigger\t%s\n", name, rule.Pattern)
	}
}

type scoreReport struct {
	Text       string           `json:"text"`
	Normalized string           `json:"normalized"`
	Trigger    string           `json:"trigger,omitempty"`
	Scores     []scoreRow       `json:"scores"`
	Best       intent.Candidate `json:"best"`
	Selected   bool             `json:"selected"`
	Threshold  float64          `json:"threshold"`
}

type scoreRow struct {
	Code  intent.ActionCode `json:"code"`
	Name  string            `json:"name"`
	Score float64           `json:"score"`
}

func runIntentScore(args []string) int {
	fs := newFlagSet("intent score")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output the score report as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintln(os.Stderr, "Usage: go2voice intent score [--config PATH] [--json] <text>")
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	reg, err := loadRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load intents: %v\n", err)
		return 1
	}

	report := scoreText(reg, text, cfg.Dispatch.Threshold)
	if *jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render report: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("text:       %s\n", report.Text)
	fmt.Printf("normalized: %s\n", report.Normalized)
	if report.Trigger != "" {
		fmt.Printf("trigger:    %s (bypasses scoring)\n", report.Trigger)
		return 0
	}
	if len(report.Scores) == 0 {
		fmt.Println("no intent matched")
		return 0
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tNAME\tSCORE")
	for _, row := range report.Scores {
		fmt.Fprintf(w, "%d\t%s\t%.2f\n", int(row.Code), row.Name, row.Score)
	}
	_ = w.Flush()
	if report.Selected {
		fmt.Printf("selected:   %s (%.2f >= %.2f)\n", report.Best.Code, report.Best.Score, report.Threshold)
	} else {
		fmt.Printf("selected:   none (best %.2f < %.2f)\n", report.Best.Score, report.Threshold)
	}
	return 0
}

func scoreText(reg *intent.Registry, text string, threshold float64) scoreReport {
	report := scoreReport{
		Text:       text,
		Normalized: transcript.Normalize(text),
		Threshold:  threshold,
		Scores:     []scoreRow{},
	}
	if code, ok := reg.Trigger(report.Normalized); ok {
		report.Trigger = code.String()
		return report
	}

	scores := reg.Score(report.Normalized)
	for code, score := range scores {
		report.Scores = append(report.Scores, scoreRow{Code: code, Name: code.String(), Score: score})
	}
	sort.Slice(report.Scores, func(i, j int) bool {
		if report.Scores[i].Score != report.Scores[j].Score {
			return report.Scores[i].Score > report.Scores[j].Score
		}
		return report.Scores[i].Code < report.Scores[j].Code
	})
	report.Best, report.Selected = intent.Select(scores, threshold)
	return report
}

func runHistory(args []string) int {
	fs := newFlagSet("history")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Number of decisions to show")
	jsonOut := fs.Bool("json", false, "Output records as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be positive")
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if _, err := os.Stat(cfg.JournalPath()); err != nil {
		fmt.Fprintf(os.Stderr, "No journal at %s\n", cfg.JournalPath())
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := journal.Open(ctx, cfg.JournalPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open journal: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.Recent(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read journal: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(records, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render records: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	if len(records) == 0 {
		fmt.Println("No decisions recorded.")
		return 0
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tHEARD\tINTENT\tACTION\tSCORE\tREASON\tSENT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%t\n",
			r.DecidedAt.Local().Format("15:04:05"),
			r.Text,
			r.Intent,
			r.Action,
			r.Score,
			r.Reason,
			r.Sent,
		)
	}
	_ = w.Flush()
	return 0
}

func runDoctor(args []string) int {
	fs := newFlagSet("doctor")
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output results as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := resolveConfig(*configPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	result := doctor.New(cfg).Validate(ctx)

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render results: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runMonitor(args []string) int {
	fs := newFlagSet("monitor")
	apiURL := fs.String("api", "http://127.0.0.1:8380", "Operator API base URL")
	apiKey := fs.String("api-key", "", "Bearer token (default $GO2VOICE_API_KEY)")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	key := *apiKey
	if key == "" {
		key = os.Getenv("GO2VOICE_API_KEY")
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "An API key is required: pass --api-key or set GO2VOICE_API_KEY")
		return 1
	}

	p := tea.NewProgram(tui.New(*apiURL, key), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Monitor failed: %v\n", err)
		return 1
	}
	return 0
}
