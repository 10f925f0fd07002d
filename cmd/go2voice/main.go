package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/mattjoyce/go2voice/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "intent":
		return runIntentNoun(args)

	case "start":
		return runStart(args)
	case "history":
		return runHistory(args)
	case "doctor":
		return runDoctor(args)
	case "monitor":
		return runMonitor(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `go2voice - Korean voice commands for the Unitree Go2

Usage:
  go2voice <noun> <action> [flags]

System Commands:
  system start        Launch go2_motion and dispatch voice commands (alias: start)
  system monitor      Live dashboard over the operator API (alias: monitor)

Config Commands:
  config check        Load and validate the configuration
  config lock         Record BLAKE3 checksums of config and intents files
  config show         Print the effective configuration

Intent Commands:
  intent list         Show the command vocabulary
  intent score <text> Score an utterance without dispatching it

Other:
  history             Show recent dispatch decisions from the journal
  doctor              Preflight checks (executor binary, sudo cache, journal)
  version             Show version information
  help                Show this help message

Use 'go2voice <noun> help' for action lists.
`)
}

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: go2voice system <start|monitor>")
		return 1
	}
	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "monitor":
		return runMonitor(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: go2voice system <start|monitor>")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: go2voice config <check|lock|show>")
		return 1
	}
	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "lock":
		return runConfigLock(args[1:])
	case "show":
		return runConfigShow(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: go2voice config <check|lock|show> [--config PATH]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runIntentNoun(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: go2voice intent <list|score>")
		return 1
	}
	switch args[0] {
	case "list":
		return runIntentList(args[1:])
	case "score":
		return runIntentScore(args[1:])
	case "help", "--help", "-h":
		fmt.Println("Usage: go2voice intent <list|score> [--config PATH]")
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown intent action: %s\n", args[0])
		return 1
	}
}

// resolveConfig loads --config, or the discovered config. With allowDefaults
// a missing config falls back to Defaults.
func resolveConfig(path string, allowDefaults bool) (*config.Config, error) {
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			if allowDefaults {
				return config.Defaults(), nil
			}
			return nil, err
		}
		path = discovered
	}
	return config.Load(path)
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := newFlagSet("version")
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("go2voice %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = commit[:min(12, len(commit))]
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}
