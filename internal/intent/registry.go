package intent

import (
	"encoding/hex"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// RuleSpec is the declarative form of one weighted pattern.
type RuleSpec struct {
	Pattern string  `yaml:"pattern"`
	Weight  float64 `yaml:"weight"`
}

// IntentSpec declares the rules of one numbered action.
type IntentSpec struct {
	Code  int        `yaml:"code"`
	Name  string     `yaml:"name,omitempty"`
	Rules []RuleSpec `yaml:"rules"`
}

// RegistrySpec is the on-disk shape of an intents file.
type RegistrySpec struct {
	Intents []IntentSpec `yaml:"intents"`
	// Go and Quit are boolean triggers; weights are ignored.
	Go   []RuleSpec `yaml:"go"`
	Quit []RuleSpec `yaml:"quit"`
}

// Rule is a compiled, weighted pattern. Patterns match anywhere in the text.
type Rule struct {
	Pattern string
	Weight  float64
	re      *regexp.Regexp
}

// Intent is a compiled action with its rules in canonical order.
type Intent struct {
	Code  ActionCode
	Rules []Rule
}

// Registry is immutable once compiled and safe for concurrent use.
type Registry struct {
	intents     []Intent
	goRules     []Rule
	quitRules   []Rule
	fingerprint string
}

// Candidate is the best-scoring numbered intent for a transcript.
type Candidate struct {
	Code  ActionCode `json:"code"`
	Score float64    `json:"score"`
}

// LoadRegistry reads and compiles an intents YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read intents file: %w", err)
	}
	var spec RegistrySpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse intents file %s: %w", path, err)
	}
	reg, err := Compile(spec)
	if err != nil {
		return nil, fmt.Errorf("compile intents file %s: %w", path, err)
	}
	return reg, nil
}

// Compile validates spec and builds a Registry.
func Compile(spec RegistrySpec) (*Registry, error) {
	if len(spec.Intents) == 0 {
		return nil, fmt.Errorf("registry has no intents")
	}

	seen := make(map[ActionCode]bool, len(spec.Intents))
	reg := &Registry{}
	for _, is := range spec.Intents {
		code := ActionCode(is.Code)
		if !code.IsMenu() {
			return nil, fmt.Errorf("intent code %d outside 1..13", is.Code)
		}
		if seen[code] {
			return nil, fmt.Errorf("intent code %d declared twice", is.Code)
		}
		seen[code] = true
		if len(is.Rules) == 0 {
			return nil, fmt.Errorf("intent %d (%s) has no rules", is.Code, code)
		}

		rules, err := compileRules(is.Rules, true)
		if err != nil {
			return nil, fmt.Errorf("intent %d (%s): %w", is.Code, code, err)
		}
		reg.intents = append(reg.intents, Intent{Code: code, Rules: rules})
	}
	sort.Slice(reg.intents, func(i, j int) bool {
		return reg.intents[i].Code < reg.intents[j].Code
	})

	var err error
	if reg.goRules, err = compileRules(spec.Go, false); err != nil {
		return nil, fmt.Errorf("go trigger: %w", err)
	}
	if reg.quitRules, err = compileRules(spec.Quit, false); err != nil {
		return nil, fmt.Errorf("quit trigger: %w", err)
	}

	reg.fingerprint = reg.computeFingerprint()
	return reg, nil
}

func compileRules(specs []RuleSpec, weighted bool) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, rs := range specs {
		if strings.TrimSpace(rs.Pattern) == "" {
			return nil, fmt.Errorf("empty pattern")
		}
		if weighted && rs.Weight <= 0 {
			return nil, fmt.Errorf("pattern %q: weight must be positive", rs.Pattern)
		}
		re, err := regexp.Compile(rs.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", rs.Pattern, err)
		}
		rules = append(rules, Rule{Pattern: rs.Pattern, Weight: rs.Weight, re: re})
	}
	// Canonical order keeps float summation independent of declaration order.
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Pattern != rules[j].Pattern {
			return rules[i].Pattern < rules[j].Pattern
		}
		return rules[i].Weight < rules[j].Weight
	})
	return rules, nil
}

// Score sums the weights of every matching rule per numbered intent.
// Intents without a match are absent from the result.
func (r *Registry) Score(normalized string) map[ActionCode]float64 {
	scores := make(map[ActionCode]float64)
	if normalized == "" {
		return scores
	}
	for _, in := range r.intents {
		var total float64
		for _, rule := range in.Rules {
			if rule.re.MatchString(normalized) {
				total += rule.Weight
			}
		}
		if total > 0 {
			scores[in.Code] = total
		}
	}
	return scores
}

// Trigger reports a control signal carried by the text. QUIT is checked
// before GO; a matched trigger bypasses numeric scoring.
func (r *Registry) Trigger(normalized string) (ActionCode, bool) {
	if normalized == "" {
		return ActionNone, false
	}
	if anyMatch(r.quitRules, normalized) {
		return ActionQuit, true
	}
	if anyMatch(r.goRules, normalized) {
		return ActionGo, true
	}
	return ActionNone, false
}

func anyMatch(rules []Rule, s string) bool {
	for _, rule := range rules {
		if rule.re.MatchString(s) {
			return true
		}
	}
	return false
}

// Select picks the highest score. Ties go to the lowest action code.
// ok is false when scores is empty or the best score is below threshold;
// best still carries the top entry in the latter case.
func Select(scores map[ActionCode]float64, threshold float64) (best Candidate, ok bool) {
	if len(scores) == 0 {
		return Candidate{Code: ActionNone}, false
	}
	codes := make([]ActionCode, 0, len(scores))
	for c := range scores {
		codes = append(codes, c)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

	best = Candidate{Code: codes[0], Score: scores[codes[0]]}
	for _, c := range codes[1:] {
		if scores[c] > best.Score {
			best = Candidate{Code: c, Score: scores[c]}
		}
	}
	return best, best.Score >= threshold
}

// Intents returns the compiled intents ordered by code.
func (r *Registry) Intents() []Intent {
	return append([]Intent(nil), r.intents...)
}

// GoRules and QuitRules expose the trigger rules for listing.
func (r *Registry) GoRules() []Rule   { return append([]Rule(nil), r.goRules...) }
func (r *Registry) QuitRules() []Rule { return append([]Rule(nil), r.quitRules...) }

// Fingerprint identifies the compiled rule set, e.g. "blake3:9af1...".
func (r *Registry) Fingerprint() string {
	return r.fingerprint
}

func (r *Registry) computeFingerprint() string {
	var b strings.Builder
	for _, in := range r.intents {
		for _, rule := range in.Rules {
			writeRuleLine(&b, strconv.Itoa(int(in.Code)), rule)
		}
	}
	for _, rule := range r.goRules {
		writeRuleLine(&b, "go", rule)
	}
	for _, rule := range r.quitRules {
		writeRuleLine(&b, "quit", rule)
	}
	sum := blake3.Sum256([]byte(b.String()))
	return "blake3:" + hex.EncodeToString(sum[:])
}

func writeRuleLine(b *strings.Builder, key string, rule Rule) {
	b.WriteString(key)
	b.WriteByte('\t')
	b.WriteString(rule.Pattern)
	b.WriteByte('\t')
	b.WriteString(strconv.FormatFloat(rule.Weight, 'g', -1, 64))
	b.WriteByte('\n')
}
