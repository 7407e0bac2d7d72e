package guard

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/convoke/convoke/logging"
)

// Default blocked patterns. Matching is case-insensitive and order matters:
// the first match wins and is reported.
var defaultPatterns = []string{
	`ignore\s+(all\s+)?previous\s+instructions`,
	`disregard\s+(all\s+)?prior\s+instructions`,
	`you\s+are\s+now\s+(in\s+)?developer\s+mode`,
	`system\s*prompt\s*[:=]`,
	`<\s*/?\s*system\s*>`,
}

// Options configures a Guard.
type Options struct {
	// Enabled toggles input scanning. Output sanitization and permission
	// checks run regardless.
	Enabled bool
	// Patterns is the ordered blocked-pattern list; compiled case-insensitively.
	Patterns []string
	// SymbolRatioThreshold flags input whose non-alphanumeric, non-whitespace
	// character ratio exceeds it.
	SymbolRatioThreshold float64
	// AllowedTools, when non-empty, is an allowlist of invocable tool names.
	AllowedTools []string
	// DeniedTools always blocks, taking precedence over the allowlist.
	DeniedTools []string
	// Logger receives scan diagnostics.
	Logger logging.Logger
}

// Guard performs input/output safety checks and tool permission enforcement.
// It is immutable after construction and safe for concurrent use.
type Guard struct {
	enabled   bool
	patterns  []*regexp.Regexp
	raw       []string
	threshold float64
	allowed   map[string]struct{}
	denied    map[string]struct{}
	logger    logging.Logger
}

// New compiles the configured patterns into a Guard. Invalid patterns fail
// construction rather than being silently skipped.
func New(optFns ...func(o *Options)) (*Guard, error) {
	opts := Options{
		Enabled:              true,
		Patterns:             defaultPatterns,
		SymbolRatioThreshold: 0.5,
		Logger:               logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	g := &Guard{
		enabled:   opts.Enabled,
		raw:       opts.Patterns,
		threshold: opts.SymbolRatioThreshold,
		allowed:   toSet(opts.AllowedTools),
		denied:    toSet(opts.DeniedTools),
		logger:    logging.OrNoop(opts.Logger),
	}
	for _, p := range opts.Patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("guard: invalid blocked pattern %q: %w", p, err)
		}
		g.patterns = append(g.patterns, re)
	}
	return g, nil
}

func toSet(names []string) map[string]struct{} {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// ValidateInput scans text against the blocked patterns (first match wins)
// and the symbol-ratio heuristic. Returns *InjectionError on a hit.
func (g *Guard) ValidateInput(text string) error {
	if !g.enabled {
		return nil
	}
	for i, re := range g.patterns {
		if re.MatchString(text) {
			g.logger.Warn("guard.input.blocked", "pattern", g.raw[i])
			return &InjectionError{Pattern: g.raw[i]}
		}
	}
	if ratio := symbolRatio(text); ratio > g.threshold {
		g.logger.Warn("guard.input.suspicious", "symbol_ratio", ratio)
		return &InjectionError{
			Pattern:   fmt.Sprintf("symbol ratio %.2f exceeds threshold %.2f", ratio, g.threshold),
			Heuristic: true,
		}
	}
	return nil
}

// symbolRatio is the share of non-alphanumeric, non-whitespace runes.
func symbolRatio(text string) float64 {
	total, symbols := 0, 0
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			symbols++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(symbols) / float64(total)
}

// ValidateToolAccess enforces, in order of precedence: denylist, allowlist,
// then the per-permission flags required by the tool. Returns
// *PermissionError when access is denied.
func (g *Guard) ValidateToolAccess(toolName string, granted map[string]bool, required []string) error {
	if _, ok := g.denied[toolName]; ok {
		return &PermissionError{Tool: toolName, Reason: "tool is denylisted"}
	}
	if g.allowed != nil {
		if _, ok := g.allowed[toolName]; !ok {
			return &PermissionError{Tool: toolName, Reason: "tool is not on the allowlist"}
		}
	}
	for _, perm := range required {
		if !granted[perm] {
			return &PermissionError{Tool: toolName, Reason: fmt.Sprintf("missing permission %q", perm)}
		}
	}
	return nil
}

var (
	scriptRe  = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
	handlerRe = regexp.MustCompile(`(?i)\son\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	jsURIRe   = regexp.MustCompile(`(?i)javascript\s*:`)
)

// SanitizeOutput strips script blocks, inline event handlers and javascript:
// URIs before the text reaches a caller that renders HTML.
func (g *Guard) SanitizeOutput(text string) string {
	out := scriptRe.ReplaceAllString(text, "")
	out = handlerRe.ReplaceAllString(out, "")
	out = jsURIRe.ReplaceAllString(out, "")
	return strings.TrimSpace(out)
}
