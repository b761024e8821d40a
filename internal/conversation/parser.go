// Package conversation provides intent parsing and user notification implementations.
package conversation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hammamikhairi/glowroutine/internal/domain"
	"github.com/hammamikhairi/glowroutine/internal/logger"
)

// Compile-time interface check.
var _ domain.IntentParser = (*KeywordParser)(nil)

// KeywordParser matches user input to intents using keywords and simple patterns.
type KeywordParser struct {
	log      *logger.Logger
	patterns []patternRule
}

type patternRule struct {
	regex  *regexp.Regexp
	intent domain.IntentType
	// group is the capture group carried as payload, 0 for none.
	group int
}

// NewKeywordParser creates a keyword-based intent parser.
func NewKeywordParser(log *logger.Logger) *KeywordParser {
	p := &KeywordParser{log: log}
	// Order matters: multi-word phrases before their single-word prefixes.
	p.patterns = []patternRule{
		{regex: regexp.MustCompile(`(?i)^(skip wait|skip timer|sw|impatient)$`), intent: domain.IntentSkipWait},
		{regex: regexp.MustCompile(`(?i)^(skip product|never|stop asking)$`), intent: domain.IntentSkipProduct},
		{regex: regexp.MustCompile(`(?i)^(skip|skip step|s)$`), intent: domain.IntentSkipStep},
		{regex: regexp.MustCompile(`(?i)^(done|d|finished|did it|applied)$`), intent: domain.IntentDone},
		{regex: regexp.MustCompile(`(?i)^(next|n|continue)$`), intent: domain.IntentNext},
		{regex: regexp.MustCompile(`(?i)^(status|where|progress|xp)$`), intent: domain.IntentStatus},
		{regex: regexp.MustCompile(`(?i)^(quit|exit|q|bye)$`), intent: domain.IntentQuit},
		{regex: regexp.MustCompile(`(?i)^(help|h|\?)$`), intent: domain.IntentHelp},
		{regex: regexp.MustCompile(`(?i)^(sections|list|routines|ls)$`), intent: domain.IntentListSections},
		{regex: regexp.MustCompile(`(?i)^(cancel|back|nevermind)$`), intent: domain.IntentCancel},
		{regex: regexp.MustCompile(`(?i)^(later|don'?t have( it)?|not yet|no)$`), intent: domain.IntentDontHave},
		{regex: regexp.MustCompile(`(?i)^(have|got it|yes|i have it)$`), intent: domain.IntentHaveProduct},
		{regex: regexp.MustCompile(`(?i)^(?:have|got|i have)\s+(.+)$`), intent: domain.IntentHaveProduct, group: 1},
		{regex: regexp.MustCompile(`(?i)^(?:defer|remind me in|in)\s+(\d+)(?:\s*days?)?$`), intent: domain.IntentDeferProduct, group: 1},
		{regex: regexp.MustCompile(`(?i)^(?:start|begin|go|run)\s+(\w+)$`), intent: domain.IntentStartSection, group: 1},
	}
	return p
}

// Parse converts user input into an intent.
func (p *KeywordParser) Parse(ctx context.Context, input string) (*domain.Intent, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return &domain.Intent{Type: domain.IntentUnknown}, nil
	}

	p.log.Debug("parsing input: %q", trimmed)

	// A bare section name starts that section.
	if name, err := domain.ParseSectionName(strings.ToLower(trimmed)); err == nil {
		return &domain.Intent{Type: domain.IntentStartSection, Payload: string(name)}, nil
	}

	// Bare numbers answer the defer prompt.
	if len(trimmed) <= 2 && isDigits(trimmed) {
		return &domain.Intent{Type: domain.IntentDeferProduct, Payload: trimmed}, nil
	}

	for _, rule := range p.patterns {
		m := rule.regex.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		p.log.Debug("matched intent: %s", rule.intent)
		intent := &domain.Intent{Type: rule.intent}
		if rule.group > 0 && rule.group < len(m) {
			intent.Payload = strings.TrimSpace(m[rule.group])
		}
		if rule.intent == domain.IntentStartSection {
			intent.Payload = strings.ToLower(intent.Payload)
		}
		return intent, nil
	}

	p.log.Debug("no match, returning unknown intent")
	return &domain.Intent{Type: domain.IntentUnknown, Payload: trimmed}, nil
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(s) > 0
}
