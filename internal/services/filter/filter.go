package filter

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/enums"
	"github.com/muhammedyaseenk/fuzzy-octo-barnacle/internal/domain/model"
)

const (
	FamilyInstantBlock = "instant_block"
	FamilyPII          = "pii"
	FamilyRedirect     = "redirect"

	RuleCardNumber = "pii.card_number"
	RuleSSN        = "pii.ssn"
	RuleCredential = "pii.credential"
	RuleRedirectTo = "redirect.app"
	RuleRedirectCT = "redirect.phrase"
)

var (
	nonTokenChars = regexp.MustCompile(`[^\pL\pN\s]+`)
	cardCandidate = regexp.MustCompile(`\b(?:\d[ -]?){12,18}\d\b`)
	ssnPattern    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	phonePattern  = regexp.MustCompile(`(?:^|[^\d])(\+?\d[\d\s().-]{8,16}\d)`)
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	credentialKV  = regexp.MustCompile(`\b(password|passwd|pwd|pin)\s*[:=]\s*\S+`)
)

// Config holds the rule sets. Empty fields fall back to the built-in lists.
type Config struct {
	InstantBlock      map[string][]string
	CredentialPhrases []string
	RedirectApps      []string
	RedirectPhrases   []string
	SuspiciousGroups  map[string][]string
	SuspiciousMin     int
}

type termSet struct {
	name  string
	terms []string
}

type Filter struct {
	instant       []termSet
	credentials   []string
	redirectApps  []string
	redirectTexts []string
	suspicious    []termSet
	suspiciousMin int
}

func New(cfg Config) (*Filter, error) {
	if len(cfg.InstantBlock) == 0 {
		cfg.InstantBlock = defaultInstantBlock()
	}
	if len(cfg.CredentialPhrases) == 0 {
		cfg.CredentialPhrases = defaultCredentialPhrases()
	}
	if len(cfg.RedirectApps) == 0 {
		cfg.RedirectApps = defaultRedirectApps()
	}
	if len(cfg.RedirectPhrases) == 0 {
		cfg.RedirectPhrases = defaultRedirectPhrases()
	}
	if len(cfg.SuspiciousGroups) == 0 {
		cfg.SuspiciousGroups = defaultSuspiciousGroups()
	}
	if cfg.SuspiciousMin <= 0 {
		cfg.SuspiciousMin = 2
	}

	f := &Filter{
		instant:       orderedSets(cfg.InstantBlock, instantBlockOrder),
		credentials:   normalizeTerms(cfg.CredentialPhrases),
		redirectApps:  normalizeTerms(cfg.RedirectApps),
		redirectTexts: normalizeTerms(cfg.RedirectPhrases),
		suspicious:    orderedSets(cfg.SuspiciousGroups, suspiciousOrder),
		suspiciousMin: cfg.SuspiciousMin,
	}
	for _, set := range f.instant {
		if len(set.terms) == 0 {
			return nil, fmt.Errorf("instant block category %q has no terms", set.name)
		}
	}
	return f, nil
}

// Evaluate runs the rule families in priority order and stops at the first
// harmful match.
func (f *Filter) Evaluate(text string) model.Verdict {
	padded := " " + normalize(text) + " "

	for _, set := range f.instant {
		if term, ok := firstMatch(padded, set.terms); ok {
			return harmful(FamilyInstantBlock+"."+set.name, "matched "+set.name+" term", enums.SeverityHarmful, term)
		}
	}

	if card, luhn := findCardNumber(text); card != "" {
		reason := "card-shaped number shared"
		if luhn {
			reason = "card number shared"
		}
		return harmful(RuleCardNumber, reason, enums.SeverityHigh, maskDigits(card))
	}
	if ssn := ssnPattern.FindString(text); ssn != "" {
		return harmful(RuleSSN, "national id shared", enums.SeverityHigh, maskDigits(ssn))
	}
	if m := credentialKV.FindStringSubmatch(strings.ToLower(text)); m != nil {
		return harmful(RuleCredential, "credential sharing", enums.SeverityHigh, m[1]+"=***")
	}
	if term, ok := firstMatch(padded, f.credentials); ok {
		return harmful(RuleCredential, "credential sharing", enums.SeverityHigh, term)
	}

	if term, ok := firstMatch(padded, f.redirectApps); ok {
		return harmful(RuleRedirectTo, "off-platform redirection", enums.SeverityMedium, term)
	}
	if term, ok := firstMatch(padded, f.redirectTexts); ok {
		return harmful(RuleRedirectCT, "off-platform redirection", enums.SeverityMedium, term)
	}

	signals := f.signals(text, padded)
	if len(signals) >= f.suspiciousMin {
		return model.Verdict{
			Outcome: model.FilterSuspicious,
			Reason:  "suspicious signals: " + strings.Join(signals, ","),
			Signals: signals,
		}
	}
	return model.Verdict{Outcome: model.FilterClean, Signals: signals}
}

func (f *Filter) signals(raw, padded string) []string {
	out := make([]string, 0, len(f.suspicious)+2)
	for _, set := range f.suspicious {
		if _, ok := firstMatch(padded, set.terms); ok {
			out = append(out, set.name)
		}
	}
	if hasPhone(raw) {
		out = append(out, SignalPhone)
	}
	if emailPattern.MatchString(raw) {
		out = append(out, SignalEmail)
	}
	return out
}

func harmful(rule, reason string, severity enums.Severity, matched string) model.Verdict {
	return model.Verdict{
		Outcome:  model.FilterHarmful,
		Rule:     rule,
		Reason:   reason,
		Severity: severity,
		Signals:  []string{matched},
	}
}

func firstMatch(padded string, terms []string) (string, bool) {
	for _, term := range terms {
		if strings.Contains(padded, " "+term+" ") {
			return term, true
		}
	}
	return "", false
}

// findCardNumber reports the first 13 to 19 digit run, separators allowed.
// The checksum only refines the reason; a run after "+" is a phone number.
func findCardNumber(text string) (string, bool) {
	for _, loc := range cardCandidate.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && text[loc[0]-1] == '+' {
			continue
		}
		candidate := text[loc[0]:loc[1]]
		digits := onlyDigits(candidate)
		if len(digits) >= 13 && len(digits) <= 19 {
			return candidate, luhnValid(digits)
		}
	}
	return "", false
}

func hasPhone(text string) bool {
	for _, m := range phonePattern.FindAllStringSubmatch(text, -1) {
		n := len(onlyDigits(m[1]))
		if n >= 10 && n <= 15 {
			return true
		}
	}
	return false
}

func luhnValid(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// maskDigits keeps the last four digits so violation excerpts never store full numbers.
func maskDigits(s string) string {
	digits := onlyDigits(s)
	if len(digits) <= 4 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}

func normalize(text string) string {
	// a Chain keeps state, so it must not be shared across goroutines
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	bare := strings.ToLower(nonTokenChars.ReplaceAllString(text, " "))
	out, _, err := transform.String(fold, bare)
	if err != nil {
		out = bare
	}
	return strings.Join(strings.Fields(out), " ")
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	seen := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		n := normalize(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// orderedSets returns the known names in fixed order, then any custom names sorted.
func orderedSets(in map[string][]string, order []string) []termSet {
	out := make([]termSet, 0, len(in))
	used := make(map[string]struct{}, len(in))
	for _, name := range order {
		if terms, ok := in[name]; ok {
			out = append(out, termSet{name: name, terms: normalizeTerms(terms)})
			used[name] = struct{}{}
		}
	}
	extra := make([]string, 0)
	for name := range in {
		if _, ok := used[name]; !ok {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, termSet{name: name, terms: normalizeTerms(in[name])})
	}
	return out
}
