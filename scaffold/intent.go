package scaffold

import (
	"regexp"
	"strings"
)

// Intent is a scaffold request extracted from prompt text. Name and Features
// may be empty; the engine fills in configured defaults.
type Intent struct {
	Name     string
	Features []string
}

// intentKeywords trigger scaffolding on a case-insensitive substring match.
var intentKeywords = []string{"init", "scaffold", "create"}

// featureRules map keyword patterns to feature tags, in match order. Whole
// words only: a plain substring scan would tag "email" with the "ai" feature.
var featureRules = []struct {
	pattern *regexp.Regexp
	tag     string
}{
	{regexp.MustCompile(`\bauth`), "auth"},
	{regexp.MustCompile(`\bpayment`), "payments"},
	{regexp.MustCompile(`\bemail`), "email"},
	{regexp.MustCompile(`\bai\b`), "ai"},
}

// nameToken accepts tokens that look like a project name.
var nameToken = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// stopwords are tokens that can follow an intent keyword without being the
// project name. Feature keywords are included so "init with auth" does not
// produce a project called "auth".
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "new": true, "me": true, "my": true,
	"please": true, "project": true, "app": true, "called": true,
	"named": true, "with": true, "for": true, "and": true, "using": true,
	"auth": true, "payment": true, "payments": true, "email": true, "ai": true,
}

// Parse inspects prompt text for a scaffolding intent. It returns the parsed
// intent and true when the text names one, or a zero intent and false for a
// generic prompt. Parse is a pure function of its input.
func Parse(text string) (Intent, bool) {
	lower := strings.ToLower(text)

	matched := false
	for _, kw := range intentKeywords {
		if strings.Contains(lower, kw) {
			matched = true
			break
		}
	}
	if !matched {
		return Intent{}, false
	}

	intent := Intent{Name: extractName(text)}
	for _, rule := range featureRules {
		if rule.pattern.MatchString(lower) {
			intent.Features = append(intent.Features, rule.tag)
		}
	}
	return intent, true
}

// extractName pulls an optional project name out of a loose grammar:
// "called X", "named X", "project X", or the first name-like token after an
// intent keyword ("init my-app ..."). Returns "" when nothing plausible is
// found.
func extractName(text string) string {
	fields := strings.Fields(text)

	for i, f := range fields {
		switch strings.ToLower(trimPunct(f)) {
		case "called", "named", "project":
			if i+1 < len(fields) {
				if name := candidateName(fields[i+1]); name != "" {
					return name
				}
			}
		}
	}

	// Fall back to the token following the intent keyword itself.
	for i, f := range fields {
		lf := strings.ToLower(trimPunct(f))
		if !hasIntentKeyword(lf) {
			continue
		}
		for j := i + 1; j < len(fields); j++ {
			token := trimPunct(fields[j])
			if stopwords[strings.ToLower(token)] {
				continue
			}
			if name := candidateName(fields[j]); name != "" {
				return name
			}
			break
		}
		break
	}
	return ""
}

func hasIntentKeyword(token string) bool {
	for _, kw := range intentKeywords {
		if strings.Contains(token, kw) {
			return true
		}
	}
	return false
}

func candidateName(token string) string {
	token = trimPunct(token)
	if token == "" || stopwords[strings.ToLower(token)] {
		return ""
	}
	if !nameToken.MatchString(token) {
		return ""
	}
	return token
}

func trimPunct(token string) string {
	return strings.Trim(token, ".,!?:;\"'")
}
