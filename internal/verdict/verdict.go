package verdict

import (
	"regexp"
	"strings"
)

// Verdict is the canonical ternary classification of a judge's answer.
// Unknown covers unparseable or missing output and never participates in
// voting.
type Verdict string

const (
	Yes     Verdict = "YES"
	No      Verdict = "NO"
	Partial Verdict = "PARTIAL"
	Unknown Verdict = "UNKNOWN"
)

var wholeWord = regexp.MustCompile(`\b(YES|NO|PARTIAL)\b`)

// Normalize maps raw free-text judge output to a Verdict. It picks the first
// whole-word YES/NO/PARTIAL regardless of surrounding prose and treats
// "PARTIALLY" as PARTIAL. Anything else is Unknown.
func Normalize(raw string) Verdict {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if normalized == "" {
		return Unknown
	}
	if m := wholeWord.FindStringSubmatch(normalized); m != nil {
		return Verdict(m[1])
	}
	if strings.Contains(normalized, "PARTIALLY") {
		return Partial
	}
	return Unknown
}

// Known reports whether the verdict is usable for voting.
func (v Verdict) Known() bool {
	switch v {
	case Yes, No, Partial:
		return true
	}
	return false
}

// Score maps a verdict to its canonical retention score. Unknown maps to 0.5
// because an unparseable answer carries no evidence either way.
func (v Verdict) Score() float64 {
	switch v {
	case Yes:
		return 1.0
	case Partial:
		return 0.5
	case No:
		return 0.0
	}
	return 0.5
}
