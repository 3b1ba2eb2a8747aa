package verdict

import (
	"encoding/json"
	"math"
	"strings"
)

// Observation is the structured judgement extracted from a judge response.
// Judges that follow the constrained-judging prompt reply with a strict JSON
// object; older or misbehaving backends reply with a bare word, which we
// still accept via Normalize.
type Observation struct {
	Presence    Verdict
	Score       float64
	Substituted bool
	Confidence  float64
	Rationale   string
}

type observationWire struct {
	IsPresent     string   `json:"is_present"`
	IsSubstituted bool     `json:"is_substituted"`
	Confidence    *float64 `json:"confidence"`
	Rationale     string   `json:"rationale"`
}

// ParseObservation interprets a raw judge reply. It never fails: malformed
// output degrades to an Unknown observation with zero confidence so the
// aggregator can renormalize over the remaining judges.
func ParseObservation(raw string) Observation {
	block := extractJSONBlock(raw)
	if block != "" {
		var wire observationWire
		if err := json.Unmarshal([]byte(block), &wire); err == nil && strings.TrimSpace(wire.IsPresent) != "" {
			presence := Normalize(wire.IsPresent)
			confidence := 0.5
			if wire.Confidence != nil {
				confidence = clamp01(*wire.Confidence)
			}
			return Observation{
				Presence:    presence,
				Score:       presence.Score(),
				Substituted: wire.IsSubstituted,
				Confidence:  confidence,
				Rationale:   strings.TrimSpace(wire.Rationale),
			}
		}
	}

	presence := Normalize(raw)
	if !presence.Known() {
		return Observation{Presence: Unknown, Score: 0.5, Confidence: 0}
	}
	return Observation{
		Presence:   presence,
		Score:      presence.Score(),
		Confidence: 0.5,
	}
}

// extractJSONBlock trims markdown fences and surrounding prose down to the
// outermost JSON object, or returns "" when none is present.
func extractJSONBlock(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.IndexRune(trimmed, '\n'); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
		if strings.HasSuffix(trimmed, "```") {
			trimmed = trimmed[:len(trimmed)-3]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(trimmed[start : end+1])
	}
	return ""
}

func clamp01(value float64) float64 {
	if math.IsNaN(value) {
		return 0
	}
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
