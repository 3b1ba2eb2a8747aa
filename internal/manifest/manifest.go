package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"image-bias-audit/backend/internal/judge"
)

// Load reads a sample manifest: a JSON array of evaluation requests pointing
// at generated images and the attribute cues under audit. Samples without a
// case id get a positional one so review-queue entries stay addressable.
func Load(path string) ([]judge.Sample, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var samples []judge.Sample
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("manifest %s contains no samples", path)
	}

	seen := make(map[string]struct{}, len(samples))
	for i := range samples {
		if strings.TrimSpace(samples[i].CaseID) == "" {
			samples[i].CaseID = fmt.Sprintf("case_%04d", i)
		}
		if _, dup := seen[samples[i].CaseID]; dup {
			return nil, fmt.Errorf("duplicate case id %q", samples[i].CaseID)
		}
		seen[samples[i].CaseID] = struct{}{}

		if strings.TrimSpace(samples[i].AttributeType) == "" {
			return nil, fmt.Errorf("sample %s: attribute type required", samples[i].CaseID)
		}
		if strings.TrimSpace(samples[i].AttributeValue) == "" && strings.TrimSpace(samples[i].Instruction) == "" {
			return nil, fmt.Errorf("sample %s: attribute value or edit instruction required", samples[i].CaseID)
		}
	}
	return samples, nil
}
