package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func tempManifest(t *testing.T, value any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.json")
	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := tempManifest(t, []map[string]string{
		{"case_id": "case_a", "attribute_type": "culture", "attribute_value": "Korean", "image_path": "out/a.png"},
		{"attribute_type": "gender", "attribute_value": "female"},
		{"attribute_type": "culture", "instruction": "add a hanbok"},
	})
	samples, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples got %d", len(samples))
	}
	if samples[0].CaseID != "case_a" {
		t.Fatalf("explicit case id lost: %s", samples[0].CaseID)
	}
	if samples[1].CaseID != "case_0001" {
		t.Fatalf("expected positional case id got %s", samples[1].CaseID)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"empty array", []map[string]string{}},
		{"missing attribute type", []map[string]string{{"attribute_value": "Korean"}}},
		{"missing value and instruction", []map[string]string{{"attribute_type": "culture"}}},
		{"duplicate case ids", []map[string]string{
			{"case_id": "x", "attribute_type": "culture", "attribute_value": "Korean"},
			{"case_id": "x", "attribute_type": "culture", "attribute_value": "Kenyan"},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(tempManifest(t, tc.value)); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
