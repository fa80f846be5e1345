package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Comparison is the result of holding two source reference analyses
// against each other. Source snapshots match on content hash; anything
// finer needs a contract, not this tool.
type Comparison struct {
	Type           string `json:"type"`
	Match          bool   `json:"match"`
	OriginalHash   string `json:"original_hash"`
	GeneratedHash  string `json:"generated_hash"`
	FileTypeMatch  bool   `json:"file_type_match"`
	OriginalType   string `json:"original_type"`
	GeneratedType  string `json:"generated_type"`
	OriginalLines  int    `json:"original_lines"`
	GeneratedLines int    `json:"generated_lines"`
	Summary        string `json:"summary"`
}

// Load reads an analysis manifest. A directory argument reads the
// structure.json inside it.
func Load(path string) (map[string]any, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "structure.json")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("not found: %s", path)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Compare checks two source reference manifests for identity.
func Compare(original, generated map[string]any) Comparison {
	cmp := Comparison{
		Type:           TypeSourceReference,
		Match:          manifestString(original, "hash") == manifestString(generated, "hash"),
		OriginalHash:   manifestString(original, "hash"),
		GeneratedHash:  manifestString(generated, "hash"),
		FileTypeMatch:  manifestString(original, "file_type") == manifestString(generated, "file_type"),
		OriginalType:   manifestString(original, "file_type"),
		GeneratedType:  manifestString(generated, "file_type"),
		OriginalLines:  manifestInt(original, "line_count"),
		GeneratedLines: manifestInt(generated, "line_count"),
	}

	switch diff := cmp.GeneratedLines - cmp.OriginalLines; {
	case cmp.Match:
		cmp.Summary = "✓ Files are identical"
	case diff > 0:
		cmp.Summary = fmt.Sprintf("✗ Files differ (+%d lines) - use contracts to verify structural requirements", diff)
	case diff < 0:
		cmp.Summary = fmt.Sprintf("✗ Files differ (%d lines) - use contracts to verify structural requirements", diff)
	default:
		cmp.Summary = "✗ Files differ (same line count) - use contracts to verify structural requirements"
	}
	return cmp
}

func manifestString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func manifestInt(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
