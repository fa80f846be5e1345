// Package coverage computes requirement coverage: how many tests link to
// each declared requirement across a contract tree.
package coverage

import (
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/contractdev/cdd/internal/contract"
)

// Requirement is one declared requirement and its linked test count.
type Requirement struct {
	ID          string `json:"id"`
	LinkedTests int    `json:"linked_tests"`
}

// Report is the coverage summary for a contract tree.
type Report struct {
	Requirements   []Requirement `json:"requirements"`
	UncoveredCount int           `json:"uncovered_count"`
	TotalCount     int           `json:"total_count"`
}

// Compute scans a contract file or tree and counts test links per
// requirement id. Requirements are collected before links are counted, so
// a test may link a requirement declared in any contract, regardless of
// file order. Project documents and unreadable files are skipped; links
// to undeclared requirements are ignored.
func Compute(path string) Report {
	files, ok := contract.GlobTree(path)
	if !ok {
		return Report{Requirements: []Requirement{}}
	}

	var docs []map[string]any
	counts := make(map[string]int)

	for _, f := range files {
		doc := loadComponent(f)
		if doc == nil {
			continue
		}
		docs = append(docs, doc)
		reqs, _ := doc["requirements"].([]any)
		for _, entry := range reqs {
			r, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if id, ok := r["id"].(string); ok {
				if _, seen := counts[id]; !seen {
					counts[id] = 0
				}
			}
		}
	}

	for _, doc := range docs {
		tests, _ := doc["tests"].([]any)
		for _, entry := range tests {
			test, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			for _, id := range linkedIDs(test["requirement"]) {
				if _, declared := counts[id]; declared {
					counts[id]++
				}
			}
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := Report{Requirements: make([]Requirement, 0, len(ids))}
	for _, id := range ids {
		result.Requirements = append(result.Requirements, Requirement{ID: id, LinkedTests: counts[id]})
		if counts[id] == 0 {
			result.UncoveredCount++
		}
	}
	result.TotalCount = len(ids)
	return result
}

// linkedIDs extracts the requirement ids a test links: a single id or a
// list of ids.
func linkedIDs(req any) []string {
	switch v := req.(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// loadComponent parses a YAML document, returning nil for anything that
// is not a component contract mapping.
func loadComponent(path string) map[string]any {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil
	}
	if _, isProject := m["project"]; isProject {
		return nil
	}
	return m
}
