package report

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed report.schema.json
var schemaJSON string

// Validate checks a serialized report against the embedded JSON schema and
// returns the violations, sorted. A nil slice means the report conforms.
func Validate(data []byte) ([]string, error) {
	schemaLoader := gojsonschema.NewStringLoader(schemaJSON)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validate report schema: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	findings := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		findings = append(findings, schemaErr.String())
	}
	sort.Strings(findings)
	return findings, nil
}
