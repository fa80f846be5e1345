// Package spec pins the CDD specification version implemented by this
// tooling and embeds the specification document served by `cdd spec`.
package spec

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
)

//go:embed SPEC.md
var specText string

// ToolVersion is the full tooling version including the patch level.
// Patch releases never change contract or report semantics.
const ToolVersion = "1.1.5"

// SchemaVersion returns the major.minor specification version this tooling
// implements. Reports and contracts are gated on this value, not on the
// full ToolVersion.
func SchemaVersion() string {
	parts := strings.Split(ToolVersion, ".")
	if len(parts) < 2 {
		return "1.0"
	}
	return parts[0] + "." + parts[1]
}

// Text returns the embedded specification document.
func Text() string {
	return specText
}

// ParseMajorMinor splits a version string into integer major and minor
// components. A missing minor defaults to zero. Returns an error when a
// present component is not an integer.
func ParseMajorMinor(v string) (major, minor int, err error) {
	parts := strings.Split(strings.TrimSpace(v), ".")
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("parse version %q: %w", v, err)
	}
	if len(parts) > 1 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("parse version %q: %w", v, err)
		}
	}
	return major, minor, nil
}
