// Package jsonpath resolves the $.-rooted paths used by contract assertions
// and interpolates variable references in step arguments.
//
// The dialect is deliberately small: dotted keys, [N] indices, and quoted
// keys like ["a.b"]. A missing key or out-of-range index resolves to null
// without error; indexing a non-list or keying a non-map is an error.
package jsonpath

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Resolution error codes.
const (
	ErrInvalidPath  = "invalid_path"
	ErrTypeMismatch = "type_mismatch"
	// ErrPathNotFound is never produced; missing keys and out-of-range
	// indices resolve to null instead.
	ErrPathNotFound = "path_not_found"
)

// Error is a path resolution failure. Code is one of the error code
// constants above.
type Error struct {
	Code string
	Path string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Path)
}

var (
	bracePattern   = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)
	varsRefPattern = regexp.MustCompile(`\$\.vars\.([a-zA-Z_][a-zA-Z0-9_]*)`)
)

// Interpolate replaces {name} and $.vars.name references in strings with
// values from vars, recursing through lists and maps. Unknown names expand
// to the empty string. Non-string leaves pass through unchanged.
func Interpolate(value any, vars map[string]any) any {
	switch v := value.(type) {
	case string:
		s := bracePattern.ReplaceAllStringFunc(v, func(m string) string {
			return stringify(vars[m[1:len(m)-1]])
		})
		s = varsRefPattern.ReplaceAllStringFunc(s, func(m string) string {
			return stringify(vars[strings.TrimPrefix(m, "$.vars.")])
		})
		return s
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Interpolate(item, vars)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Interpolate(item, vars)
		}
		return out
	default:
		return value
	}
}

func stringify(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Resolve walks path against root. The path must be a string starting with
// "$."; a nil path resolves to nil. Missing keys and out-of-range indices
// resolve to nil without error. Structural mismatches (keying a non-map,
// indexing a non-list) return an *Error with ErrTypeMismatch; malformed
// paths return ErrInvalidPath.
func Resolve(root, path any) (any, error) {
	if path == nil {
		return nil, nil
	}
	p, ok := path.(string)
	if !ok || !strings.HasPrefix(p, "$.") {
		return nil, &Error{Code: ErrInvalidPath, Path: fmt.Sprint(path)}
	}

	tokens, ok := tokenize(p)
	if !ok {
		return nil, &Error{Code: ErrInvalidPath, Path: p}
	}

	cur := root
	for _, tok := range tokens {
		if tok.isIdx {
			list, ok := cur.([]any)
			if !ok {
				return nil, &Error{Code: ErrTypeMismatch, Path: p}
			}
			if tok.idx < 0 || tok.idx >= len(list) {
				return nil, nil
			}
			cur = list[tok.idx]
			continue
		}
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, &Error{Code: ErrTypeMismatch, Path: p}
		}
		v, present := m[tok.key]
		if !present {
			return nil, nil
		}
		cur = v
	}
	return cur, nil
}

type token struct {
	key   string
	idx   int
	isIdx bool
}

// tokenize parses "$.a.b[0].c[\"quoted\"]" into key and index tokens.
// Returns false on unterminated brackets or bracket contents that are
// neither a quoted key nor an integer.
func tokenize(path string) ([]token, bool) {
	s := path[2:]
	var out []token
	var buf strings.Builder

	flush := func() {
		if buf.Len() > 0 {
			out = append(out, token{key: buf.String()})
			buf.Reset()
		}
	}

	i := 0
	for i < len(s) {
		switch ch := s[i]; ch {
		case '.':
			flush()
			i++
		case '[':
			flush()
			end := strings.IndexByte(s[i:], ']')
			if end == -1 {
				return nil, false
			}
			end += i
			inner := strings.TrimSpace(s[i+1 : end])
			if quoted(inner) {
				out = append(out, token{key: inner[1 : len(inner)-1]})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil || strings.HasPrefix(inner, "+") {
					return nil, false
				}
				out = append(out, token{idx: n, isIdx: true})
			}
			i = end + 1
		default:
			buf.WriteByte(ch)
			i++
		}
	}
	flush()
	return out, true
}

func quoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	return (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')
}
