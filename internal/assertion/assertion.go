// Package assertion evaluates contract assertions against a resolved
// evaluation context.
//
// Operand expressions that are strings starting with "$." are resolved
// through the path resolver; everything else is treated as a literal.
// Evaluation never short-circuits: every assertion in a test runs and is
// reported, and operator faults are recorded as error codes on the result
// rather than returned to the caller.
package assertion

import (
	"errors"
	"math"
	"os"
	"reflect"
	"regexp"
	"strings"

	"github.com/contractdev/cdd/internal/jsonpath"
)

// Error codes produced by the evaluator itself. Resolver codes
// (invalid_path, type_mismatch) pass through from the path resolver.
const (
	ErrTypeMismatch = "type_mismatch"
	ErrUnknownOp    = "unknown_op"
	ErrException    = "exception"
)

// Result is the outcome of a single assertion evaluation.
type Result struct {
	Op       string         `json:"op"`
	Actual   any            `json:"actual"`
	Expected any            `json:"expected"`
	Pass     bool           `json:"pass"`
	Err      string         `json:"error,omitempty"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// Evaluate runs every assertion against the context and returns one result
// per assertion, in order. A resolver error on an operand short-circuits
// that single assertion to a failure carrying the resolver's code.
func Evaluate(context map[string]any, asserts []map[string]any) []Result {
	results := make([]Result, 0, len(asserts))
	for _, a := range asserts {
		results = append(results, evaluateOne(context, a))
	}
	return results
}

func evaluateOne(context map[string]any, a map[string]any) Result {
	op, _ := a["op"].(string)
	actualExpr := a["actual"]
	expectedExpr := a["expected"]
	patternExpr := a["pattern"]
	message, _ := a["message"].(string)

	actual, actualErr := evalOperand(context, actualExpr)
	expected, expectedErr := evalOperand(context, expectedExpr)

	var pattern any
	var patternErr string
	if patternExpr != nil && patternExpr != "" {
		pattern, patternErr = evalOperand(context, patternExpr)
	}

	// file_exists checks the disk, so expected is implicitly true.
	if op == "file_exists" && expectedExpr == nil {
		expected = true
		expectedErr = ""
	}

	switch {
	case actualErr != "":
		return Result{Op: op, Expected: expected, Err: actualErr, Message: message}
	case expectedErr != "":
		return Result{Op: op, Actual: actual, Err: expectedErr, Message: message}
	case patternErr != "":
		return Result{Op: op, Actual: actual, Err: patternErr, Message: message}
	}

	res := applyOp(op, actual, expected, pattern, a)
	res.Message = message
	return res
}

// evalOperand resolves a "$."-prefixed string through the path resolver and
// passes every other value through as a literal.
func evalOperand(context map[string]any, expr any) (any, string) {
	s, ok := expr.(string)
	if !ok || !strings.HasPrefix(s, "$.") {
		return expr, ""
	}
	v, err := jsonpath.Resolve(context, s)
	if err != nil {
		var pathErr *jsonpath.Error
		if errors.As(err, &pathErr) {
			return nil, pathErr.Code
		}
		return nil, jsonpath.ErrInvalidPath
	}
	return v, ""
}

func applyOp(op string, actual, expected, pattern any, raw map[string]any) Result {
	switch op {
	case "eq":
		return Result{Op: op, Actual: actual, Expected: expected, Pass: valuesEqual(actual, expected)}
	case "ne":
		return Result{Op: op, Actual: actual, Expected: expected, Pass: !valuesEqual(actual, expected)}
	case "lt":
		return compareNumeric(op, actual, expected, func(a, e float64) bool { return a < e })
	case "lte":
		return compareNumeric(op, actual, expected, func(a, e float64) bool { return a <= e })
	case "gt":
		return compareNumeric(op, actual, expected, func(a, e float64) bool { return a > e })
	case "gte":
		return compareNumeric(op, actual, expected, func(a, e float64) bool { return a >= e })
	case "in_range":
		return inRange(actual, raw)
	case "approx":
		return approx(actual, expected, raw)
	case "contains":
		return contains(actual, expected)
	case "has_keys":
		return hasKeys(actual, expected)
	case "matches":
		return matchPattern(op, actual, expected, pattern, false)
	case "not_matches":
		return matchPattern(op, actual, expected, pattern, true)
	case "file_exists":
		return fileExists(actual, expected)
	case "call_order":
		return callOrder(actual, expected)
	default:
		return Result{Op: op, Actual: actual, Expected: expected, Err: ErrUnknownOp}
	}
}

// valuesEqual is structural equality with numeric coercion: ints and floats
// compare by value across types, lists and maps compare element-wise.
func valuesEqual(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !valuesEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, present := bv[k]
			if !present || !valuesEqual(v, bvv) {
				return false
			}
		}
		return true
	default:
		return reflect.DeepEqual(a, b)
	}
}

// toFloat widens any numeric type to float64. Bools are not numeric.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func compareNumeric(op string, actual, expected any, cmp func(a, e float64) bool) Result {
	a, aok := toFloat(actual)
	e, eok := toFloat(expected)
	if !aok || !eok {
		return Result{Op: op, Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
	return Result{Op: op, Actual: actual, Expected: expected, Pass: cmp(a, e)}
}

func inRange(actual any, raw map[string]any) Result {
	minRaw, maxRaw := raw["min"], raw["max"]
	bounds := map[string]any{"min": minRaw, "max": maxRaw}

	a, aok := toFloat(actual)
	mn, mnok := toFloat(minRaw)
	mx, mxok := toFloat(maxRaw)
	if !aok || !mnok || !mxok {
		return Result{Op: "in_range", Actual: actual, Expected: bounds, Err: ErrTypeMismatch}
	}
	return Result{Op: "in_range", Actual: actual, Expected: bounds, Pass: mn <= a && a <= mx}
}

func approx(actual, expected any, raw map[string]any) Result {
	tolRaw := raw["tolerance"]

	a, aok := toFloat(actual)
	e, eok := toFloat(expected)
	tol, tok := toFloat(tolRaw)
	if !aok || !eok || !tok {
		return Result{Op: "approx", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
	return Result{
		Op:       "approx",
		Actual:   actual,
		Expected: expected,
		Pass:     math.Abs(a-e) <= tol,
		Details:  map[string]any{"tolerance": tolRaw},
	}
}

// contains is exact-element membership for lists and substring for strings.
func contains(actual, expected any) Result {
	switch a := actual.(type) {
	case []any:
		for _, item := range a {
			if valuesEqual(item, expected) {
				return Result{Op: "contains", Actual: actual, Expected: expected, Pass: true}
			}
		}
		return Result{Op: "contains", Actual: actual, Expected: expected}
	case string:
		e, ok := expected.(string)
		if !ok {
			return Result{Op: "contains", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
		}
		return Result{Op: "contains", Actual: actual, Expected: expected, Pass: strings.Contains(a, e)}
	default:
		return Result{Op: "contains", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
}

func hasKeys(actual, expected any) Result {
	m, ok := actual.(map[string]any)
	if !ok {
		return Result{Op: "has_keys", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
	keys, ok := stringSlice(expected)
	if !ok {
		return Result{Op: "has_keys", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
	for _, k := range keys {
		if _, present := m[k]; !present {
			return Result{Op: "has_keys", Actual: actual, Expected: expected}
		}
	}
	return Result{Op: "has_keys", Actual: actual, Expected: expected, Pass: true}
}

func matchPattern(op string, actual, expected, pattern any, negate bool) Result {
	pat := pattern
	if pat == nil || pat == "" {
		pat = expected
	}
	actualStr, aok := actual.(string)
	patStr, pok := pat.(string)
	if !aok || !pok {
		return Result{Op: op, Actual: actual, Expected: pat, Err: ErrTypeMismatch}
	}
	re, err := regexp.Compile("(?m)" + patStr)
	if err != nil {
		return Result{
			Op: op, Actual: actual, Expected: pat,
			Err:     ErrException,
			Details: map[string]any{"exception": err.Error()},
		}
	}
	matched := re.MatchString(actualStr)
	if negate {
		matched = !matched
	}
	return Result{Op: op, Actual: actual, Expected: pat, Pass: matched}
}

func fileExists(actual, expected any) Result {
	path, ok := actual.(string)
	if !ok {
		return Result{Op: "file_exists", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}
	_, err := os.Stat(path)
	return Result{Op: "file_exists", Actual: actual, Expected: true, Pass: err == nil}
}

// callOrder checks that expected appears as an ordered subsequence of
// actual, scanning greedily left to right.
func callOrder(actual, expected any) Result {
	actualSeq, aok := stringSlice(actual)
	expectedSeq, eok := stringSlice(expected)
	if !aok || !eok {
		return Result{Op: "call_order", Actual: actual, Expected: expected, Err: ErrTypeMismatch}
	}

	pos := 0
	for _, want := range expectedSeq {
		for pos < len(actualSeq) && actualSeq[pos] != want {
			pos++
		}
		if pos >= len(actualSeq) {
			return Result{Op: "call_order", Actual: actual, Expected: expected}
		}
		pos++
	}
	return Result{Op: "call_order", Actual: actual, Expected: expected, Pass: true}
}

func stringSlice(v any) ([]string, bool) {
	switch s := v.(type) {
	case []string:
		return s, true
	case []any:
		out := make([]string, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, false
			}
			out[i] = str
		}
		return out, true
	}
	return nil, false
}
