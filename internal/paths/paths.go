// Package paths verifies that file references inside contracts resolve
// on disk. It runs as a pre-gate: a contract whose files or command
// arguments point at missing paths would fail mid-run anyway, but the
// failure surfaces here with a suggested correction instead of deep in
// an executor.
package paths

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/contractdev/cdd/internal/contract"
)

// Failure is one unresolvable path, with a corrected candidate when a
// nearby location holds the file.
type Failure struct {
	Path       string  `json:"path"`
	Suggestion *string `json:"suggestion"`
}

// ContractResult reports verification for a single contract.
type ContractResult struct {
	Contract     string    `json:"contract"`
	ContractPath string    `json:"contract_path"`
	OK           bool      `json:"ok"`
	Passed       []string  `json:"passed"`
	Failed       []Failure `json:"failed"`
	Total        int       `json:"total"`
}

// Report aggregates verification across one or more contracts.
type Report struct {
	OK               bool             `json:"ok"`
	ContractsChecked int              `json:"contracts_checked"`
	TotalPaths       int              `json:"total_paths"`
	PassedPaths      int              `json:"passed_paths"`
	FailedPaths      int              `json:"failed_paths"`
	Results          []ContractResult `json:"results"`
}

var extensionRe = regexp.MustCompile(`\.\w+$`)

// LooksLikePath reports whether a command argument is plausibly a file
// reference: it has a path separator, is not a URL or a flag, and either
// carries an extension or is explicitly relative.
func LooksLikePath(v any) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	if !strings.ContainsAny(s, `/\`) {
		return false
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return false
	}
	if strings.HasPrefix(s, "-") {
		return false
	}
	return extensionRe.MatchString(s) || strings.HasPrefix(s, "../") || strings.HasPrefix(s, "./")
}

// ExtractFilePaths collects every file reference a contract's tests make:
// files entries for static scans plus path-shaped shell command
// arguments. Duplicates are kept; callers dedupe.
func ExtractFilePaths(doc map[string]any) []string {
	var out []string
	tests, _ := doc["tests"].([]any)
	for _, entry := range tests {
		test, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		switch files := test["files"].(type) {
		case string:
			if files != "" {
				out = append(out, files)
			}
		case []any:
			for _, f := range files {
				if s, ok := f.(string); ok {
					out = append(out, s)
				}
			}
		}
		steps, _ := test["steps"].([]any)
		for _, raw := range steps {
			step, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			command, _ := step["command"].([]any)
			for _, arg := range command {
				if LooksLikePath(arg) {
					out = append(out, arg.(string))
				}
			}
		}
	}
	return out
}

// suggestFix probes nearby locations for a missing path and returns the
// first candidate that exists: one directory up, one directory down for
// ../ paths, then two directories up.
func suggestFix(path, contractDir string) (string, bool) {
	candidates := []string{"../" + path}
	if rest, ok := strings.CutPrefix(path, "../"); ok {
		candidates = append(candidates, rest)
	}
	candidates = append(candidates, "../../"+path)
	for _, c := range candidates {
		if _, err := os.Stat(filepath.Join(contractDir, c)); err == nil {
			return c, true
		}
	}
	return "", false
}

// VerifyContract checks every path referenced by one contract, resolving
// relative to the contract's own directory.
func VerifyContract(path string) (ContractResult, error) {
	doc, err := contract.LoadFile(path)
	if err != nil {
		return ContractResult{}, err
	}
	dir := filepath.Dir(path)

	seen := make(map[string]struct{})
	var unique []string
	for _, p := range ExtractFilePaths(doc) {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		unique = append(unique, p)
	}

	res := ContractResult{
		Contract:     contract.Name(doc, path),
		ContractPath: path,
		Passed:       []string{},
		Failed:       []Failure{},
		Total:        len(unique),
	}
	for _, p := range unique {
		if _, err := os.Stat(filepath.Join(dir, p)); err == nil {
			res.Passed = append(res.Passed, p)
			continue
		}
		f := Failure{Path: p}
		if fix, ok := suggestFix(p, dir); ok {
			f.Suggestion = &fix
		}
		res.Failed = append(res.Failed, f)
	}
	res.OK = len(res.Failed) == 0
	return res, nil
}

// Verify runs path verification over a single contract file or a flat
// directory of contracts. Direct children named *.yaml are checked;
// project.yaml and subdirectories are not.
func Verify(path string) (Report, error) {
	files, err := contractFiles(path)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Results: []ContractResult{}}
	for _, f := range files {
		res, err := VerifyContract(f)
		if err != nil {
			return Report{}, err
		}
		rep.Results = append(rep.Results, res)
		rep.PassedPaths += len(res.Passed)
		rep.FailedPaths += len(res.Failed)
	}
	rep.ContractsChecked = len(files)
	rep.TotalPaths = rep.PassedPaths + rep.FailedPaths
	rep.OK = rep.FailedPaths == 0
	return rep, nil
}

func contractFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") || e.Name() == contract.ProjectFile {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	return files, nil
}
