// Package isolate executes a single contract in a disposable workspace: a
// fresh directory holding a copy of the contract, symlinks to the project
// trees it references, and a marker file that gates cleanup so a bad work
// dir path can never delete real data.
package isolate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Exit codes for `cdd isolate`.
const (
	ExitSuccess       = 0
	ExitTestFailure   = 1
	ExitPathFailure   = 2
	ExitParseError    = 3
	ExitNoProjectRoot = 4
	ExitInvalidPath   = 5
)

// markerFile gates cleanup: the work dir is only removed when it still
// carries the token written at setup.
const markerFile = ".cdd-isolate-marker"

// Error is a failed isolate phase tagged with its exit code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string { return e.Message }

// Options configure an isolate run.
type Options struct {
	// Project overrides project root detection.
	Project string
	// WorkDir overrides the default work directory under the system tmp dir.
	WorkDir string
	// Keep leaves the work directory in place after the run.
	Keep bool
	// KeepOnFail leaves the work directory in place only on failure.
	KeepOnFail bool
	// PathsOnly stops after path verification.
	PathsOnly bool
	// DryRun plans the workspace without touching the filesystem.
	DryRun bool

	Logger *zerolog.Logger
}

// Sandbox is a planned isolate workspace. Plan fills in everything except
// the marker token, which Setup writes.
type Sandbox struct {
	ContractPath string
	ContractName string
	ProjectRoot  string
	WorkDir      string
	// LinkRoots are the top level project directories the contract
	// references through ../ paths, sorted.
	LinkRoots []string

	opts  Options
	log   zerolog.Logger
	token string
}

// Plan parses the contract, detects the project root, and computes the
// work directory and link roots. Nothing is created on disk. Failures
// return an *Error carrying the isolate exit code.
func Plan(contractPath string, opts Options) (*Sandbox, error) {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	abs, err := filepath.Abs(contractPath)
	if err != nil {
		return nil, &Error{Code: ExitParseError, Message: err.Error()}
	}

	doc, err := ParseContract(abs)
	if err != nil {
		return nil, &Error{Code: ExitParseError, Message: err.Error()}
	}

	root, err := DetectProjectRoot(abs, opts.Project)
	if err != nil {
		return nil, err
	}

	refs := ExtractReferencedPaths(doc)
	roots, err := linkRoots(refs, root, filepath.Dir(abs))
	if err != nil {
		return nil, &Error{Code: ExitInvalidPath, Message: err.Error()}
	}

	name, _ := doc["contract"].(string)
	if name == "" {
		base := filepath.Base(abs)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	return &Sandbox{
		ContractPath: abs,
		ContractName: name,
		ProjectRoot:  root,
		WorkDir:      computeWorkDir(abs, opts.WorkDir),
		LinkRoots:    roots,
		opts:         opts,
		log:          log,
	}, nil
}

// ContractsDir is where Setup places the contract copy.
func (s *Sandbox) ContractsDir() string { return filepath.Join(s.WorkDir, "contracts") }

// ArtifactsRoot is the artifacts root for runs inside the workspace.
func (s *Sandbox) ArtifactsRoot() string { return filepath.Join(s.WorkDir, "artifacts") }

// Setup builds the workspace: a clean work dir with a contracts/ copy of
// the contract, the cleanup marker, and one symlink per link root.
func (s *Sandbox) Setup() error {
	if err := os.RemoveAll(s.WorkDir); err != nil {
		return &Error{Code: ExitInvalidPath, Message: err.Error()}
	}
	s.log.Debug().Str("work_dir", s.WorkDir).Msg("creating workspace")

	if err := os.MkdirAll(s.ContractsDir(), 0o755); err != nil {
		return &Error{Code: ExitInvalidPath, Message: err.Error()}
	}

	token, err := createMarker(s.WorkDir)
	if err != nil {
		return &Error{Code: ExitInvalidPath, Message: err.Error()}
	}
	s.token = token

	dest := filepath.Join(s.ContractsDir(), filepath.Base(s.ContractPath))
	if err := copyFile(s.ContractPath, dest); err != nil {
		return &Error{Code: ExitInvalidPath, Message: err.Error()}
	}

	for _, root := range s.LinkRoots {
		source := filepath.Join(s.ProjectRoot, root)
		info, err := os.Stat(source)
		if err != nil || !info.IsDir() {
			return &Error{
				Code:    ExitInvalidPath,
				Message: fmt.Sprintf("Link root '%s' does not exist: %s", root, source),
			}
		}
		target := filepath.Join(s.WorkDir, root)
		s.log.Debug().Str("source", source).Str("target", target).Msg("linking project tree")
		if err := os.Symlink(source, target); err != nil {
			return &Error{Code: ExitInvalidPath, Message: err.Error()}
		}
	}
	return nil
}

// Cleanup removes the work directory unless the keep flags or the safety
// check say otherwise. Reports whether the directory was removed.
func (s *Sandbox) Cleanup(exitCode int) bool {
	if s.opts.Keep || (s.opts.KeepOnFail && exitCode != ExitSuccess) {
		return false
	}
	if !SafeToCleanup(s.WorkDir, s.token, s.ProjectRoot) {
		s.log.Warn().Str("work_dir", s.WorkDir).Msg("refusing to clean work directory: safety check failed")
		return false
	}
	if err := os.RemoveAll(s.WorkDir); err != nil {
		s.log.Warn().Err(err).Str("work_dir", s.WorkDir).Msg("could not remove work directory")
		return false
	}
	return true
}

// ParseContract loads a contract for isolation. Contracts using extends
// are rejected; flattening them is a planned follow-on to the resolver.
func ParseContract(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Contract not found: %s", path)
		}
		return nil, fmt.Errorf("Failed to read contract: %v", err)
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("Contract parse error: %v", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("Contract must be a YAML mapping")
	}
	if _, has := m["extends"]; has {
		return nil, fmt.Errorf("extends not supported by cdd isolate v1.0")
	}
	return m, nil
}

// DetectProjectRoot walks upward from the contract looking for a project
// root. A directory with both .cdd/ and contracts/ wins outright; .git/
// with contracts/ outranks contracts/ with src/; ties go to the deepest
// directory. An explicit root skips detection entirely.
func DetectProjectRoot(contractPath, explicit string) (string, error) {
	if explicit != "" {
		abs, err := filepath.Abs(explicit)
		if err == nil {
			if info, statErr := os.Stat(abs); statErr == nil && info.IsDir() {
				return abs, nil
			}
		}
		return "", &Error{Code: ExitNoProjectRoot, Message: "Could not detect project root. Use --project to specify."}
	}

	current := filepath.Dir(contractPath)
	best := ""
	bestRank := 4

	for {
		hasCDD := isDir(filepath.Join(current, ".cdd"))
		hasGit := isDir(filepath.Join(current, ".git"))
		hasContracts := isDir(filepath.Join(current, "contracts"))
		hasSrc := isDir(filepath.Join(current, "src"))

		switch {
		case hasCDD && hasContracts:
			return current, nil
		case hasGit && hasContracts:
			if bestRank > 2 {
				best, bestRank = current, 2
			}
		case hasContracts && hasSrc:
			if bestRank > 3 {
				best, bestRank = current, 3
			}
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	if best == "" {
		return "", &Error{Code: ExitNoProjectRoot, Message: "Could not detect project root. Use --project to specify."}
	}
	return best, nil
}

// ExtractReferencedPaths collects every file path a contract references:
// test files specs, step file fields, and command arguments that look like
// paths. Results are sorted and deduplicated.
func ExtractReferencedPaths(doc map[string]any) []string {
	seen := make(map[string]struct{})

	tests, _ := doc["tests"].([]any)
	for _, entry := range tests {
		test, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		switch files := test["files"].(type) {
		case string:
			seen[files] = struct{}{}
		case []any:
			for _, f := range files {
				if s, ok := f.(string); ok {
					seen[s] = struct{}{}
				}
			}
		}

		steps, _ := test["steps"].([]any)
		for _, raw := range steps {
			step, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			if f, ok := step["file"].(string); ok {
				seen[f] = struct{}{}
			}
			command, _ := step["command"].([]any)
			for _, arg := range command {
				s, ok := arg.(string)
				if !ok {
					continue
				}
				if strings.Contains(s, "/") || strings.HasPrefix(s, "..") {
					seen[s] = struct{}{}
				}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// linkRoots maps ../ references to the top level project directories they
// land in. A reference resolving outside the project root is an error.
func linkRoots(paths []string, projectRoot, contractDir string) ([]string, error) {
	resolvedRoot := resolvePath(projectRoot)
	resolvedDir := resolvePath(contractDir)

	seen := make(map[string]struct{})
	for _, p := range paths {
		if !strings.HasPrefix(p, "..") {
			continue
		}
		resolved := filepath.Clean(filepath.Join(resolvedDir, p))
		rel, err := filepath.Rel(resolvedRoot, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf(
				"Path '%s' resolves outside project root.\n  Resolved: %s\n  Project:  %s\nConsider using --project to specify correct root.",
				p, resolved, resolvedRoot,
			)
		}
		parts := strings.Split(rel, string(filepath.Separator))
		if len(parts) > 0 && parts[0] != "." {
			seen[parts[0]] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for root := range seen {
		out = append(out, root)
	}
	sort.Strings(out)
	return out, nil
}

// computeWorkDir derives the default work directory from the contract path
// so concurrent isolates of different contracts never collide.
func computeWorkDir(contractPath, custom string) string {
	if custom != "" {
		if abs, err := filepath.Abs(custom); err == nil {
			return abs
		}
		return custom
	}
	sum := sha256.Sum256([]byte(contractPath))
	return filepath.Join(os.TempDir(), fmt.Sprintf("cdd-isolate-%s-%d", hex.EncodeToString(sum[:])[:8], os.Getpid()))
}

func createMarker(workDir string) (string, error) {
	token := uuid.NewString()
	content := fmt.Sprintf("token=%s\ncreated=%s\npid=%d\n",
		token, time.Now().UTC().Format(time.RFC3339), os.Getpid())
	if err := os.WriteFile(filepath.Join(workDir, markerFile), []byte(content), 0o644); err != nil {
		return "", err
	}
	return token, nil
}

func readMarkerToken(workDir string) string {
	data, err := os.ReadFile(filepath.Join(workDir, markerFile))
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "token=") {
			return strings.TrimPrefix(line, "token=")
		}
	}
	return ""
}

// SafeToCleanup refuses to remove anything that is not a marked isolate
// workspace: the root, the home directory, the project root, or any
// directory whose marker token does not match.
func SafeToCleanup(workDir, expectedToken, projectRoot string) bool {
	if expectedToken == "" {
		return false
	}

	resolved := resolvePath(workDir)
	forbidden := []string{"/", resolvePath(projectRoot)}
	if home, err := os.UserHomeDir(); err == nil {
		forbidden = append(forbidden, resolvePath(home))
	}
	for _, f := range forbidden {
		if resolved == f {
			return false
		}
	}

	return readMarkerToken(workDir) == expectedToken
}

// resolvePath follows symlinks where possible so comparisons against the
// forbidden set hold on hosts with symlinked temp or home directories.
func resolvePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func copyFile(src, dest string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	mode := fs.FileMode(0o644)
	if info, err := os.Stat(src); err == nil {
		mode = info.Mode()
	}
	return os.WriteFile(dest, data, mode)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
