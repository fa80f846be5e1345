// Package contract loads CDD contract documents: YAML files under a
// contracts directory, the optional project.yaml beside them, and the
// optional .cdd-version pin at the repository root. Documents stay
// map[string]any; the schema in schema.cue guards field types.
package contract

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectFile is the per-project document name inside the contracts
// directory. It is never treated as a contract.
const ProjectFile = "project.yaml"

// Layout describes where a run's contracts live. The repository root is
// the parent of the contracts directory; .cdd-version is looked up there.
type Layout struct {
	ContractsDir string
	RepoRoot     string
	Files        []string
}

// Locate resolves a target path into a contract layout. A directory is
// scanned recursively for *.yaml contracts (project.yaml excluded, sorted);
// a single file is taken as the only contract.
func Locate(path string) (*Layout, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		dir := filepath.Dir(path)
		return &Layout{
			ContractsDir: dir,
			RepoRoot:     filepath.Dir(dir),
			Files:        []string{path},
		}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if strings.HasSuffix(name, ".yaml") && name != ProjectFile {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	return &Layout{
		ContractsDir: path,
		RepoRoot:     filepath.Dir(path),
		Files:        files,
	}, nil
}

// GlobTree lists every .yaml file under path recursively, project.yaml
// included, or path itself when it is a file. The second return reports
// whether the path exists; lint and coverage treat a missing tree
// differently, so the distinction is theirs to make.
func GlobTree(path string) ([]string, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if !info.IsDir() {
		return []string{path}, true
	}

	var files []string
	_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".yaml") {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, true
}

// LoadFile parses one contract document. An empty file is an empty
// document; anything but a top-level mapping is an error.
func LoadFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseMapping(data, path, "contract")
}

// LoadProject reads project.yaml from the contracts directory. A missing
// file is not an error: the project document is simply empty.
func LoadProject(contractsDir string) (map[string]any, error) {
	path := filepath.Join(contractsDir, ProjectFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	return parseMapping(data, path, "project")
}

func parseMapping(data []byte, path, kind string) (map[string]any, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if doc == nil {
		return map[string]any{}, nil
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: %s document must be a YAML mapping", path, kind)
	}
	return m, nil
}

// SpecPin returns the project's pinned CDD version: cdd_spec from the
// project document when set, otherwise the .cdd-version file at the
// repository root, otherwise empty.
func SpecPin(project map[string]any, repoRoot string) string {
	if pin, ok := project["cdd_spec"].(string); ok && pin != "" {
		return pin
	}
	data, err := os.ReadFile(filepath.Join(repoRoot, ".cdd-version"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Name returns the contract's declared name, falling back to the file stem.
func Name(doc map[string]any, path string) string {
	if name, ok := doc["contract"].(string); ok && name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
