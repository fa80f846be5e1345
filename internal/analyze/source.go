// Package analyze captures frozen reference snapshots of readable source
// files. A snapshot freezes the file next to a metadata manifest, a
// patterns template for the author to fill in, and a summary page, so
// contracts can be written against documented structure instead of a
// moving file.
package analyze

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
)

// TypeSourceReference tags manifests produced by this analyzer.
const TypeSourceReference = "source_reference"

// extensionTypes maps recognized file extensions to a language name.
var extensionTypes = map[string]string{
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".ts":    "typescript",
	".jsx":   "javascript",
	".tsx":   "typescript",
	".scd":   "supercollider",
	".sc":    "supercollider",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".toml":  "toml",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".md":    "markdown",
	".txt":   "text",
	".css":   "css",
	".sql":   "sql",
	".r":     "r",
	".rs":    "rust",
	".go":    "go",
	".rb":    "ruby",
	".lua":   "lua",
	".c":     "c",
	".cpp":   "cpp",
	".h":     "c",
	".hpp":   "cpp",
	".java":  "java",
	".swift": "swift",
	".kt":    "kotlin",
}

//go:embed templates
var templateFS embed.FS

// Manifest is the structure.json document written beside a snapshot.
type Manifest struct {
	Type         string `json:"type"`
	OriginalPath string `json:"original_path"`
	SnapshotPath string `json:"snapshot_path"`
	Hash         string `json:"hash"`
	CapturedAt   string `json:"captured_at"`
	FileType     string `json:"file_type"`
	SizeBytes    int64  `json:"size_bytes"`
	LineCount    int    `json:"line_count"`
}

// Result summarizes one completed analysis.
type Result struct {
	Type       string   `json:"type"`
	SourceName string   `json:"source_name"`
	FileType   string   `json:"file_type"`
	Hash       string   `json:"hash"`
	LineCount  int      `json:"line_count"`
	SizeBytes  int64    `json:"size_bytes"`
	OutputDir  string   `json:"output_dir"`
	Files      []string `json:"files"`
}

// IsSourceFile reports whether the path carries a recognized extension.
func IsSourceFile(path string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// FileType returns the language name for a path, or "" when the
// extension is not recognized.
func FileType(path string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(path))]
}

// HashFile computes the streamed SHA-256 of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CountLines counts lines the way an editor would: a trailing fragment
// with no newline still counts. Unreadable files count as zero.
func CountLines(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	n := bytes.Count(data, []byte{'\n'})
	if len(data) > 0 && data[len(data)-1] != '\n' {
		n++
	}
	return n
}

// Source freezes a reference snapshot of src under outDir: the copied
// file as source<ext>, a structure.json manifest, a PATTERNS.md template,
// and an elements.md summary.
func Source(src, outDir string) (*Result, error) {
	return sourceAt(src, outDir, time.Now().UTC())
}

func sourceAt(src, outDir string, at time.Time) (*Result, error) {
	if _, err := os.Stat(src); err != nil {
		return nil, fmt.Errorf("source file not found: %s", src)
	}
	ext := filepath.Ext(src)
	if !IsSourceFile(src) {
		return nil, fmt.Errorf("unsupported source type: %s", ext)
	}

	fileType := FileType(src)
	hash, err := HashFile(src)
	if err != nil {
		return nil, err
	}
	captured := at.Format(time.RFC3339)
	lineCount := CountLines(src)
	info, err := os.Stat(src)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	snapshotName := "source" + ext
	if err := copySnapshot(src, filepath.Join(outDir, snapshotName)); err != nil {
		return nil, err
	}

	manifest := Manifest{
		Type:         TypeSourceReference,
		OriginalPath: src,
		SnapshotPath: snapshotName,
		Hash:         hash,
		CapturedAt:   captured,
		FileType:     fileType,
		SizeBytes:    info.Size(),
		LineCount:    lineCount,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, "structure.json"), data, 0o644); err != nil {
		return nil, err
	}

	patterns, err := renderPatterns(fileType, filepath.Base(src), hash, captured)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, "PATTERNS.md"), []byte(patterns), 0o644); err != nil {
		return nil, err
	}

	summary, err := renderElements(manifest, filepath.Base(src))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(outDir, "elements.md"), []byte(summary), 0o644); err != nil {
		return nil, err
	}

	return &Result{
		Type:       TypeSourceReference,
		SourceName: filepath.Base(src),
		FileType:   fileType,
		Hash:       hash,
		LineCount:  lineCount,
		SizeBytes:  info.Size(),
		OutputDir:  outDir,
		Files:      []string{snapshotName, "structure.json", "PATTERNS.md", "elements.md"},
	}, nil
}

// renderPatterns fills the base patterns template and appends the
// language-specific prompts when one exists for the file type.
func renderPatterns(fileType, name, hash, captured string) (string, error) {
	base, err := renderTemplate("templates/patterns.md.tmpl", map[string]string{
		"Name":     name,
		"Captured": captured,
		"Hash12":   hash[:12],
	})
	if err != nil {
		return "", err
	}
	section, err := templateFS.ReadFile("templates/section_" + fileType + ".md")
	if err != nil {
		return base, nil
	}
	return base + "\n" + string(section), nil
}

func renderElements(m Manifest, name string) (string, error) {
	return renderTemplate("templates/elements.md.tmpl", map[string]any{
		"Name":         name,
		"FileType":     m.FileType,
		"OriginalPath": m.OriginalPath,
		"Hash12":       m.Hash[:12],
		"SizeBytes":    m.SizeBytes,
		"LineCount":    m.LineCount,
		"Captured":     m.CapturedAt,
		"SnapshotName": m.SnapshotPath,
	})
}

func renderTemplate(name string, data any) (string, error) {
	tmpl, err := template.ParseFS(templateFS, name)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func copySnapshot(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
