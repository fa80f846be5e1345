package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/executor"
)

func init() {
	err := executor.RegisterTargets("clitest", map[string]executor.TargetFunc{
		"ping": func(call executor.Call) (any, error) {
			return "pong", nil
		},
	})
	if err != nil {
		panic(err)
	}
}

const passingContract = `contract: core
runner:
  executor: call
  entry: clitest
  symbol: ping
tests:
  - id: T-001
    name: ping answers
    requirement: R-001
    steps:
      - action: call
        save_as: out
    assert:
      - op: eq
        actual: $.out.value
        expected: pong
`

const failingContract = `contract: core
runner:
  executor: call
  entry: clitest
  symbol: ping
tests:
  - id: T-001
    name: ping answers
    steps:
      - action: call
        save_as: out
    assert:
      - op: eq
        actual: $.out.value
        expected: nope
`

// writeTree lays out files under a fresh temp dir and returns its root.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

// execute runs the fully wired root command and captures its output.
// Viper state is reset afterwards so configs from one test never leak
// into the next.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	t.Cleanup(viper.Reset)
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

// quietConfig writes a config file that disables run history, so command
// tests never touch .cdd/history.db in the working directory.
func quietConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("history: false\n"), 0o644))
	return path
}
