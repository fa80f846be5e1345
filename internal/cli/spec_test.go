package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractdev/cdd/internal/spec"
)

func TestSpecCommandVersion(t *testing.T) {
	stdout, _, err := execute(t, "spec")
	require.NoError(t, err)
	assert.Equal(t, spec.ToolVersion+"\n", stdout)
}

func TestSpecCommandVersionFlag(t *testing.T) {
	stdout, _, err := execute(t, "spec", "--version")
	require.NoError(t, err)
	assert.Equal(t, spec.ToolVersion+"\n", stdout)
}

func TestSpecCommandPrint(t *testing.T) {
	stdout, _, err := execute(t, "spec", "--print")
	require.NoError(t, err)

	assert.Equal(t, spec.Text(), stdout)
	assert.Contains(t, stdout, "Contract-Driven Development")
	assert.True(t, strings.HasSuffix(stdout, "\n"))
}

func TestSpecCommandRejectsArgs(t *testing.T) {
	_, _, err := execute(t, "spec", "extra")
	require.Error(t, err)
}
