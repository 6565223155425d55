package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCrashReport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashes")

	path := WriteCrashReport(dir, "boom", stackTrace())
	require.NotEmpty(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "=== PANIC VALUE ===\nboom")
	assert.Contains(t, string(data), "TestWriteCrashReport")
	assert.Contains(t, string(data), GetFullVersion())
}
