package common

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSuiteName(t *testing.T) {
	tests := map[string]string{
		"TestKeyboardShortcutNextJob":      "keyboard",
		"TestLogviewer":                    "logviewer",
		"TestKeyboardShortcuts/close_open": "keyboard",
		"Pinboard":                         "pinboard",
	}

	for name, want := range tests {
		assert.Equal(t, want, extractSuiteName(name), name)
	}
}

func TestSetupTestEnvironmentCreatesLayout(t *testing.T) {
	resultsDir := t.TempDir()
	t.Setenv("TH_RESULTS_DIR", resultsDir)
	t.Setenv("TEST_SERVER_URL", "http://treeherder.local/")

	env, err := SetupTestEnvironment("TestLayoutCheck")
	require.NoError(t, err)

	env.LogTest(t, "hello %s", "log")
	env.Cleanup()

	assert.Equal(t, "http://treeherder.local", env.GetBaseURL())
	assert.Contains(t, env.GetResultsDir(), resultsDir)
	assert.Equal(t, "TestLayoutCheck", filepath.Base(env.ResultsDir))

	data, err := os.ReadFile(filepath.Join(env.ResultsDir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello log")
	assert.Contains(t, string(data), "=== TEST COMPLETED ===")
}

func TestPruneScreenshotsHonoursKeepPassedResults(t *testing.T) {
	t.Setenv("TH_RESULTS_DIR", t.TempDir())

	env, err := SetupTestEnvironment("TestPruneCheck")
	require.NoError(t, err)
	defer env.Cleanup()

	require.NoError(t, env.SaveScreenshot("01_opened", []byte("png")))

	env.Config.Output.KeepPassedResults = true
	env.PruneScreenshots()
	assert.FileExists(t, env.GetScreenshotPath("01_opened"))

	env.Config.Output.KeepPassedResults = false
	env.PruneScreenshots()
	assert.NoFileExists(t, env.GetScreenshotPath("01_opened"))
	assert.FileExists(t, filepath.Join(env.ResultsDir, "test.log"))
}

func TestSetupTestEnvironmentRecordsResolvedSeed(t *testing.T) {
	t.Setenv("TH_RESULTS_DIR", t.TempDir())
	t.Setenv("TH_RANDOM_SEED", "")

	env, err := SetupTestEnvironment("TestSeedCheck")
	require.NoError(t, err)
	env.Cleanup()

	require.NotZero(t, env.Config.Random.Seed)

	data, err := os.ReadFile(filepath.Join(env.ResultsDir, "test.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), fmt.Sprintf("Seed: %d\n", env.Config.Random.Seed))
	assert.NotContains(t, string(data), "Seed: 0\n")
}

func TestSetupTestEnvironmentKeepsConfiguredSeed(t *testing.T) {
	t.Setenv("TH_RESULTS_DIR", t.TempDir())
	t.Setenv("TH_RANDOM_SEED", "4242")

	env, err := SetupTestEnvironment("TestSeedFixed")
	require.NoError(t, err)
	env.Cleanup()

	assert.Equal(t, int64(4242), env.Config.Random.Seed)
}
