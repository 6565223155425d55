// -----------------------------------------------------------------------
// Shared test environment for the Treeherder UI suite
// -----------------------------------------------------------------------

package common

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	appcommon "github.com/ternarybob/treeherder-uitests/internal/common"
)

// TestMainOutput captures the TestMain output for later inclusion in test logs
var TestMainOutput bytes.Buffer

// suiteDirectories tracks parent directories for test suites
// Maps suite name (e.g., "keyboard") to parent directory path
var suiteDirectories = make(map[string]string)
var suiteDirectoriesMutex sync.Mutex

// configCandidates are tried in order; missing files are skipped
var configCandidates = []string{
	filepath.Join("..", "config", "uitests.toml"),
	filepath.Join("test", "config", "uitests.toml"),
}

// OutputCapture captures stdout/stderr and tees it to a file and original output
type OutputCapture struct {
	buffer       *bytes.Buffer
	originalOut  *os.File
	originalErr  *os.File
	reader       *os.File
	writer       *os.File
	wg           sync.WaitGroup
	testLog      *os.File
	capturing    bool
	captureMutex sync.Mutex
}

// TestEnvironment holds the per-test results directory, logs and configuration
type TestEnvironment struct {
	Config     *appcommon.Config
	RunID      string
	ResultsDir string
	TestLog    *os.File // Test execution log
	Logger     arbor.ILogger

	// Output capture for test console
	outputCapture *OutputCapture
}

// extractSuiteName extracts the test suite name from a test name
// Example: "TestKeyboardShortcutNextJob" -> "keyboard", "TestLogviewerOpens" -> "logviewer"
func extractSuiteName(testName string) string {
	remainder := strings.TrimPrefix(testName, "Test")

	// Subtests share their parent's suite
	remainder, _, _ = strings.Cut(remainder, "/")

	var capitals []int
	for i := 0; i < len(remainder); i++ {
		if remainder[i] >= 'A' && remainder[i] <= 'Z' {
			capitals = append(capitals, i)
		}
	}

	// Take everything up to the second capital
	if len(capitals) >= 2 {
		return strings.ToLower(remainder[:capitals[1]])
	}

	return strings.ToLower(remainder)
}

// getOrCreateSuiteDirectory gets or creates a parent directory for a test suite
func getOrCreateSuiteDirectory(suiteName string, baseDir string) (string, error) {
	suiteDirectoriesMutex.Lock()
	defer suiteDirectoriesMutex.Unlock()

	if existingDir, ok := suiteDirectories[suiteName]; ok {
		return existingDir, nil
	}

	timestamp := time.Now().Format("20060102-150405")
	suiteDir := filepath.Join(baseDir, fmt.Sprintf("%s-%s", suiteName, timestamp))

	if err := os.MkdirAll(suiteDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create suite directory: %w", err)
	}

	suiteDirectories[suiteName] = suiteDir

	return suiteDir, nil
}

// LoadTestConfig loads uitests.toml when present, then applies environment overrides
func LoadTestConfig() (*appcommon.Config, error) {
	var paths []string
	for _, candidate := range configCandidates {
		if _, err := os.Stat(candidate); err == nil {
			paths = append(paths, candidate)
			break
		}
	}
	return appcommon.LoadFromFiles(paths...)
}

// SetupTestEnvironment prepares the results directory and log files for one test
func SetupTestEnvironment(testName string) (*TestEnvironment, error) {
	config, err := LoadTestConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load test config: %w", err)
	}

	// Results layout: {results_dir}/{suite-name}-{datetime}/{TestName}
	suiteDir, err := getOrCreateSuiteDirectory(extractSuiteName(testName), config.Output.ResultsDir)
	if err != nil {
		return nil, err
	}

	resultsDir := filepath.Join(suiteDir, strings.ReplaceAll(testName, "/", "_"))
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create test directory: %w", err)
	}

	testLogFile, err := os.Create(filepath.Join(resultsDir, "test.log"))
	if err != nil {
		return nil, fmt.Errorf("failed to create test log file: %w", err)
	}

	// Route the application logger into this test's directory
	config.Output.ResultsDir = resultsDir

	// A clock seed is resolved here and reused by the page session
	if config.Random.Seed == 0 {
		config.Random.Seed = time.Now().UnixNano()
	}
	logger := appcommon.InitLogger(config)

	env := &TestEnvironment{
		Config:     config,
		RunID:      appcommon.NewRunID(),
		ResultsDir: resultsDir,
		TestLog:    testLogFile,
		Logger:     logger,
	}

	env.outputCapture = NewOutputCapture(testLogFile)
	env.outputCapture.Start()

	if TestMainOutput.Len() > 0 {
		testLogFile.WriteString("=== TEST MAIN OUTPUT ===\n")
		testLogFile.Write(TestMainOutput.Bytes())
		testLogFile.WriteString("========================\n\n")
	}

	fmt.Fprintf(testLogFile, "Run: %s\nDashboard: %s\nSeed: %d\n\n",
		env.RunID, config.Dashboard.BaseURL, config.Random.Seed)

	return env, nil
}

// Cleanup closes the test log and stops output capture
func (env *TestEnvironment) Cleanup() {
	if env.TestLog != nil {
		fmt.Fprintf(env.TestLog, "\n=== TEST COMPLETED ===\n")
	}

	if env.outputCapture != nil {
		env.outputCapture.Stop()
	}

	if env.TestLog != nil {
		env.TestLog.Close()
	}
}

// GetScreenshotPath returns the path for saving a screenshot
func (env *TestEnvironment) GetScreenshotPath(name string) string {
	return filepath.Join(env.ResultsDir, fmt.Sprintf("%s.png", name))
}

// GetBaseURL returns the dashboard under test
func (env *TestEnvironment) GetBaseURL() string {
	return env.Config.Dashboard.BaseURL
}

// GetResultsDir returns the results directory for this test
func (env *TestEnvironment) GetResultsDir() string {
	return env.ResultsDir
}

// SaveScreenshot writes captured image bytes to the results directory
func (env *TestEnvironment) SaveScreenshot(name string, data []byte) error {
	if err := os.WriteFile(env.GetScreenshotPath(name), data, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}
	return nil
}

// PruneScreenshots removes screenshots of a passed test unless results are kept
func (env *TestEnvironment) PruneScreenshots() {
	if env.Config.Output.KeepPassedResults {
		return
	}
	matches, _ := filepath.Glob(filepath.Join(env.ResultsDir, "*.png"))
	for _, m := range matches {
		os.Remove(m)
	}
}

// LogTest writes a message to both the test log file and the test output (via t.Log)
func (env *TestEnvironment) LogTest(t *testing.T, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	timestamp := time.Now().Format("15:04:05")
	logMsg := fmt.Sprintf("[%s] %s\n", timestamp, msg)

	if env.TestLog != nil {
		env.TestLog.WriteString(logMsg)
	}

	t.Log(msg)
}

// NewOutputCapture creates a new output capturer
func NewOutputCapture(testLog *os.File) *OutputCapture {
	return &OutputCapture{
		buffer:      &bytes.Buffer{},
		originalOut: os.Stdout,
		originalErr: os.Stderr,
		testLog:     testLog,
		capturing:   false,
	}
}

// Start begins capturing stdout/stderr
func (oc *OutputCapture) Start() {
	oc.captureMutex.Lock()
	defer oc.captureMutex.Unlock()

	if oc.capturing {
		return
	}

	r, w, err := os.Pipe()
	if err != nil {
		return // Silently fail if pipe creation fails
	}

	oc.reader = r
	oc.writer = w
	oc.capturing = true

	oc.wg.Add(1)
	go func() {
		defer oc.wg.Done()
		// Tee to buffer, original output, and test log
		mw := io.MultiWriter(oc.buffer, oc.originalOut, oc.testLog)
		io.Copy(mw, oc.reader)
	}()

	os.Stdout = oc.writer
	os.Stderr = oc.writer
}

// Stop restores stdout/stderr and returns captured output
func (oc *OutputCapture) Stop() string {
	oc.captureMutex.Lock()
	defer oc.captureMutex.Unlock()

	if !oc.capturing {
		return oc.buffer.String()
	}

	os.Stdout = oc.originalOut
	os.Stderr = oc.originalErr

	if oc.writer != nil {
		oc.writer.Close()
	}

	oc.wg.Wait()

	oc.capturing = false
	return oc.buffer.String()
}
