package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/treeherder-uitests/internal/browser"
	"github.com/ternarybob/treeherder-uitests/internal/common"
	"github.com/ternarybob/treeherder-uitests/internal/wait"
)

type TestSuite struct {
	Name    string
	Command []string
	Live    bool // Needs a reachable dashboard
}

type TestResult struct {
	Suite    string
	Success  bool
	Skipped  bool
	Output   string
	Duration time.Duration
	LogErr   error // Set when the suite output could not be saved
}

type TestRunnerConfig struct {
	TestRunner struct {
		TestsDir   string `toml:"tests_dir"`
		OutputDir  string `toml:"output_dir"`
		UnitTests  bool   `toml:"unit_tests"`
		ConfigFile string `toml:"config_file"`
	} `toml:"test_runner"`
	TestServer struct {
		Port int `toml:"port"`
	} `toml:"test_server"`
	Dashboard struct {
		BaseURL               string `toml:"base_url"`
		StartupTimeoutSeconds int    `toml:"startup_timeout_seconds"`
	} `toml:"dashboard"`
}

// loadConfig loads the test runner configuration
func loadConfig() (*TestRunnerConfig, error) {
	exePath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable path: %w", err)
	}

	// Look for config file in executable directory first, then current directory
	configPath := filepath.Join(filepath.Dir(exePath), "uitest-runner.toml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		configPath = "uitest-runner.toml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config TestRunnerConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if config.TestRunner.TestsDir == "" {
		config.TestRunner.TestsDir = "./test"
	}
	if config.TestRunner.OutputDir == "" {
		config.TestRunner.OutputDir = "./test/results"
	}
	if config.TestServer.Port == 0 {
		config.TestServer.Port = 3333
	}
	if config.Dashboard.StartupTimeoutSeconds == 0 {
		config.Dashboard.StartupTimeoutSeconds = 30
	}
	if url := os.Getenv("TEST_SERVER_URL"); url != "" {
		config.Dashboard.BaseURL = url
	}

	return &config, nil
}

func main() {
	os.Exit(run())
}

// run executes every step and returns the process exit code.
func run() int {
	common.PrintBanner("Treeherder UI Test Runner")

	config, err := loadConfig()
	if err != nil {
		fmt.Printf("ERROR: Failed to load configuration: %v\n", err)
		return 1
	}
	defer common.RecoverToCrashReport(config.TestRunner.OutputDir)

	appConfig, err := common.LoadFromFiles(config.TestRunner.ConfigFile)
	if err != nil {
		fmt.Printf("ERROR: Failed to load suite configuration: %v\n", err)
		return 1
	}
	appConfig.Output.ResultsDir = config.TestRunner.OutputDir
	logger := common.InitLogger(appConfig)

	fmt.Printf("Configuration:\n")
	fmt.Printf("  Tests Directory: %s\n", config.TestRunner.TestsDir)
	fmt.Printf("  Output Directory: %s\n", config.TestRunner.OutputDir)
	fmt.Printf("  Dashboard: %s\n\n", config.Dashboard.BaseURL)

	// Step 1: Browser validation against a local page
	fmt.Printf("STEP 1: Validating browser automation (port %d)...\n", config.TestServer.Port)
	fmt.Println(strings.Repeat("-", 80))
	browserOK := true
	testServer, testServerURL, err := StartTestServer(config.TestServer.Port)
	if err == nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			testServer.Shutdown(ctx)
		}()
		err = validateBrowser(appConfig, testServerURL, logger)
	}
	if err != nil {
		fmt.Printf("WARNING: Browser validation failed: %v\n", err)
		fmt.Printf("Live UI tests will be skipped\n\n")
		browserOK = false
	} else {
		fmt.Printf("✓ Browser automation working\n\n")
	}

	// Step 2: Check the dashboard
	fmt.Println("STEP 2: Checking dashboard...")
	fmt.Println(strings.Repeat("-", 80))
	dashboardOK := false
	if config.Dashboard.BaseURL == "" {
		fmt.Printf("No dashboard configured (set TEST_SERVER_URL), live UI tests will be skipped\n\n")
	} else {
		timeout := time.Duration(config.Dashboard.StartupTimeoutSeconds) * time.Second
		if err := waitForService(config.Dashboard.BaseURL, timeout); err != nil {
			fmt.Printf("WARNING: %v\n\n", err)
		} else {
			fmt.Printf("✓ Dashboard is reachable at %s\n\n", config.Dashboard.BaseURL)
			dashboardOK = true
		}
	}

	// Step 3: Run tests
	fmt.Println("STEP 3: Running tests...")
	fmt.Println(strings.Repeat("-", 80))

	uiTestPath := filepath.ToSlash(filepath.Join(config.TestRunner.TestsDir, "ui"))
	suites := []TestSuite{}
	if config.TestRunner.UnitTests {
		suites = append(suites, TestSuite{
			Name:    "Unit Tests",
			Command: []string{"go", "test", "./internal/..."},
		})
	}
	suites = append(suites, TestSuite{
		Name:    "UI Tests",
		Command: []string{"go", "test", "-v", "-count=1", "./" + uiTestPath},
		Live:    true,
	})

	results := make([]TestResult, 0, len(suites))
	allPassed := true

	for _, suite := range suites {
		if suite.Live && !(browserOK && dashboardOK) {
			fmt.Printf("- %s SKIPPED (no browser or dashboard)\n\n", suite.Name)
			results = append(results, TestResult{Suite: suite.Name, Skipped: true})
			continue
		}

		fmt.Printf("Running %s...\n", suite.Name)
		fmt.Println(strings.Repeat("-", 80))

		result := runTestSuite(suite, config.TestRunner.OutputDir, config.Dashboard.BaseURL)
		results = append(results, result)

		if result.Success {
			fmt.Printf("✓ %s PASSED (%.2fs)\n\n", suite.Name, result.Duration.Seconds())
		} else {
			fmt.Printf("✗ %s FAILED (%.2fs)\n\n", suite.Name, result.Duration.Seconds())
			allPassed = false
		}
	}

	printSummary(results, allPassed)

	if !allPassed {
		return 1
	}
	return 0
}

// validateBrowser opens the local test page, clicks its button and checks the result
func validateBrowser(appConfig *common.Config, url string, logger arbor.ILogger) error {
	chrome, err := browser.NewChrome(browser.ChromeOptionsFromConfig(appConfig.Browser), logger)
	if err != nil {
		return err
	}
	defer chrome.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := chrome.Navigate(ctx, url); err != nil {
		return err
	}

	button, err := chrome.FindElement(ctx, browser.ID("test-button"))
	if err != nil {
		return err
	}
	if err := button.Click(ctx); err != nil {
		return err
	}

	return wait.True(ctx, wait.Default().WithMessage("test button output"), func(ctx context.Context) (bool, error) {
		output, err := chrome.FindElement(ctx, browser.ID("test-output"))
		if err != nil {
			return false, err
		}
		text, err := output.Text(ctx)
		return text == "Button clicked!", err
	})
}

// waitForService polls url until it answers 200 OK
func waitForService(url string, timeout time.Duration) error {
	client := &http.Client{Timeout: 5 * time.Second}
	w := wait.Waiter{Timeout: timeout, Interval: 500 * time.Millisecond}.WithMessage(url + " to answer 200 OK")

	return wait.True(context.Background(), w, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return false, err
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK, nil
	})
}

func runTestSuite(suite TestSuite, outputDir string, dashboardURL string) TestResult {
	startTime := time.Now()

	// Results directory: {output_dir}/{suite}-{run id}/
	suiteDir := filepath.Join(outputDir, fmt.Sprintf("%s-%s", sanitizeFilename(suite.Name), common.NewRunID()))
	if err := os.MkdirAll(suiteDir, 0755); err != nil {
		fmt.Printf("ERROR: Failed to create suite directory: %v\n", err)
	}

	absSuiteDir, err := filepath.Abs(suiteDir)
	if err != nil {
		absSuiteDir = suiteDir
	}

	cmd := exec.Command(suite.Command[0], suite.Command[1:]...)
	cmd.Dir = "."
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("TH_RESULTS_DIR=%s", absSuiteDir),
		fmt.Sprintf("TEST_SERVER_URL=%s", dashboardURL),
	)

	output, err := cmd.CombinedOutput()
	duration := time.Since(startTime)

	result := TestResult{
		Suite:    suite.Name,
		Success:  err == nil,
		Output:   string(output),
		Duration: duration,
	}

	if err != nil {
		fmt.Println(string(output))
	}

	if writeErr := os.WriteFile(filepath.Join(suiteDir, "test.log"), output, 0644); writeErr != nil {
		fmt.Printf("WARNING: Failed to save %s output: %v\n", suite.Name, writeErr)
		result.LogErr = writeErr
	}

	return result
}

func printSummary(results []TestResult, allPassed bool) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("TEST SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	totalDuration := time.Duration(0)
	passed, failed, skipped := 0, 0, 0

	for _, result := range results {
		status := "PASS"
		switch {
		case result.Skipped:
			status = "SKIP"
			skipped++
		case !result.Success:
			status = "FAIL"
			failed++
		default:
			passed++
		}

		fmt.Printf("%-30s %s (%.2fs)\n", result.Suite, status, result.Duration.Seconds())
		if result.LogErr != nil {
			fmt.Printf("%-30s output not saved: %v\n", "", result.LogErr)
		}
		totalDuration += result.Duration
	}

	fmt.Println(strings.Repeat("-", 80))
	fmt.Printf("Total: %d passed, %d failed, %d skipped (%.2fs)\n", passed, failed, skipped, totalDuration.Seconds())

	if allPassed {
		fmt.Println("\n✓ ALL TESTS PASSED")
	} else {
		fmt.Println("\n✗ SOME TESTS FAILED")
	}
}

func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
	)
	return strings.ToLower(replacer.Replace(name))
}
