package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the UI test suite configuration
type Config struct {
	Dashboard DashboardConfig `toml:"dashboard"`
	Browser   BrowserConfig   `toml:"browser"`
	Wait      WaitConfig      `toml:"wait"`
	Identity  IdentityConfig  `toml:"identity"`
	Random    RandomConfig    `toml:"random"`
	Logging   LoggingConfig   `toml:"logging"`
	Output    OutputConfig    `toml:"output"`
}

// DashboardConfig points the suite at a live Treeherder deployment
type DashboardConfig struct {
	BaseURL string `toml:"base_url" validate:"omitempty,url"` // Empty = UI tests are skipped
}

type BrowserConfig struct {
	Headless       bool     `toml:"headless"`
	WindowWidth    int      `toml:"window_width" validate:"gte=320"`
	WindowHeight   int      `toml:"window_height" validate:"gte=240"`
	DefaultTimeout Duration `toml:"default_timeout" validate:"gt=0"` // Upper bound for a single driver action
	ExecPath       string   `toml:"exec_path"`                       // Optional Chrome binary, empty = chromedp lookup
}

// WaitConfig configures the condition-wait utility used by page objects
type WaitConfig struct {
	Timeout      Duration `toml:"timeout" validate:"gt=0"`
	PollInterval Duration `toml:"poll_interval" validate:"gt=0"`
	MaxInterval  Duration `toml:"max_interval" validate:"omitempty,gtefield=PollInterval"` // 0 = backoff is not capped
	Backoff      float64  `toml:"backoff" validate:"gte=1"`                               // 1 = fixed interval
}

// IdentityConfig configures the disposable test identity provider
type IdentityConfig struct {
	URL         string   `toml:"url" validate:"required,url"`
	MaxAttempts int      `toml:"max_attempts" validate:"gte=1"`
	RetryDelay  Duration `toml:"retry_delay" validate:"gte=0"`
	HTTPTimeout Duration `toml:"http_timeout" validate:"gt=0"`
}

// RandomConfig controls the pseudo-random choices made by tests (random job, email, repo)
type RandomConfig struct {
	Seed int64 `toml:"seed"` // 0 = derive from the clock, logged for reproduction
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output     []string `toml:"output" validate:"dive,oneof=stdout console file"`
	TimeFormat string   `toml:"time_format"`
	FilePath   string   `toml:"file_path"` // Used when output contains "file"
}

type OutputConfig struct {
	ResultsDir        string `toml:"results_dir" validate:"required"`
	ScreenshotOnStep  bool   `toml:"screenshot_on_step"`
	KeepPassedResults bool   `toml:"keep_passed_results"`
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       true,
			WindowWidth:    1920,
			WindowHeight:   1080,
			DefaultTimeout: Duration(30 * time.Second),
		},
		Wait: WaitConfig{
			Timeout:      Duration(10 * time.Second),
			PollInterval: Duration(100 * time.Millisecond),
			Backoff:      1,
		},
		Identity: IdentityConfig{
			URL:         "http://personatestuser.org/email",
			MaxAttempts: 5,
			RetryDelay:  Duration(250 * time.Millisecond),
			HTTPTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05.000",
		},
		Output: OutputConfig{
			ResultsDir: "../results",
		},
	}
}

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env
// Later files override earlier files. Empty paths are ignored.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if baseURL := os.Getenv("TEST_SERVER_URL"); baseURL != "" {
		config.Dashboard.BaseURL = strings.TrimRight(baseURL, "/")
	}

	if headless := os.Getenv("TH_BROWSER_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}
	if execPath := os.Getenv("TH_BROWSER_EXEC_PATH"); execPath != "" {
		config.Browser.ExecPath = execPath
	}

	if timeout := os.Getenv("TH_WAIT_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Wait.Timeout = Duration(d)
		}
	}
	if interval := os.Getenv("TH_WAIT_POLL_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			config.Wait.PollInterval = Duration(d)

		}
	}

	if identityURL := os.Getenv("TH_IDENTITY_URL"); identityURL != "" {
		config.Identity.URL = identityURL
	}
	if attempts := os.Getenv("TH_IDENTITY_MAX_ATTEMPTS"); attempts != "" {
		if a, err := strconv.Atoi(attempts); err == nil {
			config.Identity.MaxAttempts = a
		}
	}

	if seed := os.Getenv("TH_RANDOM_SEED"); seed != "" {
		if s, err := strconv.ParseInt(seed, 10, 64); err == nil {
			config.Random.Seed = s
		}
	}

	if level := os.Getenv("TH_LOG_LEVEL"); level != "" {
		config.Logging.Level = strings.ToLower(level)
	}
	if output := os.Getenv("TH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if resultsDir := os.Getenv("TH_RESULTS_DIR"); resultsDir != "" {
		config.Output.ResultsDir = resultsDir
	}
}

// normalize lifts a backoff cap that sits below the poll interval up to it
func (c *Config) normalize() {
	if c.Wait.MaxInterval != 0 && c.Wait.MaxInterval < c.Wait.PollInterval {
		c.Wait.MaxInterval = c.Wait.PollInterval
	}
}

// Validate checks the configuration using the struct tags above
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// HasDashboard reports whether a live deployment is configured
func (c *Config) HasDashboard() bool {
	return c.Dashboard.BaseURL != ""
}
