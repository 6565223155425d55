package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"

	"github.com/ternarybob/treeherder-uitests/internal/common"
	"github.com/ternarybob/treeherder-uitests/internal/identity"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run fetches one identity and prints its credentials as JSON to stdout.
// It returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var configFiles configPaths

	flags := flag.NewFlagSet("persona-user", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flags.Var(&configFiles, "c", "Configuration file path (shorthand)")
	attempts := flags.Int("attempts", 0, "Maximum fetch attempts (overrides config)")
	url := flags.String("url", "", "Identity service URL (overrides config)")
	quiet := flags.Bool("quiet", false, "Print only the credentials JSON")
	showVersion := flags.Bool("version", false, "Print version information")

	if err := flags.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintf(stdout, "persona-user version %s\n", common.GetFullVersion())
		return 0
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("uitests.toml"); err == nil {
			configFiles = append(configFiles, "uitests.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to load configuration %v: %v\n", []string(configFiles), err)
		return 1
	}
	defer common.RecoverToCrashReport(config.Output.ResultsDir)

	if *attempts > 0 {
		config.Identity.MaxAttempts = *attempts
	}
	if *url != "" {
		config.Identity.URL = *url
	}

	// Keep stdout for the JSON payload
	config.Logging.Output = []string{"file"}
	logger := common.InitLogger(config)

	if !*quiet {
		common.PrintBanner("persona-user")
	}

	client := identity.NewClientFromConfig(config.Identity, logger)

	logger.Info().
		Str("url", config.Identity.URL).
		Int("max_attempts", client.MaxAttempts()).
		Msg("Requesting test identity")

	user, err := client.Fetch(ctx)
	if err != nil {
		var exhausted *identity.FetchExhaustedError
		if errors.As(err, &exhausted) {
			fmt.Fprintln(stderr, exhausted.Error())
		} else {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
		}
		logger.Error().Err(err).Msg("No test identity obtained")
		return 1
	}

	out, err := json.MarshalIndent(user.Credentials(), "", "    ")
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: failed to encode credentials: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	return 0
}
