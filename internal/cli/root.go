// Package cli implements the biofetch command line: one-off page fetches,
// full paginated fetches and throttled downloads against the registered
// APIs or any JSON endpoint.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Sternrassler/biofetch/pkg/logging"
	"github.com/Sternrassler/biofetch/pkg/metrics"
)

// EnvPrefix prefixes every environment variable read by the CLI.
const EnvPrefix = "BIOFETCH"

// app carries the state shared by the subcommands of one invocation.
type app struct {
	v      *viper.Viper
	out    io.Writer
	errOut io.Writer
}

// NewRootCmd builds the command tree writing results to out and diagnostics
// to errOut.
func NewRootCmd(out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:           "biofetch",
		Short:         "Rate-limited, paginating fetcher for biomedical REST APIs",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !a.v.GetBool("stats") {
				return nil
			}
			samples, err := metrics.Snapshot(nil)
			if err != nil {
				return err
			}
			return renderMetrics(a.errOut, samples)
		},
	}
	root.SetOut(out)
	root.SetErr(errOut)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.String("api", "", "API preset ("+strings.Join(apiNames(), ", ")+")")
	flags.String("base-url", "", "base URL for relative paths (overrides the preset)")
	flags.String("api-key", "", "API key (defaults to the preset's environment variable)")
	flags.String("user-agent", "", "User-Agent header")
	flags.Float64("rps", 0, "request ceiling in requests per second (0 = preset default)")
	flags.Duration("min-interval", 0, "minimum spacing between requests (overrides --rps)")
	flags.Bool("strict", false, "fail instead of waiting when a limiter is exhausted")
	flags.Duration("timeout", 0, "per-request timeout (0 = 30s)")
	flags.Int("retries", -1, "retries for retryable errors (-1 = preset default)")
	flags.String("redis-addr", "", "Redis address for the response cache and download counts")
	flags.Duration("cache-ttl", 0, "cache TTL when the upstream sends no expiry (0 = 5m)")
	flags.String("log-level", string(logging.LevelWarn), "log level (debug, info, warn, error, disabled)")
	flags.Bool("pretty-logs", false, "human-readable log output")
	flags.StringP("output", "o", "table", "output format (table, json)")
	flags.Bool("stats", false, "print fetch metrics to stderr when done")

	root.AddCommand(
		a.newPageCmd(),
		a.newAllCmd(),
		a.newDownloadCmd(),
		a.newAPIsCmd(),
	)
	return root
}

// initConfig layers flags over environment variables over the config file.
func (a *app) initConfig(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	a.v.SetEnvPrefix(EnvPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if cfgFile := a.v.GetString("config"); cfgFile != "" {
		a.v.SetConfigFile(cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	level := a.v.GetString("log-level")
	if _, err := logging.ParseLevel(level); err != nil {
		return err
	}
	logging.Setup(logging.Config{
		Level:  logging.LogLevel(level),
		Pretty: a.v.GetBool("pretty-logs"),
		Output: a.errOut,
	})

	switch a.v.GetString("output") {
	case "table", "json":
		return nil
	default:
		return fmt.Errorf("unsupported output format %q (want table or json)", a.v.GetString("output"))
	}
}

// Execute runs the CLI and returns the process exit code. Failures are
// reported as a single "error: ..." line on errOut.
func Execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := NewRootCmd(out, errOut)
	root.SetArgs(args)

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(errOut, "error: interrupted")
			return 1
		}
		fmt.Fprintf(errOut, "error: %v\n", err)
		return 1
	}
	return 0
}
