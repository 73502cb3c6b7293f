package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

type globalFlags struct {
	configPath      string
	podnetConfig    string
	logFormat       string
	logLevel        string
	jsonOut         bool
	metricsTextfile string
}

var flags globalFlags

// errReportFailed marks a command whose report was already printed.
var errReportFailed = errors.New("operation failed")

type userError struct {
	msg  string
	hint string
}

func (e *userError) Error() string { return e.msg }
func (e *userError) Hint() string  { return e.hint }

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "podnet-primitives",
		Short:         "Build, scrub and read PodNet HA and KVM host primitives over SSH",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			_, err := newLogger(flags.logFormat, flags.logLevel)
			return err
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to robot YAML config file (optional)")
	pf.StringVar(&flags.podnetConfig, "podnet-config", "", "Path to PodNet config.json (default from robot config)")
	pf.StringVar(&flags.logFormat, "log-format", "text", "Log format: text|json")
	pf.StringVar(&flags.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	pf.BoolVar(&flags.jsonOut, "json", false, "Print machine-readable report JSON")
	pf.StringVar(&flags.metricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this node_exporter textfile")

	for _, c := range primitiveCommands() {
		cmd.AddCommand(c)
	}
	cmd.AddCommand(newNodesCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func Execute() error {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if errors.Is(err, errReportFailed) {
			return err
		}
		const (
			red    = "\033[31m"
			yellow = "\033[33m"
			cyan   = "\033[36m"
			reset  = "\033[0m"
		)
		var ue *userError
		if errors.As(err, &ue) {
			fmt.Fprintf(os.Stderr, "%sError:%s %s\n", red, reset, ue.Error())
			if hint := ue.Hint(); hint != "" {
				fmt.Fprintf(os.Stderr, "%sHint:%s %s%s%s\n", yellow, reset, cyan, hint, reset)
			}
		} else {
			fmt.Fprintf(os.Stderr, "%sError:%s %v\n", red, reset, err)
		}
		return err
	}
	return nil
}

func newLogger(format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("invalid --log-level %q (expected: debug|info|warn|error)", level)
	}

	// Logs go to stderr so --json output on stdout stays parseable.
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected: text|json)", format)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}
