package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/quiestce/quiestce/internal/config"
)

// Viper keys for CLI-only settings
const (
	keyLogLevel        = "log_level"
	keyLogFormat       = "log_format"
	keyMetricsExporter = "metrics_exporter"
)

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	v.SetDefault(keyLogLevel, "info")
	v.SetDefault(keyLogFormat, "text")

	cmd := &cobra.Command{
		Use:           "quiestce",
		Short:         "OAuth2 authorization code server for local development",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("config", config.DefaultConfigPath, "Path to the TOML configuration file (env CONFIG_PATH)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-format", "text", "Log format: text or json (env LOG_FORMAT)")
	bindFlags(v, flags, map[string]string{
		config.KeyConfigPath: "config",
		keyLogLevel:          "log-level",
		keyLogFormat:         "log-format",
	})

	cmd.AddCommand(newServeCmd(v))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// bindFlags binds viper keys to the named flags. A missing flag is a
// programming error.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", name, err))
		}
	}
}

// newLogger builds the process logger
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}
