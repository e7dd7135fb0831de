package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	flagPort      = "port"
	flagBaudrate  = "baudrate"
	flagBitrate   = "bitrate"
	flagLogFormat = "log-format"
	flagLogLevel  = "log-level"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "cantool",
		Short:        "CAN bit timing and SLCAN adapter tool",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			format, _ := cmd.Flags().GetString(flagLogFormat)
			level, _ := cmd.Flags().GetString(flagLogLevel)
			slog.SetDefault(setupLogger(format, level))
		},
	}

	pf := root.PersistentFlags()
	pf.String(flagLogFormat, "text", "log format: text|json")
	pf.String(flagLogLevel, "info", "log level: debug|info|warn|error")

	root.AddCommand(newTimingCmd(), newMonitorCmd(), newSendCmd(), newPortsCmd())
	return root
}

// serialFlags registers the flags shared by the adapter commands.
func serialFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP(flagPort, "p", "", "serial port of the SLCAN adapter")
	f.IntP(flagBaudrate, "b", 115200, "serial baud rate")
	f.Uint32(flagBitrate, 500_000, "CAN bit rate")
	_ = cmd.MarkFlagRequired(flagPort)
}

func setupLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(h).With("app", "cantool")
}
