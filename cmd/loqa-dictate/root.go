package main

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/loqalabs/loqa-dictate/internal/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

const defaultConfigPath = "loqa-dictate.yaml"

// globalFlags are shared by every subcommand and applied on top of the file
// and environment configuration.
type globalFlags struct {
	configPath  string
	modelPath   string
	noClipboard bool
	noUI        bool
	debug       bool
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "loqa-dictate",
		Short: "Push-to-talk dictation with local transcription",
		Long: `loqa-dictate records speech on demand, transcribes it and delivers the
text to the clipboard, a file or the terminal.

Press space in the terminal UI (or POST /v1/toggle) to start recording and
again to stop. Recording also stops after a pause in speech or when the
maximum duration is reached.`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDictation(cmd, flags)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", defaultConfigPath, "Path to configuration file")
	pf.StringVar(&flags.modelPath, "model", "", "Override the speech model path")
	pf.BoolVar(&flags.noClipboard, "no-clipboard", false, "Do not copy transcripts to the clipboard")
	pf.BoolVar(&flags.noUI, "no-ui", false, "Run without the terminal UI")
	pf.BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newRunCommand(flags))
	cmd.AddCommand(newConfigCommand(flags))
	cmd.AddCommand(newTranscribeCommand(flags))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// loadConfig reads the config file, falling back to defaults when the default
// path does not exist, then applies command line overrides.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	path := flags.configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if flags.modelPath != "" {
		cfg.STT.ModelPath = flags.modelPath
	}
	if flags.noClipboard {
		cfg.Output.Clipboard = false
	}
	if flags.noUI {
		cfg.UI.Enabled = false
	}
	if flags.debug {
		cfg.Telemetry.LogLevel = "debug"
	}
	return cfg, config.Validate(cfg)
}

// newLogger builds the process logger. Logs go to stderr because stdout is
// owned by the terminal UI and the result block.
func newLogger(cfg config.TelemetryConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
