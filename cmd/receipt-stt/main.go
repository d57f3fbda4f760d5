package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chaz8081/receipt-stt/internal/config"
	"github.com/chaz8081/receipt-stt/internal/ffmpeg"
	"github.com/chaz8081/receipt-stt/internal/logging"
	"github.com/chaz8081/receipt-stt/internal/transcode"
)

var (
	configPath string
	envFile    string
	logLevel   string

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "receipt-stt",
	Short:         "Transcribe spoken receipts and expense memos",
	SilenceUsage:  true,
	SilenceErrors: false,
	Long: `receipt-stt normalizes uploaded audio (wav, mp3, flac, ogg, webm, m4a)
to 16kHz mono PCM and sends it to a speech-to-text backend.

Configuration is read from ~/.config/receipt-stt/config.yaml when present,
then overridden by environment variables and a .env file.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadEnv(envFile); err != nil {
			return err
		}
		c, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		c.ApplyEnv()
		if cmd.Flags().Changed("log-level") {
			c.LogLevel = logLevel
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("config validation: %w", err)
		}
		cfg = c
		logger = logging.FromConfig(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default: ~/.config/receipt-stt/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		c, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		return c, nil
	}
	return config.Default(), nil
}

// newTranscoder builds the default strategy chain from cfg.
func newTranscoder(obs transcode.Observer) *transcode.Transcoder {
	var conv *ffmpeg.Converter
	if !cfg.FFmpeg.Disabled {
		conv = ffmpeg.New(cfg.FFmpeg.Path,
			ffmpeg.WithTimeout(cfg.FFmpeg.Timeout),
			ffmpeg.WithLogger(logging.Component(logger, "ffmpeg")),
		)
	}

	opts := []transcode.Option{transcode.WithLogger(logging.Component(logger, "transcode"))}
	if obs != nil {
		opts = append(opts, transcode.WithObserver(obs))
	}
	return transcode.NewDefault(conv, opts...)
}
