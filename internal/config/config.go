package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LanguageCode string           `yaml:"language_code"`
	Transcribe   TranscribeConfig `yaml:"transcribe"`
	FFmpeg       FFmpegConfig     `yaml:"ffmpeg"`
	LogLevel     string           `yaml:"log_level"`
	LogFormat    string           `yaml:"log_format"` // "console" or "json"
}

// TranscribeConfig selects and configures the speech backend.
type TranscribeConfig struct {
	Backend string `yaml:"backend"` // "google" or "whisper"

	// Google Speech-to-Text.
	Model           string `yaml:"model"`
	CredentialsFile string `yaml:"credentials_file"`
	Endpoint        string `yaml:"endpoint"`

	// OpenAI Whisper.
	OpenAIModel   string `yaml:"openai_model"`
	OpenAIBaseURL string `yaml:"openai_base_url"`
	OpenAIAPIKey  string `yaml:"-"` // environment only

	Timeout time.Duration `yaml:"timeout"`
}

// FFmpegConfig configures the external conversion step.
type FFmpegConfig struct {
	Path     string        `yaml:"path"`
	Disabled bool          `yaml:"disabled"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Environment variables read by ApplyEnv.
const (
	EnvLanguage        = "RECEIPT_STT_LANGUAGE"
	EnvLogLevel        = "RECEIPT_STT_LOG_LEVEL"
	EnvBackend         = "RECEIPT_STT_BACKEND"
	EnvGoogleCreds     = "GOOGLE_APPLICATION_CREDENTIALS"
	EnvOpenAIKey       = "OPENAI_API_KEY"
	EnvFFmpegPath      = "FFMPEG_PATH"
	DefaultLanguage    = "en-US"
	DefaultGoogleModel = "latest_long"
)

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "receipt-stt")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LanguageCode: DefaultLanguage,
		Transcribe: TranscribeConfig{
			Backend:     "google",
			Model:       DefaultGoogleModel,
			OpenAIModel: "whisper-1",
			Timeout:     2 * time.Minute,
		},
		FFmpeg: FFmpegConfig{
			Path:    "ffmpeg",
			Timeout: time.Minute,
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Transcribe.CredentialsFile = expandTilde(cfg.Transcribe.CredentialsFile)
	cfg.FFmpeg.Path = expandTilde(cfg.FFmpeg.Path)

	return cfg, nil
}

// LoadEnv loads KEY=value pairs from a dotenv file into the process
// environment. A missing file is not an error. Variables already set win.
func LoadEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment variables on the config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvLanguage); v != "" {
		c.LanguageCode = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvBackend); v != "" {
		c.Transcribe.Backend = v
	}
	if v := os.Getenv(EnvGoogleCreds); v != "" && c.Transcribe.CredentialsFile == "" {
		c.Transcribe.CredentialsFile = expandTilde(v)
	}
	if v := os.Getenv(EnvOpenAIKey); v != "" {
		c.Transcribe.OpenAIAPIKey = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		c.FFmpeg.Path = expandTilde(v)
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.LanguageCode) == "" {
		return fmt.Errorf("language_code must not be empty")
	}

	switch c.Transcribe.Backend {
	case "google":
		if c.Transcribe.Model == "" {
			return fmt.Errorf("transcribe.model must not be empty for the google backend")
		}
	case "whisper":
		if c.Transcribe.OpenAIAPIKey == "" {
			return fmt.Errorf("whisper backend requires %s to be set", EnvOpenAIKey)
		}
		if c.Transcribe.OpenAIModel == "" {
			return fmt.Errorf("transcribe.openai_model must not be empty for the whisper backend")
		}
	default:
		return fmt.Errorf("transcribe.backend must be \"google\" or \"whisper\", got %q", c.Transcribe.Backend)
	}

	if c.Transcribe.Timeout < 0 {
		return fmt.Errorf("transcribe.timeout must be >= 0")
	}

	if !c.FFmpeg.Disabled && c.FFmpeg.Path == "" {
		return fmt.Errorf("ffmpeg.path must not be empty unless ffmpeg.disabled is set")
	}
	if c.FFmpeg.Timeout < 0 {
		return fmt.Errorf("ffmpeg.timeout must be >= 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be \"console\" or \"json\", got %q", c.LogFormat)
	}

	return nil
}

// ParseLogLevel maps a config log level to a zerolog level. Unknown values
// map to info.
func ParseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

const defaultHeader = `# receipt-stt configuration
#
# transcribe.backend: google (Speech-to-Text v1) or whisper (OpenAI).
# Credentials come from the environment: GOOGLE_APPLICATION_CREDENTIALS or
# OPENAI_API_KEY, optionally loaded from a .env file.

`

// WriteDefault writes the default config to DefaultConfigPath. It returns the
// written path, or "" without error when a config file already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}

	body, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(defaultHeader), body...), 0o644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
