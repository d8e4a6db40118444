package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/text/language"
)

// Config holds all application configuration, read from environment
// variables with sensible defaults.
//
// Environment Variables:
// Speech-to-text:
// - STT_API_KEY: API key for the transcription provider (required)
// - STT_API_URL: Transcription endpoint URL (default: https://api.openai.com/v1/audio/transcriptions)
// - STT_MODEL: Model name (default: whisper-1)
// - STT_WORD_TIMESTAMPS: Request word-level timestamps (default: false)
// - STT_MAX_WINDOW_SECONDS: Max audio window per request (default: 600)
//
// Translation:
// - TARGET_LANGUAGE: Default translation target (default: es)
// - TRANSLATE_API_URL: Override for the translation endpoint (optional)
// - CRON_EXPR: Library rescan schedule (default: 0 * * * *)
//
// Media:
// - FFMPEG_PATH / FFPROBE_PATH: Binary overrides (default: ffmpeg / ffprobe)
// - SOURCES_FILE: Library sources yaml (default: /app/config/sources.yaml)
//
// HTTP:
// - HTTP_ADDR: Listen address (default: :8080)
// - UI_ENABLED: Serve the bundled web UI (default: false)
// - UI_STATIC_DIR: Web UI asset directory (default: /app/web)
//
// Jobs:
// - JOB_WORKERS: Concurrent transcription workers (default: 1)
//
// System:
// - DATA_DIR: Writable state directory (default: /app/data)
// - TZ: Timezone (default: UTC)

type Config struct {
	STT       STTConfig       `json:"stt"`
	Translate TranslateConfig `json:"translate"`
	Media     MediaConfig     `json:"media"`
	HTTP      HTTPConfig      `json:"http"`
	Jobs      JobsConfig      `json:"jobs"`
	System    SystemConfig    `json:"system"`
}

// STTConfig holds the configuration for the speech-to-text client.
type STTConfig struct {
	APIKey           string `json:"api_key"`
	APIURL           string `json:"api_url"`
	Model            string `json:"model"`
	WordTimestamps   bool   `json:"word_timestamps"`
	MaxWindowSeconds int    `json:"max_window_seconds"`
}

type TranslateConfig struct {
	TargetLanguage language.Tag `json:"target_language"`
	APIURL         string       `json:"api_url"`
	CronExpr       string       `json:"cron_expr"`
}

type MediaConfig struct {
	FFmpegPath  string `json:"ffmpeg_path"`
	FFprobePath string `json:"ffprobe_path"`
	SourcesFile string `json:"sources_file"`
}

type HTTPConfig struct {
	Addr      string `json:"addr"`
	UIEnabled bool   `json:"ui_enabled"`
	StaticDir string `json:"static_dir"`
}

type JobsConfig struct {
	Workers int `json:"workers"`
}

type SystemConfig struct {
	DataDir string `json:"data_dir"`
	TZ      string `json:"tz"`
}

// DBPath is where the job queue keeps its sqlite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.System.DataDir, "audioscribe.db")
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	targetLanguage, err := language.Parse(getEnvString("TARGET_LANGUAGE", "es"))
	if err != nil {
		return nil, fmt.Errorf("invalid TARGET_LANGUAGE: %w", err)
	}

	config := &Config{
		STT: STTConfig{
			APIKey:           getEnvString("STT_API_KEY", ""),
			APIURL:           getEnvString("STT_API_URL", "https://api.openai.com/v1/audio/transcriptions"),
			Model:            getEnvString("STT_MODEL", "whisper-1"),
			WordTimestamps:   getEnvBool("STT_WORD_TIMESTAMPS", false),
			MaxWindowSeconds: getEnvInt("STT_MAX_WINDOW_SECONDS", 600),
		},
		Translate: TranslateConfig{
			TargetLanguage: targetLanguage,
			APIURL:         getEnvString("TRANSLATE_API_URL", ""),
			CronExpr:       getEnvString("CRON_EXPR", "0 * * * *"),
		},
		Media: MediaConfig{
			FFmpegPath:  getEnvString("FFMPEG_PATH", "ffmpeg"),
			FFprobePath: getEnvString("FFPROBE_PATH", "ffprobe"),
			SourcesFile: getEnvString("SOURCES_FILE", "/app/config/sources.yaml"),
		},
		HTTP: HTTPConfig{
			Addr:      getEnvString("HTTP_ADDR", ":8080"),
			UIEnabled: getEnvBool("UI_ENABLED", false),
			StaticDir: getEnvString("UI_STATIC_DIR", "/app/web"),
		},
		Jobs: JobsConfig{
			Workers: getEnvInt("JOB_WORKERS", 1),
		},
		System: SystemConfig{
			DataDir: getEnvString("DATA_DIR", "/app/data"),
			TZ:      getEnvString("TZ", "UTC"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.STT.APIKey == "" {
		return fmt.Errorf("STT_API_KEY is required")
	}
	if c.STT.MaxWindowSeconds <= 0 {
		return fmt.Errorf("STT_MAX_WINDOW_SECONDS must be positive")
	}
	if c.Jobs.Workers <= 0 {
		return fmt.Errorf("JOB_WORKERS must be positive")
	}
	return nil
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool gets a boolean value from environment variables with default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
