package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

// AppName is used for XDG directories and the config file location
const AppName = "sonido-critique"

// Config is the complete application configuration
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Analyzers AnalyzersConfig `yaml:"analyzers"`
	Reference ReferenceConfig `yaml:"reference"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
	Server    ServerConfig    `yaml:"server"`
}

// PipelineConfig holds the time budgets of a single analysis run
type PipelineConfig struct {
	Deadline            time.Duration `yaml:"deadline"`             // overall run deadline
	NormalizationBudget time.Duration `yaml:"normalization_budget"` // ffmpeg conversion
	MetadataBudget      time.Duration `yaml:"metadata_budget"`
	AnalyzerBudget      time.Duration `yaml:"analyzer_budget"` // per backend attempt
}

// TranscodeConfig controls ingestion and normalization
type TranscodeConfig struct {
	FFmpegPath    string  `yaml:"ffmpeg_path"`
	FFprobePath   string  `yaml:"ffprobe_path"`
	TempDir       string  `yaml:"temp_dir"`
	SampleRate    int     `yaml:"sample_rate"`
	TargetLUFS    float64 `yaml:"target_lufs"`
	TargetPeak    float64 `yaml:"target_peak"`
	LoudnessRange float64 `yaml:"loudness_range"`
	MaxFileSize   int64   `yaml:"max_file_size"` // bytes
}

// AnalyzersConfig controls backend selection
type AnalyzersConfig struct {
	AubioPath      string `yaml:"aubio_path"`
	DisablePrimary bool   `yaml:"disable_primary"`
}

// ReferenceConfig controls reference-profile resolution and harvesting
type ReferenceConfig struct {
	DatabasePath          string        `yaml:"database_path"`
	CacheDir              string        `yaml:"cache_dir"`
	ProfileTTL            time.Duration `yaml:"profile_ttl"`
	HarvestOnDemand       bool          `yaml:"harvest_on_demand"`
	HarvestTimeout        time.Duration `yaml:"harvest_timeout"`
	HarvestTrackLimit     int           `yaml:"harvest_track_limit"`
	DeezerBaseURL         string        `yaml:"deezer_base_url"`
	AudioDBBaseURL        string        `yaml:"audiodb_base_url"`
	AudioDBAPIKey         string        `yaml:"audiodb_api_key"`
	AcousticBrainzBaseURL string        `yaml:"acousticbrainz_base_url"`
	SpotifyClientID       string        `yaml:"spotify_client_id"`
	SpotifyClientSecret   string        `yaml:"spotify_client_secret"`
	RequestTimeout        time.Duration `yaml:"request_timeout"`
	MaxRetries            int           `yaml:"max_retries"`
	RetryBackoff          time.Duration `yaml:"retry_backoff"`
}

// FeedbackConfig controls the LLM collaborator
type FeedbackConfig struct {
	OllamaHost string        `yaml:"ollama_host"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ServerConfig controls the HTTP server and its job queue
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	GinMode        string   `yaml:"gin_mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Workers        int      `yaml:"workers"`
	QueueSize      int      `yaml:"queue_size"`
	UploadDir      string   `yaml:"upload_dir"`
}

// Default returns a configuration with every value populated
func Default() *Config {
	cacheRoot := filepath.Join(xdg.CacheHome, AppName)

	return &Config{
		LogLevel: "info",
		Pipeline: PipelineConfig{
			Deadline:            25 * time.Second,
			NormalizationBudget: 12 * time.Second,
			MetadataBudget:      3 * time.Second,
			AnalyzerBudget:      8 * time.Second,
		},
		Transcode: TranscodeConfig{
			FFmpegPath:    "ffmpeg",
			FFprobePath:   "ffprobe",
			TempDir:       os.TempDir(),
			SampleRate:    44100,
			TargetLUFS:    -14.0,
			TargetPeak:    -1.0,
			LoudnessRange: 11.0,
			MaxFileSize:   25 << 20,
		},
		Analyzers: AnalyzersConfig{
			AubioPath: "aubio",
		},
		Reference: ReferenceConfig{
			DatabasePath:          filepath.Join(cacheRoot, "profiles.db"),
			CacheDir:              filepath.Join(cacheRoot, "http"),
			ProfileTTL:            7 * 24 * time.Hour,
			HarvestTimeout:        10 * time.Second,
			HarvestTrackLimit:     10,
			DeezerBaseURL:         "https://api.deezer.com",
			AudioDBBaseURL:        "https://www.theaudiodb.com/api/v1/json",
			AcousticBrainzBaseURL: "https://acousticbrainz.org/api/v1",
			RequestTimeout:        5 * time.Second,
			MaxRetries:            3,
			RetryBackoff:          500 * time.Millisecond,
		},
		Feedback: FeedbackConfig{
			OllamaHost: "http://localhost:11434",
			Model:      "llama3",
			Timeout:    25 * time.Second,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			GinMode:        "release",
			AllowedOrigins: []string{"http://localhost:3000"},
			Workers:        2,
			QueueSize:      100,
			UploadDir:      os.TempDir(),
		},
	}
}

// Load builds a configuration from defaults, an optional YAML file and the environment.
// An empty path searches the XDG config directories; a missing file there is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if found, err := xdg.SearchConfigFile(filepath.Join(AppName, "config.yaml")); err == nil {
			path = found
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays environment overrides using the given lookup function
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	setString("SONIDO_LOG_LEVEL", &c.LogLevel)
	setString("SONIDO_FFMPEG", &c.Transcode.FFmpegPath)
	setString("SONIDO_FFPROBE", &c.Transcode.FFprobePath)
	setString("SONIDO_AUBIO", &c.Analyzers.AubioPath)
	setDuration("SONIDO_PIPELINE_DEADLINE", &c.Pipeline.Deadline)

	setString("OLLAMA_HOST", &c.Feedback.OllamaHost)
	setString("OLLAMA_MODEL", &c.Feedback.Model)

	setString("AUDIO_DB_API_KEY", &c.Reference.AudioDBAPIKey)
	setString("SPOTIFY_CLIENT_ID", &c.Reference.SpotifyClientID)
	setString("SPOTIFY_CLIENT_SECRET", &c.Reference.SpotifyClientSecret)
	setInt("SONIDO_MAX_RETRIES", &c.Reference.MaxRetries)
	if v, ok := lookup("SONIDO_RETRY_BACKOFF_MS"); ok && v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("SONIDO_RETRY_BACKOFF_MS: %w", err))
		} else {
			c.Reference.RetryBackoff = time.Duration(ms) * time.Millisecond
		}
	}

	setString("GIN_MODE", &c.Server.GinMode)
	if v, ok := lookup("PORT"); ok && v != "" {
		c.Server.Addr = ":" + strings.TrimPrefix(v, ":")
	}

	return errors.Join(errs...)
}

// Validate checks the budgets and limits for consistency
func (c *Config) Validate() error {
	p := c.Pipeline
	if p.Deadline <= 0 {
		return fmt.Errorf("pipeline deadline must be positive")
	}
	if p.NormalizationBudget <= 0 || p.MetadataBudget <= 0 || p.AnalyzerBudget <= 0 {
		return fmt.Errorf("pipeline stage budgets must be positive")
	}
	if p.AnalyzerBudget > p.Deadline {
		return fmt.Errorf("analyzer budget %s exceeds pipeline deadline %s", p.AnalyzerBudget, p.Deadline)
	}
	if c.Transcode.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if c.Transcode.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive")
	}
	if c.Server.Workers <= 0 || c.Server.QueueSize <= 0 {
		return fmt.Errorf("server workers and queue size must be positive")
	}
	if c.Reference.MaxRetries < 1 {
		return fmt.Errorf("max retries must be at least 1")
	}
	return nil
}
