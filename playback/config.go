package playback

import (
	"fmt"
	"strings"
	"time"
)

// Config contains all playback configuration options.
type Config struct {
	// Coordinator settings
	TickInterval time.Duration `yaml:"tick_interval" env:"RECITAL_TICK_INTERVAL" envDefault:"250ms"`
	OpenTimeout  time.Duration `yaml:"open_timeout" env:"RECITAL_OPEN_TIMEOUT" envDefault:"20s"`
	AutoAdvance  bool          `yaml:"auto_advance" env:"RECITAL_AUTO_ADVANCE" envDefault:"false"`

	// Narration settings
	Narrator     string  `yaml:"narrator" env:"RECITAL_NARRATOR" envDefault:"piper"`
	DefaultSpeed float64 `yaml:"default_speed" env:"RECITAL_DEFAULT_SPEED" envDefault:"1.0"`

	// Target selection
	Preference   string `yaml:"preference" env:"RECITAL_PREFERENCE" envDefault:"auto"`
	AutoFallback bool   `yaml:"auto_fallback" env:"RECITAL_AUTO_FALLBACK" envDefault:"false"`

	// Engine-specific configurations
	Stream StreamConfig `yaml:"stream"`
	Piper  PiperConfig  `yaml:"piper"`
	Google GoogleConfig `yaml:"google"`
	Cache  CacheConfig  `yaml:"cache"`
}

// StreamConfig contains recorded audio engine settings.
type StreamConfig struct {
	AssetsDir    string        `yaml:"assets_dir" env:"RECITAL_ASSETS_DIR"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"RECITAL_HTTP_TIMEOUT" envDefault:"30s"`
	MaxDownload  int64         `yaml:"max_download" env:"RECITAL_MAX_DOWNLOAD" envDefault:"134217728"`
	UserAgent    string        `yaml:"user_agent" env:"RECITAL_USER_AGENT" envDefault:"recital"`
	ResampleQual int           `yaml:"resample_quality" env:"RECITAL_RESAMPLE_QUALITY" envDefault:"4"`
}

// PiperConfig contains piper narration engine settings.
type PiperConfig struct {
	Binary     string        `yaml:"binary" env:"RECITAL_PIPER_BINARY" envDefault:"piper"`
	Model      string        `yaml:"model" env:"RECITAL_PIPER_MODEL" envDefault:"en_US-lessac-medium"`
	ModelPath  string        `yaml:"model_path" env:"RECITAL_PIPER_MODEL_PATH"`
	SpeakerID  int           `yaml:"speaker_id" env:"RECITAL_PIPER_SPEAKER_ID" envDefault:"0"`
	SampleRate int           `yaml:"sample_rate" env:"RECITAL_PIPER_SAMPLE_RATE" envDefault:"22050"`
	Timeout    time.Duration `yaml:"timeout" env:"RECITAL_PIPER_TIMEOUT" envDefault:"30s"`
}

// GoogleConfig contains the network narration engine settings.
type GoogleConfig struct {
	BaseURL           string        `yaml:"base_url" env:"RECITAL_GOOGLE_BASE_URL" envDefault:"https://translate.google.com/translate_tts"`
	Language          string        `yaml:"language" env:"RECITAL_GOOGLE_LANGUAGE" envDefault:"en"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"RECITAL_GOOGLE_RPM" envDefault:"30"`
	Timeout           time.Duration `yaml:"timeout" env:"RECITAL_GOOGLE_TIMEOUT" envDefault:"10s"`
}

// CacheConfig contains the synthesized line cache settings.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" env:"RECITAL_CACHE_ENABLED" envDefault:"true"`
	Dir      string        `yaml:"dir" env:"RECITAL_CACHE_DIR"`
	MemoryMB int           `yaml:"memory_mb" env:"RECITAL_CACHE_MEMORY_MB" envDefault:"32"`
	DiskMB   int           `yaml:"disk_mb" env:"RECITAL_CACHE_DISK_MB" envDefault:"256"`
	TTL      time.Duration `yaml:"ttl" env:"RECITAL_CACHE_TTL" envDefault:"720h"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TickInterval: 250 * time.Millisecond,
		OpenTimeout:  20 * time.Second,
		AutoAdvance:  false,

		Narrator:     "piper",
		DefaultSpeed: DefaultSpeed,

		Preference:   PreferenceAuto.String(),
		AutoFallback: false,

		Stream: DefaultStreamConfig(),
		Piper:  DefaultPiperConfig(),
		Google: DefaultGoogleConfig(),
		Cache:  DefaultCacheConfig(),
	}
}

// DefaultStreamConfig returns default recorded audio engine settings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		HTTPTimeout:  30 * time.Second,
		MaxDownload:  128 << 20,
		UserAgent:    "recital",
		ResampleQual: 4,
	}
}

// DefaultPiperConfig returns default piper settings.
func DefaultPiperConfig() PiperConfig {
	return PiperConfig{
		Binary:     "piper",
		Model:      "en_US-lessac-medium",
		SampleRate: 22050,
		Timeout:    30 * time.Second,
	}
}

// DefaultGoogleConfig returns default network narration settings.
func DefaultGoogleConfig() GoogleConfig {
	return GoogleConfig{
		BaseURL:           "https://translate.google.com/translate_tts",
		Language:          "en",
		RequestsPerMinute: 30,
		Timeout:           10 * time.Second,
	}
}

// DefaultCacheConfig returns default line cache settings.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled:  true,
		MemoryMB: 32,
		DiskMB:   256,
		TTL:      30 * 24 * time.Hour,
	}
}

// Narrators lists the accepted values of Config.Narrator.
var Narrators = []string{"piper", "google", "none"}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.TickInterval < 10*time.Millisecond {
		return fmt.Errorf("%w: tick_interval must be at least 10ms, got %v", ErrInvalidConfig, c.TickInterval)
	}
	if c.OpenTimeout < time.Second {
		return fmt.Errorf("%w: open_timeout must be at least 1s, got %v", ErrInvalidConfig, c.OpenTimeout)
	}
	if !IsValidSpeed(c.DefaultSpeed) {
		return fmt.Errorf("%w: default_speed %.2f must be one of %v", ErrInvalidConfig, c.DefaultSpeed, SpeedSteps)
	}
	if _, err := ParsePreference(c.Preference); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	narratorValid := false
	for _, n := range Narrators {
		if strings.EqualFold(c.Narrator, n) {
			narratorValid = true
			c.Narrator = n
			break
		}
	}
	if !narratorValid {
		return fmt.Errorf("%w: narrator '%s' must be one of %v", ErrInvalidConfig, c.Narrator, Narrators)
	}

	if err := c.Stream.Validate(); err != nil {
		return fmt.Errorf("stream config: %w", err)
	}
	switch c.Narrator {
	case "piper":
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
	case "google":
		if err := c.Google.Validate(); err != nil {
			return fmt.Errorf("google config: %w", err)
		}
	}
	return c.Cache.Validate()
}

// Validate checks if the stream configuration is valid.
func (c *StreamConfig) Validate() error {
	if c.HTTPTimeout < time.Second {
		return fmt.Errorf("%w: http_timeout must be at least 1s, got %v", ErrInvalidConfig, c.HTTPTimeout)
	}
	if c.MaxDownload <= 0 {
		return fmt.Errorf("%w: max_download must be positive", ErrInvalidConfig)
	}
	if c.ResampleQual < 1 || c.ResampleQual > 6 {
		return fmt.Errorf("%w: resample_quality must be between 1 and 6, got %d", ErrInvalidConfig, c.ResampleQual)
	}
	return nil
}

// Validate checks if the piper configuration is valid.
func (c *PiperConfig) Validate() error {
	if c.Binary == "" {
		return fmt.Errorf("%w: piper binary path cannot be empty", ErrInvalidConfig)
	}
	if c.Model == "" && c.ModelPath == "" {
		return fmt.Errorf("%w: piper model cannot be empty", ErrInvalidConfig)
	}
	validSampleRates := []int{16000, 22050, 24000, 44100, 48000}
	for _, sr := range validSampleRates {
		if c.SampleRate == sr {
			if c.Timeout < time.Second {
				return fmt.Errorf("%w: timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Timeout)
			}
			return nil
		}
	}
	return fmt.Errorf("%w: invalid sample rate %d: must be one of %v", ErrInvalidConfig, c.SampleRate, validSampleRates)
}

// Validate checks if the network narration configuration is valid.
func (c *GoogleConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: google base_url cannot be empty", ErrInvalidConfig)
	}
	if c.RequestsPerMinute < 1 {
		return fmt.Errorf("%w: requests_per_minute must be at least 1, got %d", ErrInvalidConfig, c.RequestsPerMinute)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("%w: timeout must be at least 1 second, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// Validate checks if the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MemoryMB < 1 {
		return fmt.Errorf("%w: cache memory_mb must be at least 1, got %d", ErrInvalidConfig, c.MemoryMB)
	}
	if c.DiskMB < 0 {
		return fmt.Errorf("%w: cache disk_mb cannot be negative", ErrInvalidConfig)
	}
	return nil
}
