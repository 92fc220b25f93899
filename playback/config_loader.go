package playback

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads playback configuration from the playback.*
// keys of the global viper instance, on top of the defaults.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Coordinator settings
	if viper.IsSet("playback.tick_interval") {
		cfg.TickInterval = viper.GetDuration("playback.tick_interval")
	}
	if viper.IsSet("playback.open_timeout") {
		cfg.OpenTimeout = viper.GetDuration("playback.open_timeout")
	}
	if viper.IsSet("playback.auto_advance") {
		cfg.AutoAdvance = viper.GetBool("playback.auto_advance")
	}

	// Narration settings
	if viper.IsSet("playback.narrator") {
		cfg.Narrator = viper.GetString("playback.narrator")
	}
	if viper.IsSet("playback.default_speed") {
		cfg.DefaultSpeed = viper.GetFloat64("playback.default_speed")
	}

	// Target selection
	if viper.IsSet("playback.preference") {
		cfg.Preference = viper.GetString("playback.preference")
	}
	if viper.IsSet("playback.auto_fallback") {
		cfg.AutoFallback = viper.GetBool("playback.auto_fallback")
	}

	cfg.Stream = loadStreamConfig()
	cfg.Piper = loadPiperConfig()
	cfg.Google = loadGoogleConfig()
	cfg.Cache = loadCacheConfig()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid playback configuration: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromEnv loads playback configuration from RECITAL_*
// environment variables.
func LoadConfigFromEnv() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid playback configuration: %w", err)
	}
	return cfg, nil
}

func loadStreamConfig() StreamConfig {
	cfg := DefaultStreamConfig()

	if viper.IsSet("playback.stream.assets_dir") {
		cfg.AssetsDir = viper.GetString("playback.stream.assets_dir")
	}
	if viper.IsSet("playback.stream.http_timeout") {
		cfg.HTTPTimeout = viper.GetDuration("playback.stream.http_timeout")
	}
	if viper.IsSet("playback.stream.max_download") {
		cfg.MaxDownload = viper.GetInt64("playback.stream.max_download")
	}
	if viper.IsSet("playback.stream.user_agent") {
		cfg.UserAgent = viper.GetString("playback.stream.user_agent")
	}
	if viper.IsSet("playback.stream.resample_quality") {
		cfg.ResampleQual = viper.GetInt("playback.stream.resample_quality")
	}
	return cfg
}

func loadPiperConfig() PiperConfig {
	cfg := DefaultPiperConfig()

	if viper.IsSet("playback.piper.binary") {
		cfg.Binary = viper.GetString("playback.piper.binary")
	}
	if viper.IsSet("playback.piper.model") {
		cfg.Model = viper.GetString("playback.piper.model")
	}
	if viper.IsSet("playback.piper.model_path") {
		cfg.ModelPath = viper.GetString("playback.piper.model_path")
	}
	if viper.IsSet("playback.piper.speaker_id") {
		cfg.SpeakerID = viper.GetInt("playback.piper.speaker_id")
	}
	if viper.IsSet("playback.piper.sample_rate") {
		cfg.SampleRate = viper.GetInt("playback.piper.sample_rate")
	}
	if viper.IsSet("playback.piper.timeout") {
		cfg.Timeout = viper.GetDuration("playback.piper.timeout")
	}
	return cfg
}

func loadGoogleConfig() GoogleConfig {
	cfg := DefaultGoogleConfig()

	if viper.IsSet("playback.google.base_url") {
		cfg.BaseURL = viper.GetString("playback.google.base_url")
	}
	if viper.IsSet("playback.google.language") {
		cfg.Language = viper.GetString("playback.google.language")
	}
	if viper.IsSet("playback.google.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("playback.google.requests_per_minute")
	}
	if viper.IsSet("playback.google.timeout") {
		cfg.Timeout = viper.GetDuration("playback.google.timeout")
	}
	return cfg
}

func loadCacheConfig() CacheConfig {
	cfg := DefaultCacheConfig()

	if viper.IsSet("playback.cache.enabled") {
		cfg.Enabled = viper.GetBool("playback.cache.enabled")
	}
	if viper.IsSet("playback.cache.dir") {
		cfg.Dir = viper.GetString("playback.cache.dir")
	}
	if viper.IsSet("playback.cache.memory_mb") {
		cfg.MemoryMB = viper.GetInt("playback.cache.memory_mb")
	}
	if viper.IsSet("playback.cache.disk_mb") {
		cfg.DiskMB = viper.GetInt("playback.cache.disk_mb")
	}
	if viper.IsSet("playback.cache.ttl") {
		cfg.TTL = viper.GetDuration("playback.cache.ttl")
	}
	return cfg
}
