// Package config loads the application's single Config struct via viper,
// following the teacher's search-path and per-OS tuning pattern.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/lanwave/radio/internal/platform"
)

// Config is the root configuration struct, unmarshalled from YAML plus
// environment overrides (RADIO_* prefix).
type Config struct {
	Debug bool `mapstructure:"debug"`

	Audio struct {
		SampleRate      int     `mapstructure:"sample_rate"`
		Channels        int     `mapstructure:"channels"`
		ChunkSize       int     `mapstructure:"chunk_size"`
		BufferSeconds   float64 `mapstructure:"buffer_seconds"`
		DefaultVolume   float64 `mapstructure:"default_volume"`
		GamingMode      bool    `mapstructure:"gaming_mode"`
		MinBufferRatio  float64 `mapstructure:"min_buffer_ratio"`
		EchoDelayMS     float64 `mapstructure:"echo_delay_ms"`
		EchoFeedback    float64 `mapstructure:"echo_feedback"`
		EchoWet         float64 `mapstructure:"echo_wet"`
		PlatformOptimal bool    `mapstructure:"platform_optimal"`
	} `mapstructure:"audio"`

	Shuffler struct {
		HistorySize   int `mapstructure:"history_size"`
		ArtistSpacing int `mapstructure:"artist_spacing"`
	} `mapstructure:"shuffler"`

	Search struct {
		MaxResults     int     `mapstructure:"max_results"`
		FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	} `mapstructure:"search"`

	Lyrics struct {
		Endpoint      string  `mapstructure:"endpoint"`
		CacheTTLHours int     `mapstructure:"cache_ttl_hours"`
		BatchSize     int     `mapstructure:"batch_size"`
		FlushInterval int     `mapstructure:"flush_interval_seconds"`
		RateLimitRPS  float64 `mapstructure:"rate_limit_rps"`
		WorkerPool    int     `mapstructure:"worker_pool"`
		TimeoutSecs   int     `mapstructure:"timeout_seconds"`
	} `mapstructure:"lyrics"`

	Radio struct {
		HostPort          int     `mapstructure:"host_port"`
		ClientPollMS      int     `mapstructure:"client_poll_ms"`
		DriftToleranceSec float64 `mapstructure:"drift_tolerance_seconds"`
		ScanConcurrency   int     `mapstructure:"scan_concurrency"`
		ScanTimeoutMS     int     `mapstructure:"scan_timeout_ms"`
	} `mapstructure:"radio"`

	Recommend struct {
		SaveIntervalSeconds int `mapstructure:"save_interval_seconds"`
	} `mapstructure:"recommend"`

	Storage struct {
		LibraryDBPath string `mapstructure:"library_db_path"`
		CacheDir      string `mapstructure:"cache_dir"`
		LibraryDir    string `mapstructure:"library_dir"`
	} `mapstructure:"storage"`

	Download struct {
		MaxConcurrent int    `mapstructure:"max_concurrent"`
		ChunkSize     int    `mapstructure:"chunk_size"`
		TempDir       string `mapstructure:"temp_dir"`
		UserAgent     string `mapstructure:"user_agent"`
	} `mapstructure:"download"`
}

// Load reads configuration from configPath (if non-empty) or the platform
// search chain, applies defaults, and returns the unmarshalled Config.
// No config file found on the search chain is not an error; an explicit
// configPath that cannot be read is.
func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := platform.ConfigDir()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(configDir)
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("RADIO")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, err
	}

	optimizeForPlatform(&cfg)

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("debug", false)

	dataDir, _ := platform.DataDir()
	cacheDir, _ := platform.CacheDir()

	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("audio.channels", 2)
	viper.SetDefault("audio.chunk_size", 8192)
	viper.SetDefault("audio.buffer_seconds", 10.0)
	viper.SetDefault("audio.default_volume", 0.1)
	viper.SetDefault("audio.gaming_mode", false)
	viper.SetDefault("audio.min_buffer_ratio", 0.2)
	viper.SetDefault("audio.echo_delay_ms", 350.0)
	viper.SetDefault("audio.echo_feedback", 0.35)
	viper.SetDefault("audio.echo_wet", 0.5)
	viper.SetDefault("audio.platform_optimal", true)

	viper.SetDefault("shuffler.history_size", 50)
	viper.SetDefault("shuffler.artist_spacing", 2)

	viper.SetDefault("search.max_results", 50)
	viper.SetDefault("search.fuzzy_threshold", 0.7)

	viper.SetDefault("lyrics.cache_ttl_hours", 24*7)
	viper.SetDefault("lyrics.batch_size", 10)
	viper.SetDefault("lyrics.flush_interval_seconds", 30)
	viper.SetDefault("lyrics.rate_limit_rps", 5.0)
	viper.SetDefault("lyrics.worker_pool", 5)
	viper.SetDefault("lyrics.timeout_seconds", 10)

	viper.SetDefault("radio.host_port", 8080)
	viper.SetDefault("radio.client_poll_ms", 500)
	viper.SetDefault("radio.drift_tolerance_seconds", 0.10)
	viper.SetDefault("radio.scan_concurrency", 50)
	viper.SetDefault("radio.scan_timeout_ms", 300)

	viper.SetDefault("recommend.save_interval_seconds", 60)

	viper.SetDefault("storage.library_db_path", filepath.Join(dataDir, "library.db"))
	viper.SetDefault("storage.cache_dir", cacheDir)
	viper.SetDefault("storage.library_dir", filepath.Join(dataDir, "library"))

	viper.SetDefault("download.max_concurrent", 3)
	viper.SetDefault("download.chunk_size", 32*1024)
	viper.SetDefault("download.temp_dir", filepath.Join(cacheDir, "downloads"))
	viper.SetDefault("download.user_agent", "lanwave-radio/1.0")
}

func getDefaultBufferSize() int {
	switch runtime.GOOS {
	case "linux":
		return 16384
	case "windows", "darwin":
		return 8192
	default:
		return 16384
	}
}

func optimizeForPlatform(cfg *Config) {
	if !cfg.Audio.PlatformOptimal {
		return
	}
	if cfg.Audio.ChunkSize < 8192 {
		cfg.Audio.ChunkSize = getDefaultBufferSize()
	}
}

func ensureDirectories(cfg *Config) error {
	dirs := []string{
		filepath.Dir(cfg.Storage.LibraryDBPath),
		cfg.Storage.CacheDir,
		cfg.Storage.LibraryDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the current configuration back to the platform config dir.
func (c *Config) Save() error {
	configDir, err := platform.ConfigDir()
	if err != nil {
		return err
	}
	if err := platform.EnsureDir(configDir); err != nil {
		return err
	}
	return viper.WriteConfigAs(filepath.Join(configDir, "config.yaml"))
}
