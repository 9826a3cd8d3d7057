package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	Port   int    `mapstructure:"PORT"`
	APIKey string `mapstructure:"API_KEY" validate:"required"`

	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Polling / clipping
	RefreshIntervalSeconds int `mapstructure:"REFRESH_INTERVAL"`
	MaxClipDurationSeconds int `mapstructure:"MAX_CLIP_DURATION" validate:"gt=0"`

	// Filesystem layout. Temp buffers, clips, thumbnails and the catalog
	// snapshot all live under DataDir.
	DataDir string `mapstructure:"DATA_DIR"`

	// External collaborators
	UploadEndpoint  string `mapstructure:"UPLOAD_ENDPOINT" validate:"url"`
	UserAgent       string `mapstructure:"USER_AGENT"`
	FFmpegPath      string `mapstructure:"FFMPEG_PATH"`
	FFprobePath     string `mapstructure:"FFPROBE_PATH"`
	ChromePath      string `mapstructure:"CHROME_PATH"`
	CredentialsFile string `mapstructure:"CREDENTIALS_FILE"`

	// Per-platform enable flags
	TwitchEnabled  bool `mapstructure:"TWITCH_ENABLED"`
	PartiEnabled   bool `mapstructure:"PARTI_ENABLED"`
	DliveEnabled   bool `mapstructure:"DLIVE_ENABLED"`
	TrovoEnabled   bool `mapstructure:"TROVO_ENABLED"`
	KickEnabled    bool `mapstructure:"KICK_ENABLED"`
	YoutubeEnabled bool `mapstructure:"YOUTUBE_ENABLED"`
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func Load() (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("PORT", 8080)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("REFRESH_INTERVAL", 60)
	viper.SetDefault("MAX_CLIP_DURATION", 240)
	viper.SetDefault("DATA_DIR", "data")
	viper.SetDefault("UPLOAD_ENDPOINT", "https://uguu.se/upload")
	viper.SetDefault("USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/135.0.0.0 Safari/537.36")
	viper.SetDefault("FFMPEG_PATH", "ffmpeg")
	viper.SetDefault("FFPROBE_PATH", "ffprobe")
	viper.SetDefault("CREDENTIALS_FILE", "credentials.ini")
	viper.SetDefault("TWITCH_ENABLED", true)
	viper.SetDefault("PARTI_ENABLED", true)
	viper.SetDefault("DLIVE_ENABLED", true)
	viper.SetDefault("TROVO_ENABLED", true)
	viper.SetDefault("KICK_ENABLED", true)
	viper.SetDefault("YOUTUBE_ENABLED", true)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	slog.Info("Loaded configuration",
		"port", cfg.Port,
		"data_dir", cfg.DataDir,
		"refresh_interval", cfg.RefreshInterval(),
		"max_clip_duration", cfg.MaxClipDuration())

	return &cfg, nil
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalSeconds) * time.Second
}

func (c *Config) MaxClipDuration() time.Duration {
	return time.Duration(c.MaxClipDurationSeconds) * time.Second
}

func (c *Config) TempDir() string       { return filepath.Join(c.DataDir, "temp") }
func (c *Config) ClipsDir() string      { return filepath.Join(c.DataDir, "clips") }
func (c *Config) ThumbnailsDir() string { return filepath.Join(c.DataDir, "thumbnails") }
func (c *Config) CatalogPath() string   { return filepath.Join(c.DataDir, "catalog.json") }

// Enabled reports whether polling is switched on for the named platform.
func (c *Config) Enabled(platform string) bool {
	switch strings.ToLower(platform) {
	case "twitch":
		return c.TwitchEnabled
	case "parti":
		return c.PartiEnabled
	case "dlive":
		return c.DliveEnabled
	case "trovo":
		return c.TrovoEnabled
	case "kick":
		return c.KickEnabled
	case "youtube":
		return c.YoutubeEnabled
	default:
		return false
	}
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
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
