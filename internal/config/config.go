package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AVATARMAIL_STORAGE_ROOT.
const EnvPrefix = "AVATARMAIL"

// Config stores runtime configuration for the avatar mail backend.
type Config struct {
	Storage   StorageConfig   `mapstructure:"storage"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Recorder  RecorderConfig  `mapstructure:"recorder"`
	Avatars   AvatarsConfig   `mapstructure:"avatars"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Sentences SentencesConfig `mapstructure:"sentences"`
}

type StorageConfig struct {
	Root string `mapstructure:"root" validate:"required"`
}

type AudioConfig struct {
	RecorderCommand string `mapstructure:"recorder_command" validate:"required"`
	PlayerCommand   string `mapstructure:"player_command" validate:"required"`
	InputFormat     string `mapstructure:"input_format" validate:"required"`
	InputDevice     string `mapstructure:"input_device" validate:"required"`
	SampleRate      int    `mapstructure:"sample_rate" validate:"min=8000,max=192000"`
	Channels        int    `mapstructure:"channels" validate:"min=1,max=2"`
	ChunkSize       int    `mapstructure:"chunk_size" validate:"min=256"`
}

type RecorderConfig struct {
	TickInterval   time.Duration `mapstructure:"tick_interval" validate:"gt=0"`
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout" validate:"gt=0"`
}

type AvatarsConfig struct {
	Backend    string      `mapstructure:"backend" validate:"oneof=memory sqlite redis"`
	SQLitePath string      `mapstructure:"sqlite_path"`
	Redis      RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db" validate:"min=0"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type UploadConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url" validate:"required_if=Enabled true"`
	APIKey    string        `mapstructure:"api_key" validate:"required_if=Enabled true"`
	Workers   int           `mapstructure:"workers" validate:"min=1,max=16"`
	QueueSize int           `mapstructure:"queue_size" validate:"min=1"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type LogConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	ToFile     bool   `mapstructure:"to_file"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"min=1"`
	MaxBackups int    `mapstructure:"max_backups" validate:"min=0"`
}

type MetricsConfig struct {
	// ListenAddr enables the /metrics listener when set.
	ListenAddr string `mapstructure:"listen_addr"`
}

type SentencesConfig struct {
	Path string `mapstructure:"path"`
}

// Load resolves configuration from defaults, an optional YAML file and
// AVATARMAIL_* environment variables, in increasing priority. The file is
// $AVATARMAIL_CONFIG if set, else <user config dir>/avatarmail/config.yaml
// when it exists.
func Load() (Config, error) {
	return load(viper.New(), strings.TrimSpace(os.Getenv(EnvPrefix+"_CONFIG")))
}

func load(v *viper.Viper, explicitPath string) (Config, error) {
	appDir, err := appConfigDir()
	if err != nil {
		return Config{}, err
	}
	setDefaults(v, appDir)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigType("yaml")
	switch {
	case explicitPath != "":
		v.SetConfigFile(explicitPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %q: %w", explicitPath, err)
		}
	default:
		candidate := filepath.Join(appDir, "config.yaml")
		if _, statErr := os.Stat(candidate); statErr == nil {
			v.SetConfigFile(candidate)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("failed to read config file %q: %w", candidate, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.deriveDefaults()

	if err := validator.New().Struct(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Avatars.Backend == "redis" && strings.TrimSpace(cfg.Avatars.Redis.Addr) == "" {
		return Config{}, errors.New("invalid config: avatars.redis.addr is required for the redis backend")
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, appDir string) {
	v.SetDefault("storage.root", appDir)

	v.SetDefault("audio.recorder_command", "ffmpeg")
	v.SetDefault("audio.player_command", "ffplay")
	v.SetDefault("audio.input_format", "pulse")
	v.SetDefault("audio.input_device", "default")
	v.SetDefault("audio.sample_rate", 16000)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.chunk_size", 4096)

	v.SetDefault("recorder.tick_interval", 10*time.Millisecond)
	v.SetDefault("recorder.acquire_timeout", 3*time.Second)

	v.SetDefault("avatars.backend", "sqlite")
	v.SetDefault("avatars.sqlite_path", "")
	v.SetDefault("avatars.redis.addr", "")
	v.SetDefault("avatars.redis.password", "")
	v.SetDefault("avatars.redis.db", 0)
	v.SetDefault("avatars.redis.key_prefix", "avatarmail:")

	v.SetDefault("upload.enabled", false)
	v.SetDefault("upload.url", "")
	v.SetDefault("upload.api_key", "")
	v.SetDefault("upload.workers", 2)
	v.SetDefault("upload.queue_size", 16)
	v.SetDefault("upload.timeout", 2*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.to_file", true)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)

	v.SetDefault("metrics.listen_addr", "")
	v.SetDefault("sentences.path", "")
}

// deriveDefaults fills paths that hang off the storage root.
func (c *Config) deriveDefaults() {
	c.Storage.Root = strings.TrimSpace(c.Storage.Root)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Avatars.Backend = strings.ToLower(strings.TrimSpace(c.Avatars.Backend))
	if c.Storage.Root == "" {
		return
	}
	if c.Avatars.SQLitePath == "" {
		c.Avatars.SQLitePath = filepath.Join(c.Storage.Root, "avatars.sqlite")
	}
	if c.Log.File == "" {
		c.Log.File = filepath.Join(c.Storage.Root, "logs", "avatarmail.log")
	}
	if c.Sentences.Path == "" {
		c.Sentences.Path = filepath.Join(c.Storage.Root, "sentences.txt")
	}
}

func appConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, homeErr := os.UserHomeDir()
		if homeErr != nil {
			return "", errors.New("could not determine config directory")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "avatarmail"), nil
}
