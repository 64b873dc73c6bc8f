package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const EnvPrefix = "RATELIMIT"

const (
	ClockSystem = "system"
	ClockRedis  = "redis"
)

type Config struct {
	Limits  LimitsConfig  `mapstructure:"limits"`
	Server  ServerConfig  `mapstructure:"server"`
	Clock   ClockConfig   `mapstructure:"clock"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Log     LogConfig     `mapstructure:"log"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// LimitsConfig holds the rps limits. A non-positive rps means unlimited.
type LimitsConfig struct {
	BucketWidthMs int64       `mapstructure:"bucketWidthMs"`
	Global        int         `mapstructure:"global"`
	Users         []UserLimit `mapstructure:"users"`
}

// UserLimit is kept as a list entry rather than a map key because viper lowercases map keys.
type UserLimit struct {
	ID  string `mapstructure:"id"`
	RPS int    `mapstructure:"rps"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type ClockConfig struct {
	Source string `mapstructure:"source"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Timeout     time.Duration `mapstructure:"timeout"`
	DialTimeout time.Duration `mapstructure:"dialTimeout"`
	MaxRetries  uint64        `mapstructure:"maxRetries"`
}

type LogConfig struct {
	Level  string        `mapstructure:"level"`
	Format string        `mapstructure:"format"`
	Output string        `mapstructure:"output"`
	File   LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"maxSizeMB"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
	Compress   bool   `mapstructure:"compress"`
}

type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("limits.bucketWidthMs", 1)
	v.SetDefault("limits.global", 0)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 10*time.Second)
	v.SetDefault("server.idleTimeout", 60*time.Second)
	v.SetDefault("server.shutdownTimeout", 10*time.Second)
	v.SetDefault("clock.source", ClockSystem)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.timeout", 50*time.Millisecond)
	v.SetDefault("redis.dialTimeout", 5*time.Second)
	v.SetDefault("redis.maxRetries", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.maxSizeMB", 250)
	v.SetDefault("log.file.maxBackups", 10)
	v.SetDefault("tracing.enabled", false)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	return v
}

// Load reads the config file at path (optional) with environment overrides.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return decode(v)
}

// LoadFromReader reads config of the given type ("yaml", "json", ...) from r.
func LoadFromReader(r io.Reader, configType string) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Limits.BucketWidthMs <= 0 {
		return fmt.Errorf("limits.bucketWidthMs must be positive, got %d", c.Limits.BucketWidthMs)
	}
	seen := make(map[string]struct{}, len(c.Limits.Users))
	for i, u := range c.Limits.Users {
		if u.ID == "" {
			return fmt.Errorf("limits.users[%d]: id is required", i)
		}
		if _, ok := seen[u.ID]; ok {
			return fmt.Errorf("limits.users[%d]: duplicate id %q", i, u.ID)
		}
		seen[u.ID] = struct{}{}
	}
	switch c.Clock.Source {
	case ClockSystem, ClockRedis:
	default:
		return fmt.Errorf("clock.source: unknown value %q", c.Clock.Source)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level: unknown value %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format: unknown value %q", c.Log.Format)
	}
	switch c.Log.Output {
	case "stdout", "stderr":
	case "file":
		if c.Log.File.Path == "" {
			return fmt.Errorf("log.file.path is required when log.output is file")
		}
	default:
		return fmt.Errorf("log.output: unknown value %q", c.Log.Output)
	}
	return nil
}

// UserLimits returns the per-user limits keyed by user id.
func (l LimitsConfig) UserLimits() map[string]int {
	m := make(map[string]int, len(l.Users))
	for _, u := range l.Users {
		m[u.ID] = u.RPS
	}
	return m
}
