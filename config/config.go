package config

import (
	"io/fs"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// DefaultPath is where the server looks for its config file.
const DefaultPath = "config/config.yaml"

// Config is the full server configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Braid  BraidConfig  `mapstructure:"braid"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type BraidConfig struct {
	DataDir       string `mapstructure:"data_dir"`
	BeadCacheSize int    `mapstructure:"bead_cache_size"`
}

type LogConfig struct {
	AppLogFile string `mapstructure:"app_log_file"`
	Level      string `mapstructure:"level"`
}

// Load reads the YAML file at path on top of the defaults. Any key can be
// overridden from the environment, e.g. BRAID_SERVER_PORT. A missing file is
// not an error when path is the default.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("server.port", 8080)
	v.SetDefault("braid.data_dir", "data")
	v.SetDefault("braid.bead_cache_size", 4096)
	v.SetDefault("log.app_log_file", "")
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("braid")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		missing := errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
		if path != DefaultPath || !missing {
			return nil, errors.Wrapf(err, "read config %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, errors.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.Braid.DataDir == "" {
		return nil, errors.New("braid.data_dir must be set")
	}
	return &cfg, nil
}
