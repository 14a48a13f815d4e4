package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/commentboard/server/internal/logger"
)

type Config struct {
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`

	HTTP struct {
		Listen string `mapstructure:"listen"`
	} `mapstructure:"http"`

	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`

	NATS struct {
		URL string `mapstructure:"url"`
	} `mapstructure:"nats"`

	Session struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"session"`

	Log logger.LogConfig `mapstructure:"log"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Defaults
	v.SetDefault("http.listen", "127.0.0.1:4000")
	v.SetDefault("redis.addr", "")
	v.SetDefault("nats.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.log_to_file", false)
	v.SetDefault("log.log_to_json", false)
	v.SetDefault("log.file_path", "commentboard.log")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age", 30)
	v.SetDefault("log.compress", true)

	// Env overrides
	v.SetEnvPrefix("COMMENTBOARD")
	v.AutomaticEnv()
	_ = v.BindEnv("db.dsn", "COMMENTBOARD_DB_DSN")
	_ = v.BindEnv("http.listen", "COMMENTBOARD_HTTP_LISTEN")
	_ = v.BindEnv("redis.addr", "COMMENTBOARD_REDIS_ADDR")
	_ = v.BindEnv("nats.url", "COMMENTBOARD_NATS_URL")
	_ = v.BindEnv("session.secret", "COMMENTBOARD_SESSION_SECRET")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if c.DB.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required (set COMMENTBOARD_DB_DSN or config file)")
	}
	if c.Session.Secret == "" {
		return nil, fmt.Errorf("session.secret is required (set COMMENTBOARD_SESSION_SECRET or config file)")
	}
	return &c, nil
}
