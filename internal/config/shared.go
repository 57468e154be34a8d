package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"

	"symbiosing/internal/device"
)

type Config struct {
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"server"`
	Playback struct {
		TickMs              int  `mapstructure:"tick_ms"`
		CountdownIntervalMs int  `mapstructure:"countdown_interval_ms"`
		CountdownSteps      int  `mapstructure:"countdown_steps"`
		DryRun              bool `mapstructure:"dry_run"`
	} `mapstructure:"playback"`
	Score struct {
		BPM         float64        `mapstructure:"bpm"`
		DynamicsPWM map[string]int `mapstructure:"dynamics_pwm"`
	} `mapstructure:"score"`
	Database struct {
		Driver   string `mapstructure:"driver"`
		Path     string `mapstructure:"path"`
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Storage struct {
		Provider  string `mapstructure:"provider"`
		LocalRoot string `mapstructure:"local_root"`
		Bucket    string `mapstructure:"bucket"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		KeyID     string `mapstructure:"key_id"`
		AppKey    string `mapstructure:"app_key"`
	} `mapstructure:"storage"`
	Devices []device.Info `mapstructure:"devices"`
	Peers   struct {
		HubURL string `mapstructure:"hub_url"`
	} `mapstructure:"peers"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
}

// Load reads config.yaml (from . or ../) and SYMBIO_* environment variables.
func Load() *Config {
	cfg, err := load(viper.New(), true)
	if err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
	return cfg
}

func load(v *viper.Viper, readFile bool) (*Config, error) {
	v.SetEnvPrefix("SYMBIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Register keys
	for _, key := range []string{
		"server.port", "server.metrics_port", "server.log_level",
		"playback.tick_ms", "playback.countdown_interval_ms", "playback.countdown_steps", "playback.dry_run",
		"score.bpm",
		"database.driver", "database.path", "database.host", "database.port",
		"database.user", "database.password", "database.name",
		"storage.provider", "storage.local_root", "storage.bucket", "storage.endpoint",
		"storage.region", "storage.key_id", "storage.app_key",
		"peers.hub_url",
		"auth.jwt_secret",
	} {
		v.BindEnv(key)
	}

	// Defaults
	v.SetDefault("server.port", ":8081")
	v.SetDefault("server.metrics_port", ":9091")
	v.SetDefault("server.log_level", "info")

	v.SetDefault("playback.tick_ms", 5)
	v.SetDefault("playback.countdown_interval_ms", 1000)
	v.SetDefault("playback.countdown_steps", 3)
	v.SetDefault("playback.dry_run", false)

	v.SetDefault("score.bpm", 60)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "symbiosing.db")

	v.SetDefault("storage.provider", "local")
	v.SetDefault("storage.local_root", "./schedules")

	if readFile {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("../")

		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				log.Printf("⚠️ Config error: %s", err)
			} else {
				log.Println("Info: config.yaml not found, using Environment Variables only.")
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Playback.TickMs <= 0 {
		return fmt.Errorf("playback.tick_ms must be positive, got %d", c.Playback.TickMs)
	}
	if c.Playback.CountdownSteps < 1 {
		return fmt.Errorf("playback.countdown_steps must be at least 1, got %d", c.Playback.CountdownSteps)
	}
	if c.Score.BPM <= 0 {
		return fmt.Errorf("score.bpm must be positive, got %v", c.Score.BPM)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Storage.Provider {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required for the s3 provider (SYMBIO_STORAGE_BUCKET)")
		}
	default:
		return fmt.Errorf("storage.provider must be local or s3, got %q", c.Storage.Provider)
	}
	return nil
}
