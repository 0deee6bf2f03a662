package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	ServerAddr       string        `mapstructure:"SERVER_ADDR"`
	StorageBackend   string        `mapstructure:"STORAGE_BACKEND"`
	DatabasePath     string        `mapstructure:"DATABASE_PATH"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	OSRMBaseURL      string        `mapstructure:"OSRM_BASE_URL"`
	NominatimBaseURL string        `mapstructure:"NOMINATIM_BASE_URL"`
	RouteTimeout     time.Duration `mapstructure:"ROUTE_TIMEOUT"`
	FrameInterval    time.Duration `mapstructure:"FRAME_INTERVAL"`
	PersistInterval  time.Duration `mapstructure:"PERSIST_INTERVAL"`
}

// Load reads a .env file when present, then the environment. Empty storage
// settings defer to the app config file.
func Load() (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("Loaded environment from .env")
	}

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("SERVER_ADDR", "127.0.0.1:8080")
	v.SetDefault("STORAGE_BACKEND", "")
	v.SetDefault("DATABASE_PATH", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("OSRM_BASE_URL", "https://router.project-osrm.org")
	v.SetDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("ROUTE_TIMEOUT", "15s")
	v.SetDefault("FRAME_INTERVAL", "50ms")
	v.SetDefault("PERSIST_INTERVAL", "5s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
