package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts YAML durations written as Go duration strings ("30m")
// or as raw nanosecond integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Config holds every tunable the service reads at startup. Values resolve in
// order: built-in defaults, then the YAML file, then environment variables.
type Config struct {
	Addr        string `yaml:"addr"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`

	// Route optimization
	BaseSpeedKph       float64 `yaml:"base_speed_kph"`
	IncidentCorridorKm float64 `yaml:"incident_corridor_km"`
	BruteForceMax      int     `yaml:"brute_force_max"`
	TwoOptIterations   int     `yaml:"two_opt_iterations"`

	// Traffic feed pipeline
	FrameQueueSize      int           `yaml:"frame_queue_size"`
	FeedWorkers         int           `yaml:"feed_workers"`
	CongestionThreshold int           `yaml:"congestion_threshold"`
	DensityDivisor      float64       `yaml:"density_divisor"`
	IncidentRetention   Duration      `yaml:"incident_retention"`

	// Weather collaborator
	WeatherURL    string `yaml:"weather_url"`
	WeatherAPIKey string `yaml:"weather_api_key"`
}

func defaults() Config {
	return Config{
		Addr:                ":8080",
		BaseSpeedKph:        50,
		IncidentCorridorKm:  1.0,
		BruteForceMax:       8,
		TwoOptIterations:    0,
		FrameQueueSize:      10,
		FeedWorkers:         3,
		CongestionThreshold: 10,
		DensityDivisor:      50,
		IncidentRetention:   Duration(2 * time.Hour),
	}
}

// Load builds the runtime configuration. path may be empty; a missing file is
// only an error when the path was given explicitly.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Addr = ":" + v
	}
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("WEATHER_URL"); v != "" {
		cfg.WeatherURL = v
	}
	if v := os.Getenv("WEATHER_API_KEY"); v != "" {
		cfg.WeatherAPIKey = v
	}
	envInt("BRUTE_FORCE_MAX", &cfg.BruteForceMax)
	envInt("TWO_OPT_ITERATIONS", &cfg.TwoOptIterations)
	envInt("FRAME_QUEUE_SIZE", &cfg.FrameQueueSize)
	envInt("FEED_WORKERS", &cfg.FeedWorkers)
	envInt("CONGESTION_THRESHOLD", &cfg.CongestionThreshold)
	envFloat("BASE_SPEED_KPH", &cfg.BaseSpeedKph)
	envFloat("INCIDENT_CORRIDOR_KM", &cfg.IncidentCorridorKm)
	envFloat("DENSITY_DIVISOR", &cfg.DensityDivisor)
	if v := os.Getenv("INCIDENT_RETENTION"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.IncidentRetention = Duration(d)
		}
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
