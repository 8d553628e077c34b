package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	HTTP        HTTPConfig      `mapstructure:"http"`
	DB          DBConfig        `mapstructure:"db"`
	Detector    DetectorConfig  `mapstructure:"detector"`
	Detection   DetectionConfig `mapstructure:"detection"`
	Notify      NotifyConfig    `mapstructure:"notify"`
	Log         LogConfig       `mapstructure:"log"`
}

type HTTPConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type DetectorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DetectionConfig struct {
	CooldownWindowSeconds        int                `mapstructure:"cooldown_window_seconds"`
	MaxViolationsPerFrame        int                `mapstructure:"max_violations_per_frame"`
	MinConfidenceByClass         map[string]float64 `mapstructure:"min_confidence_by_class"`
	FineAmountByViolationType    map[string]float64 `mapstructure:"fine_amount_by_violation_type"`
	ClassIDs                     map[string]int     `mapstructure:"class_ids"`
	RequireMotorcycleForNoHelmet bool               `mapstructure:"require_motorcycle_for_no_helmet"`
	DefaultLocation              string             `mapstructure:"default_location"`
	CooldownStore                string             `mapstructure:"cooldown_store"`
	PruneInterval                time.Duration      `mapstructure:"prune_interval"`
}

func (c DetectionConfig) CooldownWindow() time.Duration {
	return time.Duration(c.CooldownWindowSeconds) * time.Second
}

type NotifyConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Brokers  string `mapstructure:"brokers"`
	Topic    string `mapstructure:"topic"`
	ClientID string `mapstructure:"client_id"`
	Acks     string `mapstructure:"acks"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

const (
	CooldownStoreMemory   = "memory"
	CooldownStoreDatabase = "database"
)

// Load reads config.yaml from the working directory or ./config when present,
// then applies environment overrides (DETECTION_COOLDOWN_WINDOW_SECONDS etc).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8000)
	v.SetDefault("http.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("http.max_upload_mb", 10)

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "host=localhost user=postgres password=postgres dbname=traffic_violations port=5432 sslmode=disable")

	v.SetDefault("detector.url", "http://localhost:8500")
	v.SetDefault("detector.timeout", 10*time.Second)

	v.SetDefault("detection.cooldown_window_seconds", 30)
	v.SetDefault("detection.max_violations_per_frame", 5)
	v.SetDefault("detection.min_confidence_by_class", map[string]float64{
		"helmet":        0.50,
		"no_helmet":     0.50,
		"mobile_phone":  0.35,
		"triple_riding": 0.50,
		"license_plate": 0.40,
		"motorcycle":    0.40,
	})
	v.SetDefault("detection.fine_amount_by_violation_type", map[string]float64{
		"no_helmet":     500,
		"phone_usage":   1000,
		"triple_riding": 1500,
	})
	v.SetDefault("detection.class_ids", map[string]int{
		"helmet":        0,
		"no_helmet":     1,
		"mobile_phone":  2,
		"triple_riding": 3,
		"license_plate": 4,
		"motorcycle":    5,
	})
	v.SetDefault("detection.require_motorcycle_for_no_helmet", false)
	v.SetDefault("detection.default_location", "Live Camera Feed")
	v.SetDefault("detection.cooldown_store", CooldownStoreMemory)
	v.SetDefault("detection.prune_interval", time.Minute)

	v.SetDefault("notify.kafka.enabled", false)
	v.SetDefault("notify.kafka.brokers", "localhost:9092")
	v.SetDefault("notify.kafka.topic", "traffic-violations")
	v.SetDefault("notify.kafka.client_id", "violation-service")
	v.SetDefault("notify.kafka.acks", "all")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid http.port %d", c.HTTP.Port)
	}
	if c.HTTP.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid http.max_upload_mb %d", c.HTTP.MaxUploadMB)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported db.driver %q", c.DB.Driver)
	}
	if c.DB.DSN == "" {
		return errors.New("db.dsn is required")
	}
	if c.Detector.URL == "" {
		return errors.New("detector.url is required")
	}
	if c.Detection.CooldownWindowSeconds <= 0 {
		return fmt.Errorf("invalid detection.cooldown_window_seconds %d", c.Detection.CooldownWindowSeconds)
	}
	if c.Detection.MaxViolationsPerFrame <= 0 {
		return fmt.Errorf("invalid detection.max_violations_per_frame %d", c.Detection.MaxViolationsPerFrame)
	}
	switch c.Detection.CooldownStore {
	case CooldownStoreMemory, CooldownStoreDatabase:
	default:
		return fmt.Errorf("unsupported detection.cooldown_store %q", c.Detection.CooldownStore)
	}
	if c.Notify.Kafka.Enabled && (c.Notify.Kafka.Brokers == "" || c.Notify.Kafka.Topic == "") {
		return errors.New("notify.kafka requires brokers and topic")
	}
	return nil
}
