// Package config loads server configuration from defaults, an optional YAML
// file and the environment (optionally seeded from .env), in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/petnica-meteor-group/meteornet-server/pkg/logger"
)

// Config holds runtime configuration for the server
type Config struct {
	Log       logger.Config   `yaml:"log"`
	Database  DatabaseConfig  `yaml:"database"`
	Server    ServerConfig    `yaml:"server"`
	Notify    NotifyConfig    `yaml:"notify"`
	Stations  StationsConfig  `yaml:"stations"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Rules     RulesConfig     `yaml:"rules"`
}

// DatabaseConfig is the Postgres connection
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// ServerConfig is the HTTP surface
type ServerConfig struct {
	Port           string   `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	JWTSecret      string   `yaml:"jwt_secret"`
	// IngestRate is the sustained request rate per second allowed on the
	// station endpoints, IngestBurst the burst on top of it.
	IngestRate  float64 `yaml:"ingest_rate"`
	IngestBurst int     `yaml:"ingest_burst"`
}

// NotifyConfig controls maintainer notifications
type NotifyConfig struct {
	SiteName string `yaml:"site_name"`
	From     string `yaml:"from"`
	// NATSURL empty means notifications are only logged
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// StationsConfig holds ingestion and classification thresholds
type StationsConfig struct {
	MaxUnapproved int           `yaml:"max_unapproved"`
	Recency       time.Duration `yaml:"recency"`
	History       time.Duration `yaml:"history"`
	Disconnected  time.Duration `yaml:"disconnected"`
	NotConnecting time.Duration `yaml:"not_connecting"`
}

// SchedulerConfig holds the periodic cycle timings
type SchedulerConfig struct {
	ScanInterval      time.Duration `yaml:"scan_interval"`
	RetentionInterval time.Duration `yaml:"retention_interval"`
	RetentionAge      time.Duration `yaml:"retention_age"`
}

// RulesConfig bounds status rule text
type RulesConfig struct {
	MaxExpression int `yaml:"max_expression"`
	MaxMessage    int `yaml:"max_message"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Log: logger.Config{Level: "info"},
		Database: DatabaseConfig{
			Host:     "localhost",
			Port:     "5432",
			User:     "meteornet",
			Password: "meteornet",
			Name:     "meteornet",
			SSLMode:  "disable",
		},
		Server: ServerConfig{
			Port:        "8059",
			IngestRate:  20,
			IngestBurst: 40,
		},
		Notify: NotifyConfig{
			SiteName:    "MeteorNet",
			From:        "pmg@localhost",
			NATSSubject: "meteornet.notifications",
		},
		Stations: StationsConfig{
			MaxUnapproved: 30,
			Recency:       3 * time.Hour,
			History:       7 * 24 * time.Hour,
			Disconnected:  72 * time.Hour,
			NotConnecting: 6 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			ScanInterval:      15 * time.Minute,
			RetentionInterval: 24 * time.Hour,
			RetentionAge:      365 * 24 * time.Hour,
		},
		Rules: RulesConfig{
			MaxExpression: 256,
			MaxMessage:    128,
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	_ = godotenv.Load() // ignore missing file

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)

	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)

	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	if origins := getEnv("SERVER_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.AllowedOrigins = append(c.Server.AllowedOrigins, origin)
			}
		}
	}
	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)

	c.Notify.SiteName = getEnv("SITE_NAME", c.Notify.SiteName)
	c.Notify.From = getEnv("NOTIFY_FROM", c.Notify.From)
	c.Notify.NATSURL = getEnv("NATS_URL", c.Notify.NATSURL)
	c.Notify.NATSSubject = getEnv("NATS_SUBJECT", c.Notify.NATSSubject)

	var errs []error
	errs = append(errs,
		envFloat("INGEST_RATE", &c.Server.IngestRate),
		envInt("INGEST_BURST", &c.Server.IngestBurst),
		envInt("MAX_UNAPPROVED_STATIONS", &c.Stations.MaxUnapproved),
		envDuration("RECENCY_WINDOW", &c.Stations.Recency),
		envDuration("HISTORY_WINDOW", &c.Stations.History),
		envDuration("DISCONNECTED_AFTER", &c.Stations.Disconnected),
		envDuration("NOT_CONNECTING_AFTER", &c.Stations.NotConnecting),
		envDuration("SCAN_INTERVAL", &c.Scheduler.ScanInterval),
		envDuration("RETENTION_INTERVAL", &c.Scheduler.RetentionInterval),
		envDuration("RETENTION_AGE", &c.Scheduler.RetentionAge),
		envInt("RULE_MAX_EXPRESSION", &c.Rules.MaxExpression),
		envInt("RULE_MAX_MESSAGE", &c.Rules.MaxMessage),
	)
	return errors.Join(errs...)
}

// Validate rejects settings the server cannot run with
func (c *Config) Validate() error {
	durations := map[string]time.Duration{
		"stations.recency":             c.Stations.Recency,
		"stations.history":             c.Stations.History,
		"stations.disconnected":        c.Stations.Disconnected,
		"stations.not_connecting":      c.Stations.NotConnecting,
		"scheduler.scan_interval":      c.Scheduler.ScanInterval,
		"scheduler.retention_interval": c.Scheduler.RetentionInterval,
		"scheduler.retention_age":      c.Scheduler.RetentionAge,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}

	if c.Stations.MaxUnapproved < 0 {
		return fmt.Errorf("stations.max_unapproved must not be negative")
	}
	if c.Stations.NotConnecting >= c.Stations.Disconnected {
		return fmt.Errorf("stations.not_connecting must be shorter than stations.disconnected")
	}
	if c.Rules.MaxExpression <= 0 || c.Rules.MaxMessage <= 0 {
		return fmt.Errorf("rule length limits must be positive")
	}
	if c.Server.IngestRate <= 0 || c.Server.IngestBurst <= 0 {
		return fmt.Errorf("ingest rate and burst must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func envDuration(key string, target *time.Duration) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = d
	return nil
}

func envInt(key string, target *int) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = n
	return nil
}

func envFloat(key string, target *float64) error {
	v := getEnv(key, "")
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*target = f
	return nil
}
