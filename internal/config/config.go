// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreBolt   = "bolt"
	StoreMemory = "memory"
)

type Config struct {
	Store    string `env:"GUARDIAN_STORE" envDefault:"sqlite"`
	DBPath   string `env:"GUARDIAN_DB_PATH" envDefault:"guardian.db"`
	Addr     string `env:"GUARDIAN_ADDR" envDefault:"localhost:8080"`
	Timezone string `env:"GUARDIAN_TZ" envDefault:"Local"`
	Debug    bool   `env:"GUARDIAN_DEBUG" envDefault:"false"`

	MQTTBroker      string        `env:"MQTT_BROKER" envDefault:"wss://broker.hivemq.com:8884/mqtt"`
	MQTTEnabled     bool          `env:"MQTT_ENABLED" envDefault:"false"`
	SyncRecent      int           `env:"SYNC_RECENT" envDefault:"5"`
	SyncRetryDelay  time.Duration `env:"SYNC_RETRY_DELAY" envDefault:"5s"`
	SyncMaxAttempts int           `env:"SYNC_MAX_ATTEMPTS" envDefault:"3"`
	SyncSchedule    string        `env:"SYNC_SCHEDULE" envDefault:"@every 5m"`

	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	MailFromName   string `env:"MAIL_FROM_NAME" envDefault:"Guardian Health Log"`
	MailFrom       string `env:"MAIL_FROM" envDefault:"no-reply@guardian.local"`

	QRSize int `env:"QR_SIZE" envDefault:"180"`

	DexcomUsername string `env:"DEXCOM_USERNAME"`
	DexcomPassword string `env:"DEXCOM_PASSWORD"`
}

// DexcomEnabled reports whether CGM import credentials are set.
func (c *Config) DexcomEnabled() bool {
	return c.DexcomUsername != "" && c.DexcomPassword != ""
}

// New reads the configuration from the environment.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env.Parse cannot.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreSQLite, StoreBolt, StoreMemory:
	default:
		return fmt.Errorf("invalid GUARDIAN_STORE %q", c.Store)
	}
	if c.SyncRecent < 1 {
		return fmt.Errorf("SYNC_RECENT must be positive, got %d", c.SyncRecent)
	}
	if c.SyncMaxAttempts < 1 {
		return fmt.Errorf("SYNC_MAX_ATTEMPTS must be positive, got %d", c.SyncMaxAttempts)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the display time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid GUARDIAN_TZ %q: %w", c.Timezone, err)
	}
	return loc, nil
}
