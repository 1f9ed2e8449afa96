// Package config handles configuration loading, validation, and persistence
// for the starx bridge daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 7350
)

// Config is the root configuration structure for starx.
type Config struct {
	mu   sync.RWMutex
	path string

	InstanceID string        `json:"instance_id"`
	Session    SessionConfig `json:"session"`
	API        APIConfig     `json:"api"`
	MQTT       MQTTConfig    `json:"mqtt"`
	Journal    JournalConfig `json:"journal"`
	Logging    util.LogConfig `json:"logging"`
}

// SessionConfig describes the upstream server and the client behaviour.
type SessionConfig struct {
	URL                  string          `json:"url"`
	Reconnect            bool            `json:"reconnect"`
	MaxReconnectAttempts int             `json:"max_reconnect_attempts"`
	ReconnectionDelayMs  int             `json:"reconnection_delay_ms"`
	MaxReconnectDelayMs  int             `json:"max_reconnect_delay_ms"`
	RequestTimeoutSec    int             `json:"request_timeout_sec"`
	ClientType           string          `json:"client_type"`
	ClientVersion        string          `json:"client_version"`
	User                 json.RawMessage `json:"user,omitempty"`
}

// ReconnectionDelay returns the first reconnect backoff delay.
func (s SessionConfig) ReconnectionDelay() time.Duration {
	return time.Duration(s.ReconnectionDelayMs) * time.Millisecond
}

// MaxReconnectDelay returns the backoff cap.
func (s SessionConfig) MaxReconnectDelay() time.Duration {
	return time.Duration(s.MaxReconnectDelayMs) * time.Millisecond
}

// RequestTimeout returns the per-request timeout, zero when disabled.
func (s SessionConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Bind           string   `json:"bind"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	RequestTimeout int      `json:"request_timeout_sec"`
	// AuthToken, when set, is required as a bearer token on /api routes
	// other than /api/public.
	AuthToken string `json:"auth_token"`
	// TLSEnabled serves the API over HTTPS. A self-signed pair is created
	// when the files do not exist.
	TLSEnabled bool   `json:"tls_enabled"`
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
}

// MQTTConfig holds MQTT relay settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	CAFile      string `json:"ca_file"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
}

// JournalConfig holds the SQLite traffic journal settings.
type JournalConfig struct {
	Enabled            bool   `json:"enabled"`
	Path               string `json:"path"`
	RetentionDays      int    `json:"retention_days"`
	CleanupIntervalSec int    `json:"cleanup_interval_sec"`
	MaxBodyBytes       int    `json:"max_body_bytes"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		InstanceID: uuid.NewString(),
		Session: SessionConfig{
			URL:                  "ws://127.0.0.1:3010",
			Reconnect:            true,
			MaxReconnectAttempts: 10,
			ReconnectionDelayMs:  5000,
			MaxReconnectDelayMs:  60000,
			ClientType:           "go-websocket",
			ClientVersion:        "0.0.1",
		},
		API: APIConfig{
			Enabled:        true,
			Bind:           "127.0.0.1",
			Port:           DefaultAPIPort,
			AllowedOrigins: []string{"http://localhost"},
			RateLimitRPS:   100,
			RequestTimeout: 10,
			CertFile:       filepath.Join("certs", "api.crt"),
			KeyFile:        filepath.Join("certs", "api.key"),
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			BrokerURL:   "localhost",
			Port:        1883,
			TopicPrefix: "starx",
		},
		Journal: JournalConfig{
			Enabled:            true,
			Path:               filepath.Join("data", "journal.db"),
			RetentionDays:      7,
			CleanupIntervalSec: 3600,
			MaxBodyBytes:       64 * 1024,
		},
		Logging: util.DefaultLogConfig(),
	}
}

// Load reads configuration from config.json in configDir. A missing file is
// created with defaults; an existing one is overlaid on the defaults and
// saved back so new fields appear in it.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = uuid.NewString()
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return fmt.Errorf("config has no file path")
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetSession returns a copy of the session configuration.
func (c *Config) GetSession() SessionConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Session
}

// SetSession updates the session configuration.
func (c *Config) SetSession(s SessionConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Session = s
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetJournal returns a copy of the journal configuration.
func (c *Config) GetJournal() JournalConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Journal
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() util.LogConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateSessionField sets one session field by its JSON name.
func (c *Config) UpdateSessionField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(c.Session)
	if err != nil {
		return fmt.Errorf("failed to marshal session config: %w", err)
	}
	m := make(map[string]interface{})
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("failed to decode session config: %w", err)
	}
	if _, ok := m[key]; !ok && key != "user" {
		return fmt.Errorf("unknown session field %q", key)
	}

	m[key] = value

	updated, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	var next SessionConfig
	if err := json.Unmarshal(updated, &next); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Session = next
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}
