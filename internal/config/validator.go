package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/starx-project/starx/internal/util"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}

	validateSession(&cfg.Session, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)
	validateJournal(&cfg.Journal, result)
	validateLogging(&cfg.Logging, result)

	return result
}

func validateSession(s *SessionConfig, result *ValidationResult) {
	if strings.TrimSpace(s.URL) == "" {
		result.AddError("session.url", "server url is required")
	} else if u, err := url.Parse(s.URL); err != nil || u.Host == "" {
		result.AddError("session.url", fmt.Sprintf("invalid url: %s", s.URL))
	} else {
		switch u.Scheme {
		case "ws", "wss", "tcp":
		default:
			result.AddError("session.url", fmt.Sprintf("unsupported scheme %q (use ws, wss or tcp)", u.Scheme))
		}
	}

	if s.Reconnect {
		if s.MaxReconnectAttempts < 1 {
			result.AddWarning("session.max_reconnect_attempts", "reconnect is enabled but no attempts are allowed")
		}
		if s.ReconnectionDelayMs < 100 {
			result.AddWarning("session.reconnection_delay_ms", "reconnect delay under 100ms may hammer the server")
		}
		if s.MaxReconnectDelayMs < s.ReconnectionDelayMs {
			result.AddError("session.max_reconnect_delay_ms", "max reconnect delay is smaller than the initial delay")
		}
	}

	if s.RequestTimeoutSec < 0 {
		result.AddError("session.request_timeout_sec", "request timeout cannot be negative")
	}
	if strings.TrimSpace(s.ClientType) == "" {
		result.AddWarning("session.client_type", "empty client type in handshake")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validatePort(a.Port, "api.port", result)
	if a.Bind != "" && net.ParseIP(a.Bind) == nil && a.Bind != "localhost" {
		result.AddError("api.bind", fmt.Sprintf("invalid bind address: %s", a.Bind))
	}
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
	if a.AuthToken == "" && a.Bind != "127.0.0.1" && a.Bind != "localhost" && a.Bind != "::1" {
		result.AddWarning("api.auth_token", "API is reachable off-host without an auth token")
	}
	if a.RequestTimeout < 1 {
		result.AddError("api.request_timeout_sec", "API request timeout must be at least 1 second")
	}
	if a.TLSEnabled && (a.CertFile == "" || a.KeyFile == "") {
		result.AddError("api.cert_file", "TLS needs both cert_file and key_file")
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.UseTLS && (m.CertFile == "") != (m.KeyFile == "") {
		result.AddError("mqtt.cert_file", "client certificate and key must be set together")
	}
	if strings.Contains(m.TopicPrefix, "#") || strings.Contains(m.TopicPrefix, "+") {
		result.AddError("mqtt.topic_prefix", "topic prefix cannot contain MQTT wildcards")
	}
}

func validateJournal(j *JournalConfig, result *ValidationResult) {
	if !j.Enabled {
		return
	}
	if strings.TrimSpace(j.Path) == "" {
		result.AddError("journal.path", "journal path is required when enabled")
	}
	if j.RetentionDays < 1 {
		result.AddError("journal.retention_days", "retention days must be at least 1")
	}
	if j.CleanupIntervalSec < 60 {
		result.AddWarning("journal.cleanup_interval_sec", "cleanup interval under 60s is wasteful")
	}
}

func validateLogging(l *util.LogConfig, result *ValidationResult) {
	if _, err := zerolog.ParseLevel(strings.ToLower(l.Level)); err != nil {
		result.AddWarning("logging.level", fmt.Sprintf("unknown level %q, falling back to info", l.Level))
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
