package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID == "" {
		t.Error("instance id not generated")
	}
	if got := cfg.Path(); got != filepath.Join(dir, DefaultConfigFile) {
		t.Errorf("Path = %q", got)
	}
	if _, err := os.Stat(cfg.Path()); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if r := Validate(cfg); !r.IsValid() {
		t.Errorf("default config invalid: %v", r.Errors)
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := `{"instance_id":"abc","session":{"url":"wss://game.example:3014","reconnect":false}}`
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(raw), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := cfg.GetSession()
	if s.URL != "wss://game.example:3014" || s.Reconnect {
		t.Errorf("session = %+v", s)
	}
	// Fields missing from the file keep their defaults.
	if s.ClientType != "go-websocket" || s.ReconnectionDelay() != 5*time.Second {
		t.Errorf("defaults lost: %+v", s)
	}
	if cfg.InstanceID != "abc" {
		t.Errorf("InstanceID = %q", cfg.InstanceID)
	}

	// The re-save fills in the new fields on disk.
	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"journal"`) {
		t.Errorf("re-saved config missing journal section:\n%s", data)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestUpdateSessionField(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.UpdateSessionField("url", "tcp://10.0.0.1:3010"); err != nil {
		t.Fatalf("UpdateSessionField: %v", err)
	}
	if err := cfg.UpdateSessionField("max_reconnect_attempts", 3); err != nil {
		t.Fatalf("UpdateSessionField: %v", err)
	}
	s := cfg.GetSession()
	if s.URL != "tcp://10.0.0.1:3010" || s.MaxReconnectAttempts != 3 {
		t.Errorf("session = %+v", s)
	}

	if err := cfg.UpdateSessionField("nope", 1); err == nil {
		t.Error("expected error for unknown field")
	}
	if err := cfg.UpdateSessionField("reconnect", "yes"); err == nil {
		t.Error("expected error for mistyped value")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		warning bool
	}{
		{"empty url", func(c *Config) { c.Session.URL = "" }, "session.url", false},
		{"bad scheme", func(c *Config) { c.Session.URL = "http://host:1" }, "session.url", false},
		{"no host", func(c *Config) { c.Session.URL = "ws://" }, "session.url", false},
		{"cap below delay", func(c *Config) { c.Session.MaxReconnectDelayMs = 10 }, "session.max_reconnect_delay_ms", false},
		{"negative timeout", func(c *Config) { c.Session.RequestTimeoutSec = -1 }, "session.request_timeout_sec", false},
		{"api port", func(c *Config) { c.API.Port = 70000 }, "api.port", false},
		{"api bind", func(c *Config) { c.API.Bind = "not an ip" }, "api.bind", false},
		{"tls without key", func(c *Config) { c.API.TLSEnabled = true; c.API.KeyFile = "" }, "api.cert_file", false},
		{"privileged port", func(c *Config) { c.API.Port = 80 }, "api.port", true},
		{"mqtt broker", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.BrokerURL = "" }, "mqtt.broker_url", false},
		{"mqtt wildcard", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.TopicPrefix = "a/#" }, "mqtt.topic_prefix", false},
		{"mqtt half cert", func(c *Config) { c.MQTT.Enabled = true; c.MQTT.UseTLS = true; c.MQTT.CertFile = "c.pem" }, "mqtt.cert_file", false},
		{"retention", func(c *Config) { c.Journal.RetentionDays = 0 }, "journal.retention_days", false},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			r := Validate(cfg)

			list := r.Errors
			if tt.warning {
				list = r.Warnings
				if !r.IsValid() {
					t.Errorf("unexpected errors: %v", r.Errors)
				}
			}
			for _, e := range list {
				if e.Field == tt.field {
					return
				}
			}
			t.Errorf("no entry for %s in %v", tt.field, list)
		})
	}
}

func TestDisabledSectionsSkipValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Enabled = false
	cfg.API.Port = 0
	cfg.Journal.Enabled = false
	cfg.Journal.Path = ""
	if r := Validate(cfg); !r.IsValid() {
		t.Errorf("errors for disabled sections: %v", r.Errors)
	}
}

func TestSetupWizard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := strings.Join([]string{
		"wss://play.example:3014", // url
		"",                        // client type
		"",                        // client version
		`{"token":"t"}`,           // user
		"yes",                     // reconnect
		"5",                       // attempts
		"",                        // delay
		"",                        // max delay
		"15",                      // request timeout
		"no",                      // api
		"no",                      // mqtt
		"yes",                     // journal
		"",                        // path
		"30",                      // retention
	}, "\n") + "\n"

	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("RunSetupWizard: %v\n%s", err, out.String())
	}

	s := cfg.GetSession()
	if s.URL != "wss://play.example:3014" || s.MaxReconnectAttempts != 5 || s.RequestTimeoutSec != 15 {
		t.Errorf("session = %+v", s)
	}
	if string(s.User) != `{"token":"t"}` {
		t.Errorf("user = %s", s.User)
	}
	if cfg.GetAPI().Enabled {
		t.Error("api should be disabled")
	}
	if cfg.GetJournal().RetentionDays != 30 {
		t.Errorf("retention = %d", cfg.GetJournal().RetentionDays)
	}

	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	var saved Config
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatal(err)
	}
	if saved.Session.URL != s.URL {
		t.Errorf("saved url = %q", saved.Session.URL)
	}
}

func TestSetupWizardGivesUp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	// An invalid URL, defaults for the 15 remaining prompts, then decline
	// to retry.
	answers := "http://nope:1\n" + strings.Repeat("\n", 15) + "no\n"
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &bytes.Buffer{}); err == nil {
		t.Fatal("expected validation failure")
	}
	if _, err := os.Stat(cfg.Path()); !os.IsNotExist(err) {
		t.Error("invalid config should not be saved")
	}
}
