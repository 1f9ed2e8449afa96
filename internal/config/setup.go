package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxSetupRounds bounds how often the wizard restarts after a failed
// validation.
const maxSetupRounds = 3

// RunSetupWizard guides the user through first-time configuration, reading
// answers from in and writing prompts to out. Empty answers keep the current
// value.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)
	w := &wizard{reader: reader, out: out}

	fmt.Fprintln(out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(out, "║            StartX - First Run Setup          ║")
	fmt.Fprintln(out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(out)

	for round := 1; ; round++ {
		w.ask(cfg)

		result := Validate(cfg)
		if result.IsValid() {
			for _, warn := range result.Warnings {
				log.Warn().Str("field", warn.Field).Msg(warn.Message)
			}
			break
		}

		fmt.Fprintln(out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		if round >= maxSetupRounds || !w.promptBool("Would you like to try again?", true) {
			return fmt.Errorf("configuration validation failed")
		}
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✓ Configuration saved successfully!")
	fmt.Fprintf(out, "  Written to %s\n", cfg.Path())
	return nil
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) ask(cfg *Config) {
	cfg.mu.Lock()
	defer cfg.mu.Unlock()

	fmt.Fprintln(w.out, "── Server ──")
	s := &cfg.Session
	s.URL = w.promptString("Server URL (ws://, wss:// or tcp://)", s.URL)
	s.ClientType = w.promptString("Client type sent in handshake", s.ClientType)
	s.ClientVersion = w.promptString("Client version sent in handshake", s.ClientVersion)
	if user := w.promptString("Handshake user data (JSON, blank for none)", string(s.User)); user != "" {
		if json.Valid([]byte(user)) {
			s.User = json.RawMessage(user)
		} else {
			fmt.Fprintln(w.out, "    Not valid JSON, keeping previous value")
		}
	} else {
		s.User = nil
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── Reconnect ──")
	s.Reconnect = w.promptBool("Reconnect automatically", s.Reconnect)
	if s.Reconnect {
		s.MaxReconnectAttempts = w.promptInt("Max reconnect attempts", s.MaxReconnectAttempts)
		s.ReconnectionDelayMs = w.promptInt("Initial reconnect delay (ms)", s.ReconnectionDelayMs)
		s.MaxReconnectDelayMs = w.promptInt("Max reconnect delay (ms)", s.MaxReconnectDelayMs)
	}
	s.RequestTimeoutSec = w.promptInt("Request timeout in seconds (0 waits forever)", s.RequestTimeoutSec)

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── REST API ──")
	cfg.API.Enabled = w.promptBool("Enable REST API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Bind = w.promptString("Bind address", cfg.API.Bind)
		cfg.API.Port = w.promptInt("Port", cfg.API.Port)
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── MQTT Relay ──")
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT relay", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("Broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("Broker port", cfg.MQTT.Port)
		cfg.MQTT.TopicPrefix = w.promptString("Topic prefix", cfg.MQTT.TopicPrefix)
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── Journal ──")
	cfg.Journal.Enabled = w.promptBool("Record traffic to the SQLite journal", cfg.Journal.Enabled)
	if cfg.Journal.Enabled {
		cfg.Journal.Path = w.promptString("Journal database path", cfg.Journal.Path)
		cfg.Journal.RetentionDays = w.promptInt("Retention (days)", cfg.Journal.RetentionDays)
	}
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
