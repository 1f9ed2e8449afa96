// Package telemetry relays session traffic to an MQTT broker and accepts
// notifies from it.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/config"
	"github.com/starx-project/starx/internal/events"
	"github.com/starx-project/starx/internal/util"
)

// Topic suffixes under the configured prefix.
const (
	TopicPush    = "push"
	TopicStatus  = "status"
	TopicKick    = "kick"
	TopicRequest = "request"
	TopicNotify  = "notify"
	TopicConfig  = "config"
)

// AppVersion is reported in every relayed message.
var AppVersion = "dev"

var topicSanitizer = strings.NewReplacer("#", "_", "+", "_")

// MQTTHandler publishes session events to MQTT and turns messages on
// <prefix>/notify/<route> into notifies sent upstream.
type MQTTHandler struct {
	mu sync.Mutex

	cfg      config.MQTTConfig
	eventBus *events.EventBus
	client   mqtt.Client
	prefix   string

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a new MQTT relay.
func NewMQTTHandler(cfg *config.Config, eventBus *events.EventBus) (*MQTTHandler, error) {
	mqttCfg := cfg.GetMQTT()

	if !mqttCfg.Enabled {
		return nil, fmt.Errorf("MQTT is disabled")
	}

	handler := newHandler(mqttCfg, cfg.InstanceID, eventBus)

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if mqttCfg.UseTLS {
		scheme = "ssl"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, mqttCfg.BrokerURL, mqttCfg.Port))

	if mqttCfg.ClientID != "" {
		opts.SetClientID(mqttCfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("starx-%s", cfg.InstanceID))
	}
	if mqttCfg.Username != "" {
		opts.SetUsername(mqttCfg.Username)
		opts.SetPassword(mqttCfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)
	opts.SetWill(handler.topic(TopicStatus), `{"state":"offline"}`, 1, true)

	if mqttCfg.UseTLS {
		tlsConfig, err := buildTLSConfig(mqttCfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
		handler.subscribeNotify(client)
	})

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)

	return handler, nil
}

func newHandler(mqttCfg config.MQTTConfig, instanceID string, eventBus *events.EventBus) *MQTTHandler {
	sysInfo := util.GetSystemInfo()
	return &MQTTHandler{
		cfg:      mqttCfg,
		eventBus: eventBus,
		prefix:   strings.TrimSuffix(mqttCfg.TopicPrefix, "/"),
		metadata: map[string]interface{}{
			"instance_id": instanceID,
			"hostname":    sysInfo.Hostname,
			"os":          sysInfo.OS,
			"app_version": AppVersion,
		},
	}
}

func buildTLSConfig(mqttCfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	// mTLS: load client certificate
	if mqttCfg.CertFile != "" && mqttCfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(mqttCfg.CertFile, mqttCfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if mqttCfg.CAFile != "" {
		pem, err := os.ReadFile(mqttCfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", mqttCfg.CAFile)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// Start connects to the MQTT broker and relays events until ctx ends.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	log.Info().Msg("MQTT disconnected")

	return nil
}

// subscribeEvents registers event handlers for MQTT publishing.
func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.Subscribe(events.EventPush, "mqtt.push", h.onPush)
	h.eventBus.Subscribe(events.EventRequestDone, "mqtt.request", h.onRequestDone)
	h.eventBus.Subscribe(events.EventKicked, "mqtt.kick", h.onKick)
	h.eventBus.Subscribe(events.EventConfigChanged, "mqtt.config", h.onConfigChanged)
	for _, t := range []events.EventType{
		events.EventSessionConnected,
		events.EventSessionReconnecting,
		events.EventSessionDisconnected,
		events.EventSessionError,
		events.EventHeartbeatTimeout,
	} {
		h.eventBus.Subscribe(t, "mqtt.status", h.onLifecycle)
	}
}

func (h *MQTTHandler) subscribeNotify(client mqtt.Client) {
	filter := h.topic(TopicNotify, "+")
	token := client.Subscribe(filter, 1, h.onMessage)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Error().Err(token.Error()).Str("topic", filter).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("topic", filter).Msg("listening for relay notifies")
	}()
}

// onMessage turns <prefix>/notify/<route> into a relay notify event.
func (h *MQTTHandler) onMessage(_ mqtt.Client, msg mqtt.Message) {
	route, ok := h.notifyRoute(msg.Topic())
	if !ok {
		log.Debug().Str("topic", msg.Topic()).Msg("ignoring MQTT message")
		return
	}

	body := msg.Payload()
	if len(body) > 0 && !json.Valid(body) {
		log.Warn().Str("topic", msg.Topic()).Msg("relay notify payload is not JSON, dropped")
		return
	}

	h.eventBus.Emit(context.Background(), events.Event{
		Type:    events.EventRelayNotify,
		Source:  "mqtt",
		Payload: events.RelayNotifyPayload{Route: route, Body: json.RawMessage(body)},
	})
}

func (h *MQTTHandler) notifyRoute(topic string) (string, bool) {
	route, ok := strings.CutPrefix(topic, h.topic(TopicNotify)+"/")
	if !ok || route == "" || strings.Contains(route, "/") {
		return "", false
	}
	return route, true
}

func (h *MQTTHandler) topic(parts ...string) string {
	return strings.Join(append([]string{h.prefix}, parts...), "/")
}

// publish sends a JSON message to an MQTT topic.
func (h *MQTTHandler) publish(topic string, payload interface{}, retained bool) {
	h.mu.Lock()
	client := h.client
	h.mu.Unlock()
	if client == nil || !client.IsConnected() {
		return
	}

	data, err := json.Marshal(h.buildMessage(payload))
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}

	token := client.Publish(topic, 1, retained, data) // QoS 1
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

// buildMessage combines metadata with the event payload.
func (h *MQTTHandler) buildMessage(payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+2)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// Event handlers

func (h *MQTTHandler) onPush(_ context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PushPayload)
	if !ok {
		return fmt.Errorf("push: unexpected payload %T", event.Payload)
	}
	h.publish(h.topic(TopicPush, topicSanitizer.Replace(p.Route)), p, false)
	return nil
}

func (h *MQTTHandler) onRequestDone(_ context.Context, event events.Event) error {
	h.publish(h.topic(TopicRequest), event.Payload, false)
	return nil
}

func (h *MQTTHandler) onKick(_ context.Context, event events.Event) error {
	h.publish(h.topic(TopicKick), event.Payload, false)
	return nil
}

func (h *MQTTHandler) onConfigChanged(_ context.Context, event events.Event) error {
	h.publish(h.topic(TopicConfig), event.Payload, false)
	return nil
}

func (h *MQTTHandler) onLifecycle(_ context.Context, event events.Event) error {
	h.publish(h.topic(TopicStatus), map[string]interface{}{
		"event":   event.Type,
		"payload": event.Payload,
	}, true)
	return nil
}

// PublishShutdown sends a retained offline status.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(h.topic(TopicStatus), map[string]interface{}{
		"event": events.EventShutdown,
		"state": "offline",
	}, true)
}
