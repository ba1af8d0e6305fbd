package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures an MQTTSink.
type MQTTConfig struct {
	Broker   string // e.g. tcp://localhost:1883
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

// MQTTSink publishes hub messages as JSON to one MQTT topic. The message
// type is appended to the topic, e.g. transitwatch/events/store-event.
type MQTTSink struct {
	cfg    MQTTConfig
	client mqtt.Client
}

// NewMQTTSink connects to the broker. Reconnection after a lost connection
// is handled by the client.
func NewMQTTSink(cfg MQTTConfig, logger *slog.Logger) (*MQTTSink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "notify", "sink", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, token.Error())
	}
	return newMQTTSink(cfg, client), nil
}

func newMQTTSink(cfg MQTTConfig, client mqtt.Client) *MQTTSink {
	return &MQTTSink{cfg: cfg, client: client}
}

func (s *MQTTSink) Name() string { return "mqtt" }

// Publish sends msg and waits for the broker acknowledgement or ctx.
func (s *MQTTSink) Publish(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mqtt encode: %w", err)
	}

	topic := s.cfg.Topic + "/" + string(msg.Type)
	token := s.client.Publish(topic, s.cfg.QoS, false, payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", topic, ctx.Err())
	}
}

// Close disconnects, allowing 250ms for in-flight messages.
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
