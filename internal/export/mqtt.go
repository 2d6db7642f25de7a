package export

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/dkrol/blescout/internal/config"
)

// MQTTPublisher publishes readings as JSON to <topic_prefix>/<mac>.
type MQTTPublisher struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	logger *logrus.Logger
}

// mqttPayload is the wire format of one published sample.
type mqttPayload struct {
	MAC          string  `json:"mac"`
	Name         string  `json:"name"`
	TemperatureC float32 `json:"temperature_c"`
	HumidityPct  float32 `json:"humidity_pct"`
	Timestamp    string  `json:"timestamp"`
}

// NewMQTTPublisher connects to the broker and returns a publisher.
func NewMQTTPublisher(cfg config.MQTTConfig, logger *logrus.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = logrus.New()
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("mqtt connect to %s: timeout after %s", cfg.Broker, cfg.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	logger.WithField("broker", cfg.Broker).Info("Connected to MQTT broker")
	return &MQTTPublisher{client: client, cfg: cfg, logger: logger}, nil
}

// Export publishes one sample.
func (p *MQTTPublisher) Export(ctx context.Context, s Sample) error {
	payload, err := json.Marshal(mqttPayload{
		MAC:          s.MAC,
		Name:         s.Name,
		TemperatureC: s.Reading.Temperature,
		HumidityPct:  s.Reading.Humidity,
		Timestamp:    s.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
	if err != nil {
		return fmt.Errorf("mqtt payload: %w", err)
	}

	topic := Topic(p.cfg.TopicPrefix, s.MAC)
	token := p.client.Publish(topic, p.cfg.QoS, false, payload)

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt publish %s: %w", topic, ctx.Err())
	case <-done:
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}

	p.logger.WithFields(logrus.Fields{
		"topic": topic,
		"bytes": len(payload),
	}).Debug("Published reading")
	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// Topic builds the per-device topic. MAC colons become dashes: MQTT topic
// levels stay free of characters some brokers treat specially.
func Topic(prefix, mac string) string {
	sanitized := strings.ToLower(strings.ReplaceAll(mac, ":", "-"))
	return prefix + "/" + sanitized
}
