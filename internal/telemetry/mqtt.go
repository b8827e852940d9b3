package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTConfig holds broker settings
type MQTTConfig struct {
	Broker      string // tcp://host:1883
	ClientID    string
	TopicPrefix string // records go to <prefix>/snapshot, actuator state to <prefix>/actuators
	Username    string
	Password    string
	QoS         byte
}

// mqttPublisher is the part of mqtt.Client the sink uses
type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// ActuatorMessage is the retained actuator state
type ActuatorMessage struct {
	Fan       string    `json:"fan"`
	Mister    string    `json:"mister"`
	Mode      string    `json:"mode"`
	Stage     string    `json:"stage"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MQTTSink publishes records to an MQTT broker
type MQTTSink struct {
	client mqttPublisher
	cfg    MQTTConfig
	logger zerolog.Logger
}

// NewMQTTSink connects to the broker
func NewMQTTSink(cfg MQTTConfig, logger zerolog.Logger) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(5 * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Str("broker", cfg.Broker).Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect to %s: %w", cfg.Broker, err)
	}

	logger.Info().Str("broker", cfg.Broker).Str("topic_prefix", cfg.TopicPrefix).Msg("MQTT sink connected")
	return newMQTTSink(client, cfg, logger), nil
}

func newMQTTSink(client mqttPublisher, cfg MQTTConfig, logger zerolog.Logger) *MQTTSink {
	return &MQTTSink{client: client, cfg: cfg, logger: logger}
}

// Name implements Sink
func (s *MQTTSink) Name() string { return "mqtt" }

// Send implements Sink. Every record goes to the snapshot topic;
// the last one also replaces the retained actuator state.
func (s *MQTTSink) Send(ctx context.Context, batch []Record) error {
	if len(batch) == 0 {
		return nil
	}
	for _, r := range batch {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		if err := s.publish(ctx, s.cfg.TopicPrefix+"/snapshot", false, payload); err != nil {
			return err
		}
	}

	last := batch[len(batch)-1]
	payload, err := json.Marshal(ActuatorMessage{
		Fan:       string(last.Fan),
		Mister:    string(last.Mister),
		Mode:      string(last.Mode),
		Stage:     string(last.Stage),
		UpdatedAt: last.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("marshal actuator state: %w", err)
	}
	return s.publish(ctx, s.cfg.TopicPrefix+"/actuators", true, payload)
}

func (s *MQTTSink) publish(ctx context.Context, topic string, retained bool, payload []byte) error {
	token := s.client.Publish(topic, s.cfg.QoS, retained, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", topic, ctx.Err())
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Close implements Sink
func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
