package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"ignitiongate/internal/logger"
	"ignitiongate/internal/model"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
)

// MQTTOptions configure the MQTT relay.
type MQTTOptions struct {
	Broker   string // host:port or a full URL
	Topic    string
	ClientID string
}

// IgnitionMessage is the retained payload on the ignition topic.
type IgnitionMessage struct {
	Ignition   string        `json:"ignition"`
	Outcome    model.Outcome `json:"outcome"`
	Override   bool          `json:"override"`
	Confidence float64       `json:"confidence"`
	Timestamp  time.Time     `json:"timestamp"`
}

type publishFunc func(topic string, payload []byte) error

// MQTTActuator publishes the ignition state as a retained message whenever it
// changes, so a relay subscribing late still gets the current state. A failed
// publish is retried with the next decision.
type MQTTActuator struct {
	client  mqtt.Client
	topic   string
	publish publishFunc
	logger  *logger.Logger

	mu        sync.Mutex
	published bool
	on        bool
}

// NewMQTTActuator connects to the broker.
func NewMQTTActuator(opts MQTTOptions, logger *logger.Logger) (*MQTTActuator, error) {
	clientOpts := mqtt.NewClientOptions()
	clientOpts.AddBroker(brokerURL(opts.Broker))
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetConnectRetry(true)
	clientOpts.SetConnectRetryInterval(2 * time.Second)
	clientOpts.SetMaxReconnectInterval(30 * time.Second)
	clientOpts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected to %s as %s", opts.Broker, opts.ClientID)
	})
	clientOpts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warning("MQTT connection to %s lost, reconnecting: %v", opts.Broker, err)
	})

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connection to %s timed out", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connection failed: %w", err)
	}

	a := newMQTTActuator(opts.Topic, nil, logger)
	a.client = client
	a.publish = func(topic string, payload []byte) error {
		token := client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(mqttPublishTimeout) {
			return fmt.Errorf("publish to %s timed out", topic)
		}
		return token.Error()
	}
	return a, nil
}

func newMQTTActuator(topic string, publish publishFunc, logger *logger.Logger) *MQTTActuator {
	return &MQTTActuator{topic: topic, publish: publish, logger: logger}
}

func (a *MQTTActuator) Apply(ctx context.Context, d model.ControlDecision) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.published && a.on == d.IgnitionAllowed {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(IgnitionMessage{
		Ignition:   ignitionState(d.IgnitionAllowed),
		Outcome:    d.Outcome,
		Override:   d.Override,
		Confidence: d.Confidence,
		Timestamp:  d.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal ignition state: %w", err)
	}

	if err := a.publish(a.topic, payload); err != nil {
		return fmt.Errorf("failed to publish ignition %s: %w", ignitionState(d.IgnitionAllowed), err)
	}

	a.published = true
	a.on = d.IgnitionAllowed
	a.logger.Info("Ignition %s published to %s", ignitionState(d.IgnitionAllowed), a.topic)
	return nil
}

func (a *MQTTActuator) Close() error {
	if a.client != nil && a.client.IsConnected() {
		a.client.Disconnect(250)
	}
	return nil
}

func ignitionState(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
