package actuator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/levenlabs/go-lflag"
	"github.com/sunrudder/sunrudder/pkg/log"
	"github.com/sunrudder/sunrudder/pkg/types"
)

// publisher is the part of the paho client the actuator uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Command is the payload published for each action.
type Command struct {
	Device      types.DeviceType `json:"device"`
	Action      types.ActionType `json:"action"`
	TargetPower *float64         `json:"targetPower,omitempty"`
	Reason      string           `json:"reason"`
	Timestamp   time.Time        `json:"timestamp"`
}

// MQTT publishes every action as a JSON command to
// <prefix>/<device>/set. Devices subscribe and act on their own.
type MQTT struct {
	opts        *mqtt.ClientOptions
	client      mqtt.Client
	pub         publisher
	topicPrefix string
	qos         byte
	timeout     time.Duration
}

func configuredMQTT() *MQTT {
	broker := lflag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker URL")
	clientID := lflag.String("mqtt-client-id", "sunrudder", "MQTT client ID")
	username := lflag.String("mqtt-username", "", "MQTT username")
	password := lflag.String("mqtt-password", "", "MQTT password")
	topicPrefix := lflag.String("mqtt-topic-prefix", "sunrudder", "Prefix of the command topics")
	qos := lflag.Int("mqtt-qos", 1, "QoS used for command messages")
	timeout := lflag.Duration("mqtt-timeout", 5*time.Second, "How long to wait for the broker to acknowledge a command")

	m := &MQTT{}

	lflag.Do(func() {
		if *qos < 0 || *qos > 2 {
			panic(fmt.Sprintf("invalid mqtt-qos: %d", *qos))
		}
		opts := mqtt.NewClientOptions()
		opts.AddBroker(*broker)
		opts.SetClientID(*clientID)
		opts.SetUsername(*username)
		opts.SetPassword(*password)
		opts.SetAutoReconnect(true)
		opts.SetKeepAlive(60 * time.Second)
		opts.SetPingTimeout(10 * time.Second)
		opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Ctx(context.Background()).Warn("mqtt connection lost", slog.Any("error", err))
		})
		m.opts = opts
		m.topicPrefix = *topicPrefix
		m.qos = byte(*qos)
		m.timeout = *timeout
	})

	return m
}

// NewMQTT returns an actuator publishing through pub.
func NewMQTT(pub publisher, topicPrefix string, timeout time.Duration) *MQTT {
	return &MQTT{
		pub:         pub,
		topicPrefix: topicPrefix,
		qos:         1,
		timeout:     timeout,
	}
}

// Connect connects to the broker.
func (m *MQTT) Connect() error {
	client := mqtt.NewClient(m.opts)
	token := client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("timed out connecting to mqtt broker")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}
	m.client = client
	m.pub = client
	return nil
}

// Topic returns the command topic of device.
func (m *MQTT) Topic(device types.DeviceType) string {
	return m.topicPrefix + "/" + strings.ToLower(string(device)) + "/set"
}

func (m *MQTT) Execute(ctx context.Context, action types.DeviceAction) error {
	if !action.Device.IsValid() {
		return unsupported(action)
	}
	payload, err := json.Marshal(Command{
		Device:      action.Device,
		Action:      action.Action,
		TargetPower: action.TargetPower,
		Reason:      action.Reason,
		Timestamp:   time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	topic := m.Topic(action.Device)
	token := m.pub.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	log.Ctx(ctx).DebugContext(ctx, "published device command", slog.String("topic", topic))
	return nil
}

func (m *MQTT) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}
