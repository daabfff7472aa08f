package mqtt

import (
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"time"

	"smartsched/internal/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	MQTT_PAYLOAD_ONLINE  = "online"
	MQTT_PAYLOAD_OFFLINE = "offline"
	MQTT_PAYLOAD_ON      = "on"
	MQTT_PAYLOAD_OFF     = "off"
)

// ControlKind names a writable scheduler control reachable over MQTT.
type ControlKind string

const (
	ControlEnable ControlKind = "enable"
	ControlMinSOC ControlKind = "min_soc"
)

// ControlMessage is a parsed and validated control write. Kind selects
// which of the value fields is meaningful.
type ControlMessage struct {
	Kind   ControlKind
	Enable bool
	MinSOC uint
}

// MQTTClient publishes the scheduler surface and receives control writes.
//
// Topic layout under the configured base topic:
//
//	<base>/bridge/state          bridge availability (retained will message)
//	<base>/telemetry/<id>        read-only array sensors
//	<base>/plan                  latest plan as JSON (retained)
//	<base>/plan/mode             operating mode of the latest plan
//	<base>/control/<kind>        control state, retained
//	<base>/control/<kind>/set    control writes from the operator
type MQTTClient struct {
	client       mqtt.Client
	cfg          config.MQTTConfig
	controlTopic *regexp.Regexp
}

func OptsFromConfig(cfg *config.Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s:%d", cfg.MQTT.Host, cfg.MQTT.Port))
	opts.SetClientID(fmt.Sprintf("smartsched_%d", rand.Intn(1000)))
	if cfg.MQTT.Username != "" && cfg.MQTT.Password != "" {
		opts.SetUsername(cfg.MQTT.Username)
		opts.SetPassword(cfg.MQTT.Password)
	}
	opts.WillEnabled = true
	opts.WillPayload = []byte(MQTT_PAYLOAD_OFFLINE)
	opts.WillRetained = true
	opts.WillTopic = bridgeStateTopic(cfg.MQTT.BaseTopic)
	opts.WillQos = 0

	return opts
}

func CreateMQTTClient(cfg *config.Config, opts *mqtt.ClientOptions, onConnectHandler func(client mqtt.Client),
	onConnectionLostHandler func(mqtt.Client, error)) *MQTTClient {
	if onConnectHandler != nil {
		opts.OnConnect = onConnectHandler
	}
	if onConnectionLostHandler != nil {
		opts.OnConnectionLost = onConnectionLostHandler
	}
	return &MQTTClient{
		client:       mqtt.NewClient(opts),
		cfg:          cfg.MQTT,
		controlTopic: controlTopicExtractor(cfg.MQTT.BaseTopic),
	}
}

func (c *MQTTClient) BridgeStateTopic() string {
	return bridgeStateTopic(c.cfg.BaseTopic)
}

func (c *MQTTClient) TelemetryTopic(sensorId string) string {
	return fmt.Sprintf("%s/telemetry/%s", c.cfg.BaseTopic, sensorId)
}

func (c *MQTTClient) PlanTopic() string {
	return fmt.Sprintf("%s/plan", c.cfg.BaseTopic)
}

func (c *MQTTClient) PlanModeTopic() string {
	return fmt.Sprintf("%s/plan/mode", c.cfg.BaseTopic)
}

func (c *MQTTClient) ControlStateTopic(kind ControlKind) string {
	return fmt.Sprintf("%s/control/%s", c.cfg.BaseTopic, kind)
}

func (c *MQTTClient) ControlSetTopic(kind ControlKind) string {
	return fmt.Sprintf("%s/control/%s/set", c.cfg.BaseTopic, kind)
}

// ParseControlMessage validates a message received on a control set topic.
// Messages on other topics and out-of-range payloads are rejected, never
// forwarded half-parsed.
func (c *MQTTClient) ParseControlMessage(msg mqtt.Message) (*ControlMessage, error) {
	return parseControl(c.controlTopic, msg.Topic(), msg.Payload())
}

func parseControl(controlTopic *regexp.Regexp, topic string, payload []byte) (*ControlMessage, error) {
	matches := controlTopic.FindStringSubmatch(topic)
	if matches == nil {
		return nil, errors.New("not a control topic")
	}
	switch kind := ControlKind(matches[1]); kind {
	case ControlEnable:
		switch string(payload) {
		case MQTT_PAYLOAD_ON:
			return &ControlMessage{Kind: ControlEnable, Enable: true}, nil
		case MQTT_PAYLOAD_OFF:
			return &ControlMessage{Kind: ControlEnable}, nil
		}
		return nil, fmt.Errorf("enable control expects %q or %q", MQTT_PAYLOAD_ON, MQTT_PAYLOAD_OFF)
	case ControlMinSOC:
		value, err := strconv.ParseUint(string(payload), 10, 8)
		if err != nil {
			return nil, err
		}
		if value > 100 {
			return nil, fmt.Errorf("min_soc control %d outside [0, 100]", value)
		}
		return &ControlMessage{Kind: ControlMinSOC, MinSOC: uint(value)}, nil
	default:
		return nil, fmt.Errorf("unknown control %q", kind)
	}
}

func (c *MQTTClient) SubscribeToControlTopic(handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	c.Subscribe(fmt.Sprintf("%s/control/+/set", c.cfg.BaseTopic), 1, handler, continuation, timeout)
}

func (c *MQTTClient) Publish(topic string, payload any, qos byte, retain bool, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Publish(topic, qos, retain, payload), "publish", continuation, timeout)
}

func (c *MQTTClient) Subscribe(topic string, qos byte, handler mqtt.MessageHandler, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Subscribe(topic, qos, handler), "subscribe", continuation, timeout)
}

func (c *MQTTClient) Unsubscribe(topic string, continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Unsubscribe(topic), "unsubscribe", continuation, timeout)
}

func (c *MQTTClient) Connect(continuation func(error), timeout time.Duration) {
	awaitToken(c.client.Connect(), "connect", continuation, timeout)
}

func (c *MQTTClient) Disconnect(timeout time.Duration) {
	c.client.Disconnect(uint(timeout.Milliseconds()))
}

// awaitToken turns paho's token wait into a continuation so actor code
// never blocks on broker IO.
func awaitToken(token mqtt.Token, op string, continuation func(error), timeout time.Duration) {
	go func() {
		if !token.WaitTimeout(timeout) {
			continuation(fmt.Errorf("MQTT %s timed out", op))
			return
		}
		continuation(token.Error())
	}()
}

func controlTopicExtractor(baseTopic string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf("^%s/control/([a-z0-9_]+)/set$", baseTopic))
}

func bridgeStateTopic(baseTopic string) string {
	return fmt.Sprintf("%s/bridge/state", baseTopic)
}
