package mqtt

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/iothub-go-sdk/pkg/auth"
	"github.com/iothub-go-sdk/pkg/config"
	"github.com/iothub-go-sdk/pkg/tlsutil"
)

type MessageHandler func(topic string, payload []byte)

// Client wraps a paho MQTT session authenticated with a SAS token. The
// token provider is installed as the paho credentials provider so a
// reconnect after the token lapses gets a fresh password.
type Client struct {
	config     *config.Config
	connStr    *config.ConnectionString
	tokens     *auth.TokenProvider
	mqttClient mqtt.Client
	connected  bool
	mutex      sync.RWMutex
	handlers   map[string]MessageHandler
	logger     *slog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		config:   cfg,
		handlers: make(map[string]MessageHandler),
		logger:   slog.Default(),
	}
}

func (c *Client) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// DeviceID returns the device identifier from the connection string, or ""
// before Connect.
func (c *Client) DeviceID() string {
	if c.connStr == nil {
		return ""
	}
	return c.connStr.DeviceID
}

func (c *Client) Connect() error {
	if err := c.config.Validate(); err != nil {
		return err
	}

	connStr, err := config.ParseConnectionString(c.config.Device.ConnectionString)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}
	c.connStr = connStr

	c.tokens = auth.NewTokenProvider(connStr.HostName, connStr.DeviceID, connStr.SharedAccessKey, c.config.MQTT.TokenValidity)
	c.tokens.SetLogger(c.logger)

	username, password := c.tokens.MQTTCredentials()

	opts := mqtt.NewClientOptions()

	broker := fmt.Sprintf("tcp://%s:%d", connStr.HostName, c.config.MQTT.Port)
	if c.config.MQTT.UseTLS {
		broker = fmt.Sprintf("ssl://%s:%d", connStr.HostName, c.config.MQTT.Port)

		certPool, err := tlsutil.LoadCACert(c.config.TLS.CACert)
		if err != nil {
			return fmt.Errorf("failed to load CA certificate: %w", err)
		}

		opts.SetTLSConfig(&tls.Config{
			RootCAs:            certPool,
			ServerName:         c.config.TLS.ServerName,
			InsecureSkipVerify: c.config.TLS.SkipVerify,
			MinVersion:         tls.VersionTLS12,
		})
	}

	opts.AddBroker(broker)
	opts.SetClientID(c.config.GenerateClientID(connStr.DeviceID))
	opts.SetUsername(username)
	opts.SetPassword(password)
	opts.SetCredentialsProvider(c.tokens.MQTTCredentials)
	opts.SetKeepAlive(c.config.MQTT.KeepAlive)
	opts.SetCleanSession(c.config.MQTT.CleanSession)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.SetDefaultPublishHandler(c.defaultMessageHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)
	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetReconnectingHandler(c.reconnectingHandler)

	c.mqttClient = mqtt.NewClient(opts)

	token := c.mqttClient.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect: %w", token.Error())
	}

	c.mutex.Lock()
	c.connected = true
	c.mutex.Unlock()

	c.logger.Info("connected to broker", "broker", broker, "device", connStr.DeviceID)
	return nil
}

func (c *Client) Disconnect() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.mqttClient != nil && c.connected {
		c.mqttClient.Disconnect(250)
		c.connected = false
		c.logger.Info("disconnected from broker")
	}
}

func (c *Client) IsConnected() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.connected && c.mqttClient.IsConnected()
}

func (c *Client) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("client is not connected")
	}

	token := c.mqttClient.Publish(topic, qos, retained, payload)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message: %w", token.Error())
	}

	c.logger.Debug("published message", "topic", topic, "bytes", len(payload))
	return nil
}

// SendTelemetry publishes a device-to-cloud message on the standard
// telemetry topic.
func (c *Client) SendTelemetry(payload []byte, qos byte) error {
	return c.Publish(TelemetryTopic(c.DeviceID()), payload, qos, false)
}

func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if !c.IsConnected() {
		return fmt.Errorf("client is not connected")
	}

	c.mutex.Lock()
	c.handlers[topic] = handler
	c.mutex.Unlock()

	token := c.mqttClient.Subscribe(topic, qos, func(client mqtt.Client, msg mqtt.Message) {
		c.mutex.RLock()
		h, exists := c.handlers[topic]
		c.mutex.RUnlock()
		if exists {
			h(msg.Topic(), msg.Payload())
		}
	})

	if token.Wait() && token.Error() != nil {
		c.mutex.Lock()
		delete(c.handlers, topic)
		c.mutex.Unlock()
		return fmt.Errorf("failed to subscribe to topic: %w", token.Error())
	}

	c.logger.Info("subscribed", "topic", topic)
	return nil
}

// SubscribeCloudToDevice registers a handler for cloud-to-device messages on
// the device-bound topic filter.
func (c *Client) SubscribeCloudToDevice(qos byte, handler MessageHandler) error {
	return c.Subscribe(CloudToDeviceTopic(c.DeviceID()), qos, handler)
}

func (c *Client) Unsubscribe(topic string) error {
	if !c.IsConnected() {
		return fmt.Errorf("client is not connected")
	}

	token := c.mqttClient.Unsubscribe(topic)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to unsubscribe from topic: %w", token.Error())
	}

	c.mutex.Lock()
	delete(c.handlers, topic)
	c.mutex.Unlock()

	c.logger.Info("unsubscribed", "topic", topic)
	return nil
}

func (c *Client) defaultMessageHandler(client mqtt.Client, msg mqtt.Message) {
	c.logger.Info("received message", "topic", msg.Topic(), "payload", string(msg.Payload()))
}

func (c *Client) connectionLostHandler(client mqtt.Client, err error) {
	c.mutex.Lock()
	c.connected = false
	c.mutex.Unlock()
	c.logger.Warn("connection lost", "error", err)
}

func (c *Client) onConnectHandler(client mqtt.Client) {
	c.mutex.Lock()
	c.connected = true
	c.mutex.Unlock()
	c.logger.Info("connected to broker")
}

func (c *Client) reconnectingHandler(client mqtt.Client, opts *mqtt.ClientOptions) {
	c.logger.Info("attempting to reconnect to broker")
}
