package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/deeplyinc/homeaudio-go/internal/errors"
	"github.com/deeplyinc/homeaudio-go/internal/logger"
	"github.com/deeplyinc/homeaudio-go/internal/observability/metrics"
)

// client implements Client on top of paho. Reconnects after a lost
// connection are left to paho's auto reconnect.
type client struct {
	config          Config
	internalClient  paho.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         metricsRecorder
	log             logger.Logger
}

// NewClient creates a new MQTT client. A nil m disables metrics.
func NewClient(config Config, m *metrics.MQTTMetrics) Client {
	c := &client{
		config:  config,
		metrics: nopMetrics{},
		log:     GetLogger(),
	}
	if m != nil {
		c.metrics = m
	}
	return c
}

// Connect resolves the broker host and connects. Calls closer together
// than ReconnectCooldown are rejected.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if since := time.Since(c.lastConnAttempt); since < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", since).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("operation", "parse_broker_url").
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryNetwork).
				Context("operation", "resolve_broker").
				Context("host", host).
				Build()
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(c.config.ConnectTimeout)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetReconnectingHandler(c.onReconnecting)

	c.internalClient = paho.NewClient(opts)

	token := c.internalClient.Connect()
	if !waitToken(ctx, token, c.config.ConnectTimeout) {
		return errors.Newf("connection timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("broker", c.config.Broker).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("broker", c.config.Broker).
			Build()
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

// Publish sends payload with QoS 0.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnectedLocked() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, 0, c.config.Retain, payload)
	if !waitToken(ctx, token, c.config.PublishTimeout) {
		err := errors.Newf("publish timeout").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
		c.metrics.RecordPublish(len(payload), time.Since(start), err)
		return err
	}

	err := token.Error()
	c.metrics.RecordPublish(len(payload), time.Since(start), err)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnectedLocked()
}

func (c *client) isConnectedLocked() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internalClient != nil && c.internalClient.IsConnectionOpen() {
		c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds())) //nolint:gosec // small positive duration
	}
	c.metrics.UpdateConnectionStatus(false)
}

func (c *client) onConnect(paho.Client) {
	c.log.Info("Connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.UpdateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ paho.Client, err error) {
	c.log.Warn("Connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
}

func (c *client) onReconnecting(paho.Client, *paho.ClientOptions) {
	c.log.Debug("Reconnecting to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.IncrementReconnectAttempts()
}

// waitToken waits for token until timeout or ctx is done, reporting
// whether the token completed.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return true
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}
