package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/growmesh/growlights-go/internal/services/spectrum"
)

// wirePayload is the JSON envelope field sensors publish. Channel values
// are raw counts; normalization happens during fusion.
type wirePayload struct {
	SensorID          string             `json:"sensorId"`
	Type              string             `json:"type"`
	Channels          map[string]float64 `json:"channels"`
	Gain              float64            `json:"gain"`
	IntegrationTimeMs float64            `json:"integrationTimeMs"`
	Lux               float64            `json:"lux"`
	ColorTempK        float64            `json:"colorTempK,omitempty"`
	Timestamp         int64              `json:"timestamp"` // unix millis
}

// MQTTIngestConfig configures the broker connection.
type MQTTIngestConfig struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	// Topic is the subscription filter, e.g. "greenhouse/+/light".
	Topic string
	QoS   byte
	// ConnectTimeout bounds each connection attempt.
	ConnectTimeout time.Duration
	// MaxReconnectWait caps the exponential backoff between attempts.
	MaxReconnectWait time.Duration
}

// MQTTIngest subscribes to sensor telemetry and feeds the shared reading
// cache. Connection loss is retried with exponential backoff.
type MQTTIngest struct {
	cfg    MQTTIngestConfig
	cache  *Cache
	client mqtt.Client
}

// NewMQTTIngest creates an ingest writing into cache.
func NewMQTTIngest(cfg MQTTIngestConfig, cache *Cache) *MQTTIngest {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.MaxReconnectWait <= 0 {
		cfg.MaxReconnectWait = time.Minute
	}
	return &MQTTIngest{cfg: cfg, cache: cache}
}

// Start connects to the broker and subscribes. The initial connection is
// retried with exponential backoff until ctx is cancelled; later drops are
// handled by the client's auto-reconnect with resubscription on connect.
func (m *MQTTIngest) Start(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(m.cfg.BrokerURL).
		SetClientID(m.cfg.ClientID).
		SetUsername(m.cfg.Username).
		SetPassword(m.cfg.Password).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(m.cfg.MaxReconnectWait).
		SetOnConnectHandler(func(c mqtt.Client) {
			if token := c.Subscribe(m.cfg.Topic, m.cfg.QoS, m.handleMessage); token.Wait() && token.Error() != nil {
				log.Printf("MQTT subscribe %s failed: %v", m.cfg.Topic, token.Error())
				return
			}
			log.Printf("MQTT subscribed to %s", m.cfg.Topic)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("MQTT connection lost: %v", err)
		})

	m.client = mqtt.NewClient(opts)

	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = m.cfg.MaxReconnectWait
	policy.MaxElapsedTime = 0 // keep trying until ctx cancels

	connect := func() error {
		token := m.client.Connect()
		token.Wait()
		if err := token.Error(); err != nil {
			log.Printf("MQTT connect %s failed: %v", m.cfg.BrokerURL, err)
			return err
		}
		return nil
	}
	if err := backoff.Retry(connect, backoff.WithContext(policy, ctx)); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", m.cfg.BrokerURL, err)
	}
	log.Printf("MQTT connected to %s", m.cfg.BrokerURL)
	return nil
}

// Stop disconnects from the broker, allowing in-flight work to finish.
func (m *MQTTIngest) Stop() {
	if m.client != nil && m.client.IsConnected() {
		m.client.Disconnect(250)
	}
}

func (m *MQTTIngest) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var p wirePayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		log.Printf("MQTT payload on %s not parseable: %v", msg.Topic(), err)
		return
	}
	if p.SensorID == "" {
		log.Printf("MQTT payload on %s missing sensorId; dropped", msg.Topic())
		return
	}
	sensType := spectrum.SensorType(p.Type)
	if !spectrum.KnownSensorType(sensType) {
		log.Printf("MQTT payload from %s has unknown sensor type %q; dropped", p.SensorID, p.Type)
		return
	}

	takenAt := time.Now()
	if p.Timestamp > 0 {
		takenAt = time.UnixMilli(p.Timestamp)
	}
	m.cache.Put(spectrum.Reading{
		SensorID:          p.SensorID,
		Type:              sensType,
		Channels:          p.Channels,
		Gain:              p.Gain,
		IntegrationTimeMs: p.IntegrationTimeMs,
		Lux:               p.Lux,
		ColorTempK:        p.ColorTempK,
		TakenAt:           takenAt,
	})
}
