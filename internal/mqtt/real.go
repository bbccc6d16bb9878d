package mqtt

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/sweeney/ledlink/internal/protocol"
)

// DefaultBufferSize is how many messages are kept while disconnected.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker         string
	ClientID       string // empty derives one from the machine id
	Prefix         string // empty uses DefaultPrefix
	BufferSize     int
	ConnectTimeout time.Duration
}

// RealPublisher publishes to an actual MQTT broker. Messages published
// while the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client      paho.Client
	eventsTopic string
	systemTopic string

	mu       sync.Mutex
	pending  *backlog
	connects int
}

// DefaultClientID returns a stable per-machine client id.
func DefaultClientID() string {
	id, err := machineid.ProtectedID("ledlink")
	if err != nil || len(id) < 8 {
		if host, herr := os.Hostname(); herr == nil && host != "" {
			return "ledlink-" + host
		}
		return "ledlink"
	}
	return "ledlink-" + id[:8]
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the client keeps retrying in
// the background and messages are buffered meanwhile.
func NewRealPublisher(opts Options) (*RealPublisher, error) {
	if opts.Broker == "" {
		return nil, errors.New("mqtt: broker address required")
	}
	if opts.ClientID == "" {
		opts.ClientID = DefaultClientID()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	p := &RealPublisher{
		eventsTopic: EventsTopic(opts.Prefix),
		systemTopic: SystemTopic(opts.Prefix),
		pending:     newBacklog(opts.BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(p.systemTopic, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			glog.Warningf("mqtt: connection lost: %v", err)
		})

	p.client = paho.NewClient(clientOpts)
	token := p.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		glog.Warningf("mqtt: broker %s not reachable yet, retrying in background", opts.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connects++
	reconnected := p.connects > 1
	msgs := p.pending.take()
	p.mu.Unlock()

	glog.Infof("mqtt: connected (replaying %d buffered messages)", len(msgs))
	// Handlers must not block the client.
	go p.replay(c, msgs, reconnected)
}

func (p *RealPublisher) replay(c paho.Client, msgs []bufferedMsg, reconnected bool) {
	if reconnected {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		msgs = append([]bufferedMsg{{topic: p.systemTopic, payload: payload, qos: 1}}, msgs...)
	}
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			glog.Warningf("mqtt: replay to %s failed: %v", m.topic, err)
			p.buffer(m)
		}
	}
}

// Publish sends a controller event (QoS 0, not retained).
func (p *RealPublisher) Publish(event protocol.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.eventsTopic, payload: payload})
}

// PublishSystem sends a lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: p.systemTopic, payload: payload, qos: 1, retained: event.Retained})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.buffer(m)
		return nil
	}
	if err := p.send(m); err != nil {
		p.buffer(m)
		return err
	}
	return nil
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", m.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", m.topic, err)
	}
	return nil
}

func (p *RealPublisher) buffer(m bufferedMsg) {
	p.mu.Lock()
	p.pending.add(m)
	p.mu.Unlock()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
