package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"

	"github.com/sweeney/rf433/internal/logic"
)

// DefaultBufferSize is how many messages are kept while the broker is
// unreachable.
const DefaultBufferSize = 100

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	BufferSize int
}

// RealPublisher publishes to an actual MQTT broker. Messages published while
// disconnected are buffered and replayed, oldest first, on reconnect.
type RealPublisher struct {
	client paho.Client

	mu     sync.Mutex
	buffer *ringBuffer
	send   SendHandler
}

// NewRealPublisher creates a publisher connected to the given broker. An
// OFFLINE system event is registered as the retained last will.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "rf433"
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	p := &RealPublisher{buffer: newRingBuffer(o.BufferSize)}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetUsername(o.Username).
		SetPassword(o.Password).
		SetWill(TopicSystem, string(will), 1, true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.WithError(err).Warn("mqtt: connection lost, buffering")
		})

	client := paho.NewClient(opts)
	p.client = client

	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// newPublisher wraps an existing client. The client's OnConnect handler
// must call p.onConnect.
func newPublisher(client paho.Client, bufferSize int) *RealPublisher {
	return &RealPublisher{client: client, buffer: newRingBuffer(bufferSize)}
}

// onConnect replays buffered messages and restores the send subscription.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	fn := p.send
	p.mu.Unlock()

	if len(msgs) > 0 {
		log.WithField("count", len(msgs)).Info("mqtt: replaying buffered messages")
	}
	for _, m := range msgs {
		if err := wait(c.Publish(m.topic, m.qos, m.retained, m.payload), "replay"); err != nil {
			log.WithError(err).WithField("topic", m.topic).Warn("mqtt: replay failed")
		}
	}

	if fn != nil {
		if err := p.subscribe(c, fn); err != nil {
			log.WithError(err).Warn("mqtt: resubscribe failed")
		}
	}
}

func wait(token paho.Token, what string) error {
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("%s timeout", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// publish sends now if connected and buffers otherwise.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained, queued: time.Now()})
		p.mu.Unlock()
		return nil
	}
	return wait(p.client.Publish(topic, qos, retained, payload), "publish")
}

// Publish sends a code event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return p.publish(Topic, 0, false, payload)
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) - lifecycle events should arrive
	return p.publish(TopicSystem, 1, event.Retained, payload)
}

// SubscribeSend installs fn for requests on TopicSend.
func (p *RealPublisher) SubscribeSend(fn SendHandler) error {
	if fn == nil {
		return errors.New("mqtt: nil send handler")
	}
	p.mu.Lock()
	p.send = fn
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		// onConnect subscribes once the broker is reachable.
		return nil
	}
	return p.subscribe(p.client, fn)
}

func (p *RealPublisher) subscribe(c paho.Client, fn SendHandler) error {
	return wait(c.Subscribe(TopicSend, 1, func(_ paho.Client, m paho.Message) {
		req, err := ParseSendRequest(m.Payload())
		if err != nil {
			log.WithError(err).WithField("payload", string(m.Payload())).Warn("mqtt: ignoring send request")
			return
		}
		fn(req)
	}), "subscribe")
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
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
