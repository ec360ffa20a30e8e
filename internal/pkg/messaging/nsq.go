package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

var (
	// ErrNSQChannelRequired is returned when Consume has no channel.
	ErrNSQChannelRequired = errors.New("messaging: nsq channel is required")
	// ErrNSQProducerAddrRequired is returned when publishing without a producer address.
	ErrNSQProducerAddrRequired = errors.New("messaging: nsq producer address is required")
	// ErrNSQConsumerAddrsRequired is returned when consuming without nsqd or lookupd addresses.
	ErrNSQConsumerAddrsRequired = errors.New("messaging: nsq consumer nsqd/lookupd addresses are required")
)

type NSQConfig struct {
	ProducerAddr         string
	ConsumerNSQDAddrs    []string
	ConsumerLookupdAddrs []string
}

// NSQ is an NSQ client. NSQ has no message headers, so body and headers
// travel together in a JSON envelope.
type NSQ struct {
	producer *nsq.Producer
	ids      idGenerator
	cfg      NSQConfig

	mu        sync.Mutex
	consumers []*nsq.Consumer
	closed    bool
}

// nsqEnvelope is the wire format of every NSQ message.
type nsqEnvelope struct {
	ID      string            `json:"id"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    json.RawMessage   `json:"body"`
}

func NewNSQ(cfg NSQConfig, ids idGenerator) (*NSQ, error) {
	n := &NSQ{ids: ids, cfg: cfg}

	if cfg.ProducerAddr != "" {
		p, err := nsq.NewProducer(cfg.ProducerAddr, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("messaging: nsq new producer: %w", err)
		}
		p.SetLoggerLevel(nsq.LogLevelError)
		n.producer = p
	}

	return n, nil
}

// Close stops consumers and the producer.
func (n *NSQ) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	consumers := n.consumers
	n.consumers = nil
	n.mu.Unlock()

	for _, c := range consumers {
		c.Stop()
		<-c.StopChan
	}
	if n.producer != nil {
		n.producer.Stop()
	}
	return nil
}

func (n *NSQ) Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error) {
	if err := ctx.Err(); err != nil {
		return PublishResult{}, err
	}
	if destination == "" {
		return PublishResult{}, ErrDestinationRequired
	}
	if n.producer == nil {
		return PublishResult{}, ErrNSQProducerAddrRequired
	}

	id := stampID(&msg, n.ids)
	body, err := encodeNSQ(id, msg)
	if err != nil {
		return PublishResult{}, err
	}

	if msg.Delay > 0 {
		err = n.producer.DeferredPublish(destination, msg.Delay, body)
	} else {
		err = n.producer.Publish(destination, body)
	}
	if err != nil {
		return PublishResult{}, fmt.Errorf("messaging: nsq publish: %w", err)
	}

	return PublishResult{MessageID: id, Destination: destination, Timestamp: time.Now()}, nil
}

func (n *NSQ) Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error {
	if source == "" {
		return ErrDestinationRequired
	}
	if handler == nil {
		return ErrHandlerRequired
	}
	if len(n.cfg.ConsumerNSQDAddrs) == 0 && len(n.cfg.ConsumerLookupdAddrs) == 0 {
		return ErrNSQConsumerAddrsRequired
	}
	co := newConsumeOptions(opts...)
	if co.channel == "" {
		return ErrNSQChannelRequired
	}

	ccfg := nsq.NewConfig()
	ccfg.MaxInFlight = max(co.maxInFlight, co.concurrency)
	consumer, err := nsq.NewConsumer(source, co.channel, ccfg)
	if err != nil {
		return fmt.Errorf("messaging: nsq new consumer: %w", err)
	}
	consumer.SetLoggerLevel(nsq.LogLevelError)
	consumer.AddConcurrentHandlers(nsq.HandlerFunc(func(m *nsq.Message) error {
		m.DisableAutoResponse()
		return dispatch(ctx, "nsq", decodeNSQ(source, m), handler, co.autoAck)
	}), co.concurrency)

	if err := n.track(consumer); err != nil {
		stopNSQ(consumer)
		return err
	}

	if len(n.cfg.ConsumerLookupdAddrs) > 0 {
		err = consumer.ConnectToNSQLookupds(n.cfg.ConsumerLookupdAddrs)
	} else {
		err = consumer.ConnectToNSQDs(n.cfg.ConsumerNSQDAddrs)
	}
	if err != nil {
		stopNSQ(consumer)
		return fmt.Errorf("messaging: nsq connect: %w", err)
	}

	select {
	case <-ctx.Done():
		stopNSQ(consumer)
		return ctx.Err()
	case <-consumer.StopChan:
		return nil
	}
}

func (n *NSQ) track(c *nsq.Consumer) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return io.ErrClosedPipe
	}
	n.consumers = append(n.consumers, c)
	return nil
}

func stopNSQ(c *nsq.Consumer) {
	c.Stop()
	<-c.StopChan
}

func encodeNSQ(id string, msg OutgoingMessage) ([]byte, error) {
	env := nsqEnvelope{ID: id, Headers: make(map[string]string, len(msg.Headers))}
	for _, h := range msg.Headers {
		if h.Key != "" {
			env.Headers[h.Key] = string(h.Value)
		}
	}

	if json.Valid(msg.Body) {
		env.Body = msg.Body
	} else {
		raw, err := json.Marshal(string(msg.Body))
		if err != nil {
			return nil, fmt.Errorf("messaging: nsq encode body: %w", err)
		}
		env.Body = raw
	}

	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("messaging: nsq encode: %w", err)
	}
	return out, nil
}

// decodeNSQ unwraps an envelope. Messages published by other producers
// are passed through as a bare body.
func decodeNSQ(topic string, m *nsq.Message) *nsqMessage {
	out := &nsqMessage{topic: topic, msg: m, body: m.Body}

	var env nsqEnvelope
	if err := json.Unmarshal(m.Body, &env); err != nil || env.ID == "" || env.Body == nil {
		return out
	}

	out.id = env.ID
	out.headers = env.Headers
	out.body = env.Body

	// non-JSON bodies were wrapped as a JSON string
	var s string
	if json.Unmarshal(env.Body, &s) == nil {
		out.body = []byte(s)
	}
	return out
}

type nsqMessage struct {
	once
	topic   string
	msg     *nsq.Message
	id      string
	headers map[string]string
	body    []byte
}

func (m *nsqMessage) Body() []byte { return m.body }
func (m *nsqMessage) Key() []byte  { return nil }

func (m *nsqMessage) Headers() []Header {
	headers := make([]Header, 0, len(m.headers))
	for k, v := range m.headers {
		headers = append(headers, Header{Key: k, Value: []byte(v)})
	}
	return headers
}

func (m *nsqMessage) Header(key string) string { return m.headers[key] }

func (m *nsqMessage) ID() string {
	if m.id != "" {
		return m.id
	}
	return fmt.Sprintf("%x", m.msg.ID)
}

func (m *nsqMessage) Source() string       { return m.topic }
func (m *nsqMessage) Timestamp() time.Time { return time.Unix(0, m.msg.Timestamp) }

func (m *nsqMessage) Ack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.claim() {
		m.msg.Finish()
	}
	return nil
}

func (m *nsqMessage) Nack(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.claim() {
		m.msg.Requeue(-1)
	}
	return nil
}
