// Package messaging publishes and consumes events over NATS, NSQ or Kafka
// behind one broker-agnostic API.
//
// Every published message carries a Message-Id header; publishers may set
// it themselves, otherwise one is generated. Consumers use it as the
// deduplication key since all three brokers deliver at least once.
package messaging

import (
	"context"
	"errors"
	"io"
	"time"
)

// HeaderMessageID names the header holding the publisher-side message id.
const HeaderMessageID = "Message-Id"

var (
	// ErrUnsupported is returned when the broker cannot honour an option,
	// e.g. delayed delivery on NATS.
	ErrUnsupported = errors.New("messaging: unsupported operation")
	// ErrDestinationRequired is returned when publishing or consuming without a topic.
	ErrDestinationRequired = errors.New("messaging: destination is required")
	// ErrHandlerRequired is returned when Consume is called with a nil handler.
	ErrHandlerRequired = errors.New("messaging: handler is required")
)

// Messaging is a broker client able to publish and consume.
type Messaging interface {
	io.Closer

	Publisher
	Consumer
}

type Publisher interface {
	Publish(ctx context.Context, destination string, msg OutgoingMessage) (PublishResult, error)
}

type Consumer interface {
	// Consume blocks until ctx is done or the subscription fails.
	Consume(ctx context.Context, source string, handler Handler, opts ...ConsumeOption) error
}

// Handler processes one message. With auto ack enabled a nil return acks
// and an error nacks.
type Handler func(ctx context.Context, msg Message) error

type OutgoingMessage struct {
	Body []byte
	// Key drives Kafka partitioning; ignored elsewhere.
	Key     []byte
	Headers []Header
	// Delay defers delivery; only NSQ supports it.
	Delay time.Duration
}

type Header struct {
	Key   string
	Value []byte
}

type PublishResult struct {
	MessageID   string
	Destination string
	Timestamp   time.Time
}

// Message is a received message.
type Message interface {
	Body() []byte
	Key() []byte
	Headers() []Header
	// Header returns the first value of key, or "".
	Header(key string) string
	// ID is the Message-Id header, or a broker id when it is missing.
	ID() string
	Source() string
	Timestamp() time.Time

	Ack(ctx context.Context) error
	Nack(ctx context.Context) error
}

// HeaderValue returns the first value of key in headers.
func HeaderValue(headers []Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// stampID makes sure msg carries a Message-Id header and returns it.
func stampID(msg *OutgoingMessage, ids idGenerator) string {
	if id := HeaderValue(msg.Headers, HeaderMessageID); id != "" {
		return id
	}

	id := ids.Generate()
	msg.Headers = append(msg.Headers, Header{Key: HeaderMessageID, Value: []byte(id)})
	return id
}

type idGenerator interface {
	Generate() string
}
