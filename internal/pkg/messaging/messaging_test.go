package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	nsq "github.com/nsqio/go-nsq"
)

type fixedIDs string

func (f fixedIDs) Generate() string { return string(f) }

func TestStampID(t *testing.T) {
	msg := OutgoingMessage{Body: []byte(`{}`)}

	id := stampID(&msg, fixedIDs("m-1"))

	if id != "m-1" || HeaderValue(msg.Headers, HeaderMessageID) != "m-1" {
		t.Fatalf("stampID() = %q, headers = %v", id, msg.Headers)
	}

	// an explicit id wins
	msg = OutgoingMessage{Headers: []Header{{Key: HeaderMessageID, Value: []byte("mine")}}}
	if id := stampID(&msg, fixedIDs("m-2")); id != "mine" || len(msg.Headers) != 1 {
		t.Fatalf("stampID() = %q, headers = %v", id, msg.Headers)
	}
}

func TestNSQEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{name: "json body", body: []byte(`{"otp_id":42}`)},
		{name: "text body", body: []byte("hello, world")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := encodeNSQ("m-1", OutgoingMessage{
				Body:    tt.body,
				Headers: []Header{{Key: "cID", Value: []byte("corr")}},
			})
			if err != nil {
				t.Fatalf("encodeNSQ() error = %v", err)
			}

			got := decodeNSQ("otp_issued", nsq.NewMessage(nsq.MessageID{'a'}, raw))

			if got.ID() != "m-1" || got.Header("cID") != "corr" || got.Source() != "otp_issued" {
				t.Fatalf("decoded = id %q cID %q source %q", got.ID(), got.Header("cID"), got.Source())
			}
			if string(got.Body()) != string(tt.body) {
				t.Fatalf("Body() = %s, want %s", got.Body(), tt.body)
			}
		})
	}
}

func TestNSQEnvelope_ForeignMessage(t *testing.T) {
	m := nsq.NewMessage(nsq.MessageID{'0', '1'}, []byte(`{"plain":true}`))

	got := decodeNSQ("t", m)

	if string(got.Body()) != `{"plain":true}` || got.Header("cID") != "" {
		t.Fatalf("foreign message altered: %s", got.Body())
	}
	if got.ID() == "" {
		t.Fatalf("expected broker id fallback")
	}
}

type fakeMessage struct {
	once
	acks, nacks int
}

func (m *fakeMessage) Body() []byte         { return nil }
func (m *fakeMessage) Key() []byte          { return nil }
func (m *fakeMessage) Headers() []Header    { return nil }
func (m *fakeMessage) Header(string) string { return "" }
func (m *fakeMessage) ID() string           { return "fake" }
func (m *fakeMessage) Source() string       { return "t" }
func (m *fakeMessage) Timestamp() time.Time { return time.Time{} }

func (m *fakeMessage) Ack(context.Context) error {
	if m.claim() {
		m.acks++
	}
	return nil
}

func (m *fakeMessage) Nack(context.Context) error {
	if m.claim() {
		m.nacks++
	}
	return nil
}

func TestDispatch(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name      string
		handler   Handler
		autoAck   bool
		wantErr   bool
		wantAcks  int
		wantNacks int
	}{
		{name: "ack on success", handler: func(context.Context, Message) error { return nil }, autoAck: true, wantAcks: 1},
		{name: "nack on error", handler: func(context.Context, Message) error { return boom }, autoAck: true, wantErr: true, wantNacks: 1},
		{name: "nack on panic", handler: func(context.Context, Message) error { panic("bad") }, autoAck: true, wantErr: true, wantNacks: 1},
		{name: "manual ack", handler: func(context.Context, Message) error { return nil }},
		{
			name: "handler responded itself",
			handler: func(ctx context.Context, m Message) error {
				return errors.Join(m.Ack(ctx), boom)
			},
			autoAck:  true,
			wantErr:  true,
			wantAcks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &fakeMessage{}

			err := dispatch(context.Background(), "test", msg, tt.handler, tt.autoAck)

			if (err != nil) != tt.wantErr {
				t.Fatalf("dispatch() error = %v, wantErr %v", err, tt.wantErr)
			}
			if msg.acks != tt.wantAcks || msg.nacks != tt.wantNacks {
				t.Fatalf("acks = %d nacks = %d, want %d/%d", msg.acks, msg.nacks, tt.wantAcks, tt.wantNacks)
			}
		})
	}
}

func TestNewFromDriver(t *testing.T) {
	if _, err := NewFromDriver("pubsub", FactoryOptions{}); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("error = %v, want ErrUnknownDriver", err)
	}
	if _, err := NewFromDriver("kafka", FactoryOptions{}); !errors.Is(err, ErrKafkaBrokersRequired) {
		t.Fatalf("error = %v, want ErrKafkaBrokersRequired", err)
	}
	if _, err := NewFromDriver(" NATS ", FactoryOptions{}); !errors.Is(err, ErrNATSURLRequired) {
		t.Fatalf("error = %v, want ErrNATSURLRequired", err)
	}
}

func TestNewConsumeOptions(t *testing.T) {
	co := newConsumeOptions(WithConcurrency(0), WithChannel("mailer"), nil)

	if co.concurrency != 1 || co.channel != "mailer" {
		t.Fatalf("options = %+v", co)
	}
}
