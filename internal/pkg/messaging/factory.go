package messaging

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shandysiswandi/yieldcycle/internal/pkg/uid"
)

const (
	DriverNSQ   = "nsq"
	DriverNATS  = "nats"
	DriverKafka = "kafka"
)

// ErrUnknownDriver indicates an unsupported messaging driver.
var ErrUnknownDriver = errors.New("messaging: unknown driver")

type FactoryOptions struct {
	NSQ   NSQConfig
	Kafka KafkaConfig
	NATS  NATSConfig
	// IDs generates Message-Id values; defaults to UUIDs.
	IDs uid.StringID
}

// NewFromDriver constructs the client for driver.
func NewFromDriver(driver string, opts FactoryOptions) (Messaging, error) {
	ids := opts.IDs
	if ids == nil {
		ids = uid.NewUUID()
	}

	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverNSQ:
		return NewNSQ(opts.NSQ, ids)
	case DriverKafka:
		return NewKafka(opts.Kafka, ids)
	case DriverNATS:
		return NewNATS(opts.NATS, ids)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
}
