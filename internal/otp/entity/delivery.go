package entity

import "time"

// Delivery is the payload handed to a delivery channel.
type Delivery struct {
	OTPID       int64
	SubjectID   string
	Destination string
	Code        string
	Purpose     Purpose
	ExpiresAt   time.Time
}

// DeliveryResult reports what the channel accepted.
type DeliveryResult struct {
	Success   bool
	MessageID string
}
