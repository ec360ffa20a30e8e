package event

import "time"

const OTPIssuedDestination string = "otp_issued"
const OTPIssuedDestinationConsumerNotification string = "otp_issued_notification"

// OTPIssuedMessage carries the code itself, so the topic must stay internal.
type OTPIssuedMessage struct {
	OTPID       int64     `json:"otp_id"`
	SubjectID   string    `json:"subject_id"`
	Destination string    `json:"destination"`
	Purpose     string    `json:"purpose"`
	Code        string    `json:"code"`
	ExpiresAt   time.Time `json:"expires_at"`
}
