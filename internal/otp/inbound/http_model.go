package inbound

import "time"

type IssueRequest struct {
	SubjectID   string `json:"subject_id"`
	Purpose     string `json:"purpose"`
	Destination string `json:"destination"`
	TTLMinutes  int    `json:"ttl_minutes,omitempty"`
}

type IssueResponse struct {
	Handle           string    `json:"handle"`
	ExpiresInSeconds int64     `json:"expires_in_seconds"`
	ExpiresAt        time.Time `json:"expires_at"`
	message          string
}

func (r IssueResponse) Message() string {
	return r.message
}

type VerifyRequest struct {
	SubjectID string `json:"subject_id"`
	Purpose   string `json:"purpose"`
	Code      string `json:"code"`
}

type VerifyResponse struct {
	Token string `json:"token"`
}

func (VerifyResponse) Message() string {
	return "Code verified"
}
