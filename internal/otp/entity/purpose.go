package entity

import "strings"

// Purpose scopes a code to one flow; codes never cross purposes.
type Purpose int16

const (
	PurposeUnknown Purpose = iota
	PurposeRegistration
	PurposeLogin
	PurposePasswordReset
)

func (p Purpose) String() string {
	switch p {
	case PurposeRegistration:
		return "REGISTRATION"
	case PurposeLogin:
		return "LOGIN"
	case PurposePasswordReset:
		return "PASSWORD_RESET"
	default:
		return "UNKNOWN"
	}
}

func (p Purpose) IsValid() bool {
	return p >= PurposeRegistration && p <= PurposePasswordReset
}

// ParsePurpose maps the wire name (case-insensitive) to a Purpose.
func ParsePurpose(s string) Purpose {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "REGISTRATION":
		return PurposeRegistration
	case "LOGIN":
		return PurposeLogin
	case "PASSWORD_RESET":
		return PurposePasswordReset
	default:
		return PurposeUnknown
	}
}
