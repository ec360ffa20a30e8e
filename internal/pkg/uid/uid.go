// Package uid generates identifiers: numeric snowflakes for records and
// UUID strings for correlation and message ids.
package uid

// NumberID generates unique, time-ordered int64 ids.
type NumberID interface {
	Generate() int64
}

// StringID generates unique string ids.
type StringID interface {
	Generate() string
}
