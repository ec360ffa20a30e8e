// Package config exposes typed, hot-reloadable application settings.
package config

import (
	"io"
	"time"
)

// TimeConfig reads integer keys as durations of the named unit.
type TimeConfig interface {
	GetSecond(key string) time.Duration
	GetMinute(key string) time.Duration
	GetHour(key string) time.Duration
}

// Config is the read side of the configuration consumed by modules.
//
// Missing keys return zero values; callers that need a fallback register it
// with WithDefaults when the Config is built.
type Config interface {
	io.Closer
	TimeConfig

	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64
	GetBool(key string) bool
	GetString(key string) string

	// GetBinary decodes a base64 value; invalid input yields nil.
	GetBinary(key string) []byte

	// GetArray splits a comma separated value, trimming blanks.
	GetArray(key string) []string

	// GetMap parses "k:v,k:v" pairs.
	GetMap(key string) map[string]string
}
