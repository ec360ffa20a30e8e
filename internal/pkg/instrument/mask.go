package instrument

import (
	"encoding/json"
	"net/http"
	"strings"
)

const masked = "***"

// Masker replaces the values of configured keys (case-insensitive) in log
// payloads, headers and decoded JSON bodies.
type Masker struct {
	keys map[string]struct{}
}

func NewMasker(fields []string) *Masker {
	keys := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		field = strings.TrimSpace(strings.ToLower(field))
		if field != "" {
			keys[field] = struct{}{}
		}
	}
	return &Masker{keys: keys}
}

// Empty reports whether no key is masked.
func (m *Masker) Empty() bool {
	return m == nil || len(m.keys) == 0
}

// Has reports whether key must be masked.
func (m *Masker) Has(key string) bool {
	if m.Empty() {
		return false
	}
	_, ok := m.keys[strings.ToLower(key)]
	return ok
}

// Headers returns a copy of h with masked values.
func (m *Masker) Headers(h http.Header) http.Header {
	if m.Empty() {
		return h
	}
	out := h.Clone()
	for key := range out {
		if m.Has(key) {
			out.Set(key, masked)
		}
	}
	return out
}

// Value masks nested maps and slices produced by encoding/json.
func (m *Masker) Value(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			if m.Has(k) {
				out[k] = masked
				continue
			}
			out[k] = m.Value(v2)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(val))
		for k, v2 := range val {
			out[k] = v2
		}
		return m.Value(out)
	case []any:
		out := make([]any, len(val))
		for i, v2 := range val {
			out[i] = m.Value(v2)
		}
		return out
	default:
		return v
	}
}

// JSON masks a JSON document; ok is false when payload is not JSON.
func (m *Masker) JSON(payload []byte) (string, bool) {
	if len(payload) == 0 || (payload[0] != '{' && payload[0] != '[') {
		return "", false
	}
	var body any
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", false
	}
	out, err := json.Marshal(m.Value(body))
	if err != nil {
		return "", false
	}
	return string(out), true
}
