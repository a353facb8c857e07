package relay

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Reserved body fields.
const (
	FieldTimestamp = "timestamp"
	FieldDuplicate = "duplicate"
)

// Message is one telemetry message as published on the telemetry topic.
type Message struct {
	Device  string         `json:"device"`
	Type    string         `json:"type,omitempty"`
	Body    map[string]any `json:"body"`
	Route   []any          `json:"route,omitempty"`
	History []any          `json:"history,omitempty"`
}

// ParseMessage decodes payload. The device ID falls back to the last topic
// segment and is uppercased. Numbers are kept as json.Number so values are
// forwarded unchanged.
func ParseMessage(topic string, payload []byte) (Message, error) {
	var msg Message
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}

	if msg.Device == "" {
		if i := strings.LastIndexByte(topic, '/'); i >= 0 {
			msg.Device = topic[i+1:]
		} else {
			msg.Device = topic
		}
	}
	msg.Device = strings.ToUpper(strings.TrimSpace(msg.Device))
	if msg.Device == "" || strings.ContainsAny(msg.Device, "+#") {
		return Message{}, ErrNoDeviceID
	}
	if msg.Body == nil {
		msg.Body = map[string]any{}
	}
	return msg, nil
}

// IsDuplicate reports whether body is flagged as a duplicate delivery,
// either as boolean true or the string "true".
func IsDuplicate(body map[string]any) bool {
	switch v := body[FieldDuplicate].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}

// ParseTimestamp returns the integer part of the body timestamp in
// milliseconds, or 0 when it is missing or not numeric.
func ParseTimestamp(body map[string]any) int64 {
	switch v := body[FieldTimestamp].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return truncateMillis(f)
	case string:
		return parseLeadingInt(v)
	case float64:
		return truncateMillis(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// truncateMillis drops the fraction of f. NaN, infinities and values outside
// the int64 range give 0.
func truncateMillis(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0
	}
	return int64(f)
}

// parseLeadingInt parses the leading decimal integer of s, ignoring anything
// after it: "1500000000123.5" -> 1500000000123.
func parseLeadingInt(s string) int64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || (end == 0 && (s[end] == '-' || s[end] == '+'))) {
		end++
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// truthy reports whether v counts as present: not nil, false, zero or empty.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case json.Number:
		f, err := x.Float64()
		return err != nil || (f != 0 && !math.IsNaN(f))
	case float64:
		return x != 0 && !math.IsNaN(x)
	case float32:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	}
	return true
}

// copyBody returns a shallow copy of body.
func copyBody(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}
	return out
}
