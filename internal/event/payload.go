package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

var (
	ErrMissingField = errors.New("missing field")
	ErrInvalidField = errors.New("invalid field")
)

// Payload is the field mapping carried by an event.
type Payload map[string]any

// DecodePayload decodes a JSON object, keeping numbers as json.Number.
func DecodePayload(data []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Payload
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("failed to decode payload: not a JSON object")
	}
	return p, nil
}

func (p Payload) get(field string) (any, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w %q", ErrMissingField, field)
	}
	return v, nil
}

func invalid(field string, v any) error {
	return fmt.Errorf("%w %q: unexpected %T value %v", ErrInvalidField, field, v, v)
}

// Int reads an integral field.
func (p Payload) Int(field string) (int64, error) {
	v, err := p.get(field)
	if err != nil {
		return 0, err
	}

	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case float64:
		// NaN fails the trunc check, ±Inf the range check; 1<<63 does not fit.
		if n != math.Trunc(n) || n < -(1<<63) || n >= 1<<63 {
			return 0, invalid(field, v)
		}
		return int64(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, invalid(field, v)
		}
		return i, nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0, invalid(field, v)
		}
		return i, nil
	}
	return 0, invalid(field, v)
}

// String reads a string field.
func (p Payload) String(field string) (string, error) {
	v, err := p.get(field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", invalid(field, v)
	}
	return s, nil
}

// Bool reads a boolean field.
func (p Payload) Bool(field string) (bool, error) {
	v, err := p.get(field)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalid(field, v)
	}
	return b, nil
}

// Label renders a scalar field as a label value.
func (p Payload) Label(field string) (string, error) {
	v, err := p.get(field)
	if err != nil {
		return "", err
	}

	switch x := v.(type) {
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case int:
		return strconv.Itoa(x), nil
	case int32:
		return strconv.FormatInt(int64(x), 10), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(x), nil
	}
	return "", invalid(field, v)
}

// Time reads a timestamp given as epoch seconds, an RFC 3339 string or a
// time.Time.
func (p Payload) Time(field string) (time.Time, error) {
	v, err := p.get(field)
	if err != nil {
		return time.Time{}, err
	}

	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, invalid(field, v)
		}
		return parsed, nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return time.Time{}, invalid(field, v)
		}
		return epoch(f), nil
	case float64:
		return epoch(t), nil
	case int:
		return time.Unix(int64(t), 0), nil
	case int64:
		return time.Unix(t, 0), nil
	}
	return time.Time{}, invalid(field, v)
}

func epoch(seconds float64) time.Time {
	sec, frac := math.Modf(seconds)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9)))
}
