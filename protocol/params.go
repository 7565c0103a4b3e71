package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Params is an ordered list of positional parameter values.
// Each element holds the raw JSON of one argument.
type Params []json.RawMessage

// ParseParams decodes raw request params. Absent or null params yield an
// empty list; anything other than a JSON array is rejected.
func ParseParams(raw json.RawMessage) (Params, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		return Params{}, nil
	}
	if raw[0] != '[' {
		return nil, fmt.Errorf("%w: params must be an array", ErrInvalidRequest)
	}
	var p Params
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return p, nil
}

// NewParams encodes Go values into a positional parameter list.
func NewParams(values ...any) (Params, error) {
	p := make(Params, 0, len(values))
	for i, v := range values {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode param %d: %w", i, err)
		}
		p = append(p, raw)
	}
	return p, nil
}

// Len returns the number of positional values.
func (p Params) Len() int {
	return len(p)
}

// Decode unmarshals the i-th value into v. A missing or ill-typed value
// produces an InvalidParams error suitable for returning from a handler.
func (p Params) Decode(i int, v any) error {
	if i < 0 || i >= len(p) {
		return NewInvalidParams(fmt.Sprintf("missing parameter %d", i))
	}
	if err := json.Unmarshal(p[i], v); err != nil {
		return NewInvalidParams(fmt.Sprintf("parameter %d: %v", i, err))
	}
	return nil
}

// Bind decodes leading values into dst in order. Surplus values are ignored.
func (p Params) Bind(dst ...any) error {
	for i, v := range dst {
		if err := p.Decode(i, v); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the list.
func (p Params) Clone() Params {
	if p == nil {
		return Params{}
	}
	out := make(Params, len(p))
	for i, raw := range p {
		out[i] = append(json.RawMessage(nil), raw...)
	}
	return out
}

// Append returns a copy of the list with v encoded as a trailing value.
func (p Params) Append(v any) (Params, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(p.Clone(), raw), nil
}

// MarshalJSON encodes a nil list as an empty array.
func (p Params) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(p))
}
