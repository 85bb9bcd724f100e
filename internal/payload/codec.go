// internal/payload/codec.go
package payload

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformed   = errors.New("malformed payload")
	ErrUnknownKind = errors.New("unknown payload type")
)

var validate = validator.New()

// Encode marshals p as a flat JSON object tagged with its kind:
//
//	{"type":"message","sender_id":3,"message":"hi"}
func Encode(p Payload) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	tag, err := json.Marshal(p.Kind())
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + len(tag) + 9)
	buf.WriteString(`{"type":`)
	buf.Write(tag)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// Decode reads the "type" tag of data and unmarshals the rest of the object into
// the matching concrete payload.
func Decode(data []byte) (Payload, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if head.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	p, ok := New(head.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, head.Type)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, head.Type, err)
	}
	return p, nil
}

// Validate checks the field constraints declared on p.
func Validate(p Payload) error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid %s payload: %w", p.Kind(), err)
	}
	return nil
}
