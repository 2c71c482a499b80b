// Package json selects the JSON implementation for the whole project.
// All internal marshalling goes through here so the codec can be swapped
// in one place.
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// Marshal encodes v into JSON bytes.
func Marshal(v any) ([]byte, error) { return sonic.Marshal(v) }

// MarshalString encodes v into a JSON string.
func MarshalString(v any) (string, error) { return sonic.MarshalString(v) }

// MarshalIndent encodes v with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return sonic.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes JSON bytes into v.
func Unmarshal(data []byte, v any) error { return sonic.Unmarshal(data, v) }

// UnmarshalString decodes a JSON string into v.
func UnmarshalString(data string, v any) error { return sonic.UnmarshalString(data, v) }

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) sonic.Decoder { return sonic.ConfigDefault.NewDecoder(r) }

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) sonic.Encoder { return sonic.ConfigDefault.NewEncoder(w) }
