package v1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSSEAccumulatorReassemblesSplitFrames(t *testing.T) {
	acc := &sseAccumulator{}

	// A data line arriving split across two reads must survive the
	// chunk boundary.
	acc.Write([]byte(`data: {"choices":[{"del`))
	assert.Empty(t, acc.Content())

	acc.Write([]byte("ta\":{\"content\":\"Hi\"}}]}\n\n"))
	assert.Equal(t, "Hi", acc.Content())
}

func TestSSEAccumulatorConcatenatesDeltas(t *testing.T) {
	acc := &sseAccumulator{}
	acc.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\r\n\r\n"))
	acc.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n"))
	acc.Write([]byte("data: [DONE]\n\n"))
	assert.Equal(t, "Hello", acc.Content())
}

func TestSSEAccumulatorIgnoresNoise(t *testing.T) {
	acc := &sseAccumulator{}
	acc.Write([]byte(": keepalive\n"))
	acc.Write([]byte("event: message\n"))
	acc.Write([]byte("data: not json\n\n"))
	acc.Write([]byte("data:\n\n"))
	assert.Empty(t, acc.Content())
}
