package v1

import (
	"strings"

	"github.com/loomhq/loom/pkg/utils/json"
)

// sseAccumulator collects assistant content from an SSE byte stream as
// it is teed to the client. Feed it raw chunks in arrival order; it
// re-frames them into events and pulls `choices[0].delta.content` out
// of each `data:` line. Malformed lines and [DONE] are ignored, per the
// contract that trace capture must never corrupt the passthrough.
type sseAccumulator struct {
	pending strings.Builder
	content strings.Builder
}

type ssePayload struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Write absorbs one raw chunk. It always succeeds; implements io.Writer
// so the tee can MultiWriter into it.
func (a *sseAccumulator) Write(p []byte) (int, error) {
	a.pending.Write(p)
	buffered := a.pending.String()

	// Consume only complete lines; a partial tail stays pending.
	for {
		i := strings.IndexByte(buffered, '\n')
		if i < 0 {
			break
		}
		a.consumeLine(buffered[:i])
		buffered = buffered[i+1:]
	}
	a.pending.Reset()
	a.pending.WriteString(buffered)
	return len(p), nil
}

func (a *sseAccumulator) consumeLine(line string) {
	line = strings.TrimRight(line, "\r")
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	data = strings.TrimSpace(data)
	if data == "" || data == "[DONE]" {
		return
	}

	var payload ssePayload
	if err := json.UnmarshalString(data, &payload); err != nil {
		return
	}
	if len(payload.Choices) > 0 {
		a.content.WriteString(payload.Choices[0].Delta.Content)
	}
}

// Content returns the accumulated assistant text.
func (a *sseAccumulator) Content() string {
	return a.content.String()
}
