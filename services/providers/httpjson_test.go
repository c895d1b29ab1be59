package providers

import (
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func extractJSONText(data []byte) (string, bool) {
	var chunk struct {
		Text string `json:"text"`
		Done bool   `json:"done"`
	}
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false
	}
	return chunk.Text, chunk.Done
}

func TestSSETextStream(t *testing.T) {
	raw := strings.Join([]string{
		`data: {"text":"Hel"}`,
		``,
		`: a comment line`,
		`event: message`,
		`data: {"text":"lo "}`,
		``,
		`data: {"text":"world","done":true}`,
		``,
		`data: {"text":"never seen"}`,
	}, "\n")

	stream := SSETextStream(io.NopCloser(strings.NewReader(raw)), extractJSONText)
	defer stream.Close()

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", string(out), "reading stops at the done marker")
}

func TestSSETextStreamSkipsMalformedEvents(t *testing.T) {
	raw := strings.Join([]string{
		`data: not json`,
		`data: {"text":"ok"}`,
	}, "\n")

	stream := SSETextStream(io.NopCloser(strings.NewReader(raw)), extractJSONText)
	defer stream.Close()

	out, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))
}

func TestTruncateBody(t *testing.T) {
	long := strings.Repeat("x", 600)

	assert.Equal(t, "short", truncateBody([]byte("short")))
	assert.Len(t, truncateBody([]byte(long)), 512+3)
}
