// Package secondme is the client for the remote SecondMe agent service: the
// streaming response decoder plus the chat/act HTTP calls built on it.
package secondme

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// streamTerminator is the literal data payload that ends a stream without
// being content.
const streamTerminator = "[DONE]"

// StreamResult is the decoded outcome of one event stream: the concatenated
// delta text and the last session identifier the service sent (empty if it
// never sent one).
type StreamResult struct {
	Text      string
	SessionID string
}

// streamChunk is the shape of one data frame. The service either sends a
// session marker or an OpenAI-style delta; both arrive on data lines.
type streamChunk struct {
	SessionID string `json:"sessionId"`
	Choices   []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// DecodeEventStream consumes newline-delimited event/data frames until the
// [DONE] terminator or the stream closes. Data payloads that fail to parse
// as JSON are skipped: one bad frame must not lose the rest of the answer.
// Reads are buffered line-wise, so frame boundaries need not align with the
// underlying read boundaries.
func DecodeEventStream(r io.Reader) (StreamResult, error) {
	var result StreamResult
	var text strings.Builder

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if decodeLine(strings.TrimRight(line, "\r\n"), &result, &text) {
				break
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			result.Text = text.String()
			return result, err
		}
	}

	result.Text = text.String()
	return result, nil
}

// decodeLine handles a single frame line; it reports true when the
// terminator was seen.
func decodeLine(line string, result *StreamResult, text *strings.Builder) bool {
	// Control lines (event names, keepalive comments) carry no content.
	payload, ok := strings.CutPrefix(line, "data: ")
	if !ok {
		return false
	}
	if payload == streamTerminator {
		return true
	}

	var chunk streamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		return false
	}
	if chunk.SessionID != "" {
		result.SessionID = chunk.SessionID
		return false
	}
	if len(chunk.Choices) > 0 {
		text.WriteString(chunk.Choices[0].Delta.Content)
	}
	return false
}
