package completion

import (
	"context"
	"strings"
)

// EchoPrefix starts every offline response.
const EchoPrefix = "[offline] You said: "

// Echo is the deterministic local responder used when no API key is
// configured or the upstream rejects a request.
type Echo struct{}

// Stream implements Streamer by replaying the last user message word by word.
func (Echo) Stream(ctx context.Context, req *Request, onToken func(string) error) (string, error) {
	text := EchoText(lastUserContent(req))
	for _, part := range strings.SplitAfter(text, " ") {
		if part == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := onToken(part); err != nil {
			return "", err
		}
	}
	return text, nil
}

// EchoText returns the offline response for content.
func EchoText(content string) string {
	return EchoPrefix + content
}

func lastUserContent(req *Request) string {
	if req == nil {
		return ""
	}
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			return req.Messages[i].Content
		}
	}
	return ""
}
