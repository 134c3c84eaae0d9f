package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1"

// AnthropicStreamer targets the Messages API, whose SSE framing carries a
// named "event:" line followed by a "data: {...}" line per event; the text
// deltas arrive on "content_block_delta" events.
type AnthropicStreamer struct {
	httpClient *http.Client
}

func NewAnthropicStreamer(client *http.Client) *AnthropicStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	return &AnthropicStreamer{httpClient: client}
}

type anthropicRequest struct {
	Model     string              `json:"model"`
	System    string              `json:"system,omitempty"`
	Messages  []anthropicMessage  `json:"messages"`
	Stream    bool                `json:"stream"`
	MaxTokens int                 `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *AnthropicStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		var system string
		var turns []anthropicMessage
		for _, m := range messages {
			if m.Role == "system" && system == "" {
				system = m.Content
				continue
			}
			turns = append(turns, anthropicMessage{Role: m.Role, Content: m.Content})
		}

		maxTokens := params.MaxTokens
		if maxTokens <= 0 {
			maxTokens = 4096
		}
		reqBody := anthropicRequest{
			Model:     params.Model,
			System:    system,
			Messages:  turns,
			Stream:    true,
			MaxTokens: maxTokens,
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}

		baseURL := params.BaseURL
		if baseURL == "" {
			baseURL = defaultAnthropicBaseURL
		}
		url := strings.TrimRight(baseURL, "/") + "/messages"

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", params.APIKey)
		req.Header.Set("anthropic-version", "2023-06-01")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- NewStreamError(httpStatusKind(resp.StatusCode), fmt.Errorf("anthropic: status %d", resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		var eventName string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				eventName = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				var ev anthropicEvent
				if err := json.Unmarshal([]byte(data), &ev); err != nil {
					continue
				}
				if eventName == "error" || ev.Type == "error" {
					errs <- NewStreamError(anthropicErrorKind(ev.Error.Type), fmt.Errorf("anthropic: %s", ev.Error.Message))
					return
				}
				if eventName == "content_block_delta" && ev.Delta.Type == "text_delta" && ev.Delta.Text != "" {
					select {
					case tokens <- Token(ev.Delta.Text):
					case <-ctx.Done():
						return
					}
				}
				if eventName == "message_stop" {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
		}
	}()

	return tokens, errs
}

func anthropicErrorKind(errType string) ErrorKind {
	switch errType {
	case "authentication_error", "permission_error":
		return KindAuth
	case "rate_limit_error":
		return KindRateLimited
	case "invalid_request_error":
		return KindBadRequest
	case "timeout_error":
		return KindUpstreamTimeout
	default:
		return KindUpstreamError
	}
}
