package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIStreamer targets any OpenAI Chat Completions-compatible endpoint,
// including self-hosted gateways reachable via Params.BaseURL. Framing is
// SSE "data: {...}" lines terminated by a "[DONE]" sentinel.
type OpenAIStreamer struct {
	httpClient *http.Client
}

func NewOpenAIStreamer(client *http.Client) *OpenAIStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	return &OpenAIStreamer{httpClient: client}
}

type openAIChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Stream      bool            `json:"stream"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

func (o *OpenAIStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		msgs := make([]openAIMessage, len(messages))
		for i, m := range messages {
			msgs[i] = openAIMessage{Role: m.Role, Content: m.Content}
		}
		reqBody := openAIChatRequest{
			Model:       params.Model,
			Messages:    msgs,
			Stream:      true,
			Temperature: params.Temperature,
			MaxTokens:   params.MaxTokens,
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}

		baseURL := params.BaseURL
		if baseURL == "" {
			baseURL = defaultOpenAIBaseURL
		}
		url := strings.TrimRight(baseURL, "/") + "/chat/completions"

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+params.APIKey)

		resp, err := o.httpClient.Do(req)
		if err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- NewStreamError(httpStatusKind(resp.StatusCode), fmt.Errorf("openai_compatible: status %d", resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				return
			}

			var chunk openAIChatChunk
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue
			}
			if chunk.Error != nil {
				errs <- NewStreamError(KindUpstreamError, fmt.Errorf("openai_compatible: %s", chunk.Error.Message))
				return
			}
			for _, c := range chunk.Choices {
				if c.Delta.Content == "" {
					continue
				}
				select {
				case tokens <- Token(c.Delta.Content):
				case <-ctx.Done():
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
