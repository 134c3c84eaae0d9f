package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// OllamaStreamer targets a local Ollama daemon's /api/chat endpoint, the
// one provider family that does not stream over SSE: each line of the
// response body is its own JSON object, with no "data: " prefix and no
// "[DONE]" sentinel — the final line carries "done": true.
type OllamaStreamer struct {
	httpClient *http.Client
}

func NewOllamaStreamer(client *http.Client) *OllamaStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	return &OllamaStreamer{httpClient: client}
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIMessage `json:"messages"`
	Stream   bool            `json:"stream"`
}

type ollamaChatLine struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func (o *OllamaStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		msgs := make([]openAIMessage, len(messages))
		for i, m := range messages {
			msgs[i] = openAIMessage{Role: m.Role, Content: m.Content}
		}
		reqBody := ollamaChatRequest{Model: params.Model, Messages: msgs, Stream: true}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}

		baseURL := params.BaseURL
		if baseURL == "" {
			baseURL = defaultOllamaBaseURL
		}
		url := strings.TrimRight(baseURL, "/") + "/api/chat"

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.httpClient.Do(req)
		if err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- NewStreamError(httpStatusKind(resp.StatusCode), fmt.Errorf("ollama_local: status %d", resp.StatusCode))
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}

			var chunk ollamaChatLine
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				errs <- NewStreamError(KindUpstreamError, fmt.Errorf("ollama_local: %s", chunk.Error))
				return
			}
			if chunk.Message.Content != "" {
				select {
				case tokens <- Token(chunk.Message.Content):
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
		}
	}()

	return tokens, errs
}
