package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// GeminiStreamer streams from Vertex AI's Gemini REST endpoint, grounded in
// the teacher's gcpclient.GenAIAdapter.streamContentREST: a POST to
// :streamGenerateContent?alt=sse, scanned line-by-line for "data: " frames
// terminated by a "[DONE]" sentinel.
type GeminiStreamer struct {
	httpClient *http.Client
	project    string
	location   string
}

// NewGeminiStreamer builds a streamer against the given GCP project and
// Vertex AI location (e.g. "global" or a region).
func NewGeminiStreamer(client *http.Client, project, location string) *GeminiStreamer {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeminiStreamer{httpClient: client, project: project, location: location}
}

type geminiRESTRequest struct {
	Contents         []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRESTResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (g *GeminiStreamer) Stream(ctx context.Context, messages []Message, params Params) (<-chan Token, <-chan error) {
	tokens := make(chan Token)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		body, sysInstr := toGeminiContents(messages)
		reqBody := geminiRESTRequest{
			Contents:          body,
			SystemInstruction: sysInstr,
			GenerationConfig: geminiGenerationConfig{
				Temperature:     params.Temperature,
				MaxOutputTokens: params.MaxTokens,
			},
		}
		payload, err := json.Marshal(reqBody)
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}

		url := fmt.Sprintf(
			"https://aiplatform.googleapis.com/v1/projects/%s/locations/%s/publishers/google/models/%s:streamGenerateContent?alt=sse",
			g.project, g.location, params.Model,
		)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
		if err != nil {
			errs <- NewStreamError(KindBadRequest, err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+params.APIKey)

		resp, err := g.httpClient.Do(req)
		if err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			errs <- NewStreamError(httpStatusKind(resp.StatusCode), fmt.Errorf("gemini: status %d", resp.StatusCode))
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

			var chunk geminiRESTResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // skip malformed keep-alive/comment frames
			}
			if chunk.Error != nil {
				errs <- NewStreamError(httpStatusKind(chunk.Error.Code), fmt.Errorf("gemini: %s", chunk.Error.Message))
				return
			}
			for _, cand := range chunk.Candidates {
				for _, part := range cand.Content.Parts {
					if part.Text == "" {
						continue
					}
					select {
					case tokens <- Token(part.Text):
					case <-ctx.Done():
						return
					}
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- NewStreamError(KindUpstreamError, err)
		}
	}()

	return tokens, errs
}

// toGeminiContents splits the ordered Message list into Gemini's
// systemInstruction (the first system message, if any) and the remaining
// user/model turns, mapping "assistant" to Gemini's "model" role.
func toGeminiContents(messages []Message) ([]geminiContent, *geminiContent) {
	var sysInstr *geminiContent
	var out []geminiContent
	for _, m := range messages {
		if m.Role == "system" && sysInstr == nil {
			sysInstr = &geminiContent{Parts: []geminiPart{{Text: m.Content}}}
			continue
		}
		role := m.Role
		if role == "assistant" {
			role = "model"
		}
		out = append(out, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	return out, sysInstr
}
