package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/connexus-ai/raqa-orchestrator/internal/model"
)

// Normalizer extracts plain text from a non-plaintext attachment. Matches
// DocAINormalizer's method so Search can be tested without a live Document
// AI client.
type Normalizer interface {
	Normalize(ctx context.Context, gcsURI, mimeType string) (string, error)
}

// JiraAdapter is an illustrative SourceAdapter for Jira Cloud's REST search
// API. Request construction and JSON decoding follow gcpclient's
// generateContentREST shape: build the request, issue it with the shared
// http.Client, decode the JSON body, surface a wrapped error on failure.
type JiraAdapter struct {
	httpClient *http.Client
	baseURL    string // e.g. "https://yourorg.atlassian.net"
	email      string
	apiToken   string
	normalizer Normalizer
}

// WithNormalizer attaches a Normalizer used for issues whose description is
// empty but whose attachment has already been mirrored to Cloud Storage by
// an external ingestion job (this adapter never uploads an attachment
// itself — only the already-staged GCS object is read back). Optional: a
// JiraAdapter without one simply returns an empty body for such issues.
func (a *JiraAdapter) WithNormalizer(n Normalizer) *JiraAdapter {
	a.normalizer = n
	return a
}

// NewJiraAdapter builds a JiraAdapter from a per-user CredentialsBlob. The
// core never validates these keys beyond presence — only this adapter
// interprets them, per SPEC_FULL §9's CredentialsBlob design note.
func NewJiraAdapter(httpClient *http.Client, creds model.CredentialsBlob) (*JiraAdapter, error) {
	baseURL := creds["base_url"]
	email := creds["email"]
	apiToken := creds["api_token"]
	if baseURL == "" || apiToken == "" {
		return nil, fmt.Errorf("source.NewJiraAdapter: base_url and api_token are required")
	}
	return &JiraAdapter{httpClient: httpClient, baseURL: baseURL, email: email, apiToken: apiToken}, nil
}

// Id satisfies Adapter.
func (a *JiraAdapter) Id() model.SourceId { return model.SourceJira }

// Healthy satisfies Adapter. Jira has no persistent connection to probe, so
// this adapter reports healthy whenever it was constructed with credentials;
// a down Jira instance surfaces through Search's own error instead.
func (a *JiraAdapter) Healthy() bool { return a.apiToken != "" }

type jiraSearchRequest struct {
	JQL        string   `json:"jql"`
	MaxResults int      `json:"maxResults"`
	Fields     []string `json:"fields"`
}

type jiraSearchResponse struct {
	Issues []struct {
		Key    string `json:"key"`
		Fields struct {
			Summary            string `json:"summary"`
			Description        string `json:"description"`
			AttachmentGCSURI   string `json:"attachment_gcs_uri"`
			AttachmentMimeType string `json:"attachment_mime_type"`
		} `json:"fields"`
	} `json:"issues"`
	ErrorMessages []string `json:"errorMessages"`
}

// Search runs a free-text JQL search ("text ~ query") and maps each issue to
// a Document. The ticket key becomes the Document ID so (Source, ID) stays
// globally unique, per model.Document's contract.
func (a *JiraAdapter) Search(ctx context.Context, query string, limit int) ([]model.Document, error) {
	reqBody := jiraSearchRequest{
		JQL:        fmt.Sprintf(`text ~ "%s"`, escapeJQL(query)),
		MaxResults: limit,
		Fields:     []string{"summary", "description"},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("source.JiraAdapter.Search: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/rest/api/3/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source.JiraAdapter.Search: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.email, a.apiToken)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source.JiraAdapter.Search: call: %w", err)
	}
	defer resp.Body.Close()

	var result jiraSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("source.JiraAdapter.Search: decode: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source.JiraAdapter.Search: status %d: %v", resp.StatusCode, result.ErrorMessages)
	}

	docs := make([]model.Document, 0, len(result.Issues))
	for _, issue := range result.Issues {
		body := issue.Fields.Description
		if body == "" && a.normalizer != nil && issue.Fields.AttachmentGCSURI != "" {
			text, err := a.normalizer.Normalize(ctx, issue.Fields.AttachmentGCSURI, issue.Fields.AttachmentMimeType)
			if err != nil {
				slog.Warn("source.JiraAdapter: attachment normalization failed", "issue", issue.Key, "error", err)
			} else {
				body = text
			}
		}
		docs = append(docs, model.Document{
			ID:     issue.Key,
			Source: model.SourceJira,
			Title:  fmt.Sprintf("%s: %s", issue.Key, issue.Fields.Summary),
			URL:    a.baseURL + "/browse/" + issue.Key,
			Body:   body,
		})
	}
	return docs, nil
}

// escapeJQL escapes the characters JQL's string-literal syntax treats
// specially, so a query containing a double quote cannot break out of the
// text ~ "..." clause.
func escapeJQL(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '"' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
