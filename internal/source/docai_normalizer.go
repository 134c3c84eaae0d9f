package source

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocAINormalizer extracts plain text from a non-plaintext source body (a
// fetched PDF attachment, a scanned ticket image) before it reaches the
// Chunker. Adapted from the teacher's Document AI client; grounded there,
// repurposed here as a SourceAdapter helper rather than an ingestion step.
type DocAINormalizer struct {
	client    *documentai.DocumentProcessorClient
	processor string
}

// NewDocAINormalizer dials Document AI in the given region.
func NewDocAINormalizer(ctx context.Context, location, processor string) (*DocAINormalizer, error) {
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("source.NewDocAINormalizer: %w", err)
	}
	return &DocAINormalizer{client: client, processor: processor}, nil
}

// Normalize extracts plain text from a GCS-hosted non-text body.
func (n *DocAINormalizer) Normalize(ctx context.Context, gcsURI, mimeType string) (string, error) {
	req := &documentaipb.ProcessRequest{
		Name: n.processor,
		Source: &documentaipb.ProcessRequest_GcsDocument{
			GcsDocument: &documentaipb.GcsDocument{GcsUri: gcsURI, MimeType: mimeType},
		},
	}

	resp, err := n.client.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("source.DocAINormalizer.Normalize: %w", err)
	}
	if resp.Document == nil {
		return "", fmt.Errorf("source.DocAINormalizer.Normalize: nil document in response")
	}
	return resp.Document.Text, nil
}

// Close releases the underlying gRPC connection.
func (n *DocAINormalizer) Close() error {
	return n.client.Close()
}
