// Package authsvc wraps Firebase ID-token verification for the optional
// bearer-auth path in front of /chat/stream and the auxiliary endpoints.
// Grounded in the teacher's internal/service/auth.go.
package authsvc

import (
	"context"
	"fmt"

	"firebase.google.com/go/v4/auth"
)

// Client is the interface for Firebase token verification; an interface so
// tests can supply a stub.
type Client interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// Service verifies Firebase ID tokens and returns the caller's user ID.
type Service struct {
	client Client
}

// New creates a Service backed by client.
func New(client Client) *Service {
	return &Service{client: client}
}

// VerifyToken validates a Firebase ID token and returns the user ID (UID).
func (s *Service) VerifyToken(ctx context.Context, idToken string) (string, error) {
	if idToken == "" {
		return "", fmt.Errorf("authsvc.VerifyToken: token is empty")
	}

	token, err := s.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", fmt.Errorf("authsvc.VerifyToken: %w", err)
	}

	return token.UID, nil
}
