package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
)

// Verifier checks Firebase ID tokens presented to callable endpoints.
type Verifier struct {
	client *auth.Client
}

// NewVerifier creates a verifier from an initialized app.
func NewVerifier(ctx context.Context, app *fb.App) (*Verifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("auth client: %w", err)
	}
	return &Verifier{client: client}, nil
}

// VerifyToken returns the uid of a valid ID token.
func (v *Verifier) VerifyToken(ctx context.Context, idToken string) (string, error) {
	tok, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return "", err
	}
	return tok.UID, nil
}
