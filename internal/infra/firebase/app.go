// Package firebase adapts the Firebase Admin SDK: FCM multicast for push
// delivery and ID token verification for callable endpoints.
package firebase

import (
	"context"
	"fmt"

	fb "firebase.google.com/go/v4"
	"google.golang.org/api/option"
)

// NewApp initializes a Firebase app for projectID. credentialsFile may be
// empty to use application default credentials.
func NewApp(ctx context.Context, projectID, credentialsFile string) (*fb.App, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	var cfg *fb.Config
	if projectID != "" {
		cfg = &fb.Config{ProjectID: projectID}
	}
	app, err := fb.NewApp(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	return app, nil
}
