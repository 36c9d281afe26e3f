package main

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"

	"github.com/tonimelisma/drivesync/internal/remote"
)

// newRemoteClient builds the Remote Client from Application Default
// Credentials, injecting a pre-built *http.Client rather than performing
// the OAuth exchange inline. Acquiring and refreshing the underlying token is
// delegated entirely to golang.org/x/oauth2/google — drivesync never
// implements an authorization-code flow itself.
func newRemoteClient(ctx context.Context, logger *slog.Logger) (remote.Client, error) {
	creds, err := google.FindDefaultCredentials(ctx, drive.DriveScope)
	if err != nil {
		return nil, fmt.Errorf("drivesync: finding Drive credentials: %w", err)
	}

	// transferHTTPClient has no timeout: downloads can run long and are
	// bounded by ctx cancellation instead.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, transferHTTPClient())
	httpClient := oauth2.NewClient(ctx, creds.TokenSource)

	driveClient, err := remote.NewDriveClient(ctx, httpClient, logger)
	if err != nil {
		return nil, fmt.Errorf("drivesync: building Drive client: %w", err)
	}

	return remote.NewRetrying(driveClient, logger), nil
}
