package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewDriveService creates a Drive API service authorized by ts. base sits
// under the OAuth transport; nil means http.DefaultTransport.
func NewDriveService(ctx context.Context, ts oauth2.TokenSource, base http.RoundTripper, timeout time.Duration) (*drive.Service, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	client := &http.Client{
		Transport: &oauth2.Transport{Source: ts, Base: base},
		Timeout:   timeout,
	}
	svc, err := drive.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInternalError,
			"failed to create Drive service").Build(), err)
	}
	return svc, nil
}
