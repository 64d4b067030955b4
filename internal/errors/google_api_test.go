package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"google.golang.org/api/googleapi"
)

func TestClassifyGoogleAPIError(t *testing.T) {
	reqCtx := &types.RequestContext{TraceID: "trace", RequestType: types.RequestTypeListOrSearch}

	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"server error", &googleapi.Error{Code: 503, Message: "backend"}, utils.ErrCodeNetworkError, true},
		{"too many requests", &googleapi.Error{Code: 429}, utils.ErrCodeRateLimited, true},
		{"not found", &googleapi.Error{Code: 404}, utils.ErrCodeFileNotFound, false},
		{"conflict", &googleapi.Error{Code: 409}, utils.ErrCodeAlreadyExists, false},
		{
			"user rate limit",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}},
			utils.ErrCodeRateLimited, true,
		},
		{
			"quota",
			&googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "storageQuotaExceeded"}}},
			utils.ErrCodeQuotaExceeded, false,
		},
		{"wrapped api error", fmt.Errorf("call: %w", &googleapi.Error{Code: 502}), utils.ErrCodeNetworkError, true},
		{"transport", errors.New("dial tcp: connection refused"), utils.ErrCodeNetworkError, true},
		{"deadline", context.DeadlineExceeded, utils.ErrCodeTimeout, true},
		{"cancelled", context.Canceled, utils.ErrCodeCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyGoogleAPIError("drive", tt.err, reqCtx, logging.NewNoOpLogger())
			appErr, ok := utils.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %T", err)
			}
			if appErr.CLIError.Code != tt.wantCode {
				t.Errorf("code mismatch: got %s, want %s", appErr.CLIError.Code, tt.wantCode)
			}
			if appErr.CLIError.Retryable != tt.retryable {
				t.Errorf("retryable mismatch: got %v, want %v", appErr.CLIError.Retryable, tt.retryable)
			}
		})
	}
}

func TestClassifyGoogleAPIError_PassesThroughAppError(t *testing.T) {
	orig := utils.NewAppError(utils.NewCLIError(utils.ErrCodeTypeMismatch, "x").Build())
	got := ClassifyGoogleAPIError("drive", orig, &types.RequestContext{}, logging.NewNoOpLogger())
	if got != error(orig) {
		t.Errorf("expected the same AppError back, got %v", got)
	}
}
