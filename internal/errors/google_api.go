package errors

import (
	"context"
	stderrors "errors"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"google.golang.org/api/googleapi"
)

// ClassifyGoogleAPIError maps a Drive API failure onto the tool's error codes.
// Anything that is not a googleapi.Error is treated as a transient transport failure.
func ClassifyGoogleAPIError(service string, err error, reqCtx *types.RequestContext, logger logging.Logger) error {
	if _, ok := utils.AsAppError(err); ok {
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, err.Error()).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeTimeout, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			Build(), err)
	}

	var apiErr *googleapi.Error
	if !stderrors.As(err, &apiErr) {
		logger.Error("Non-API error",
			logging.F("error", err.Error()),
			logging.F("traceId", reqCtx.TraceID),
		)
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError, err.Error()).
			WithRetryable(true).
			WithContext("traceId", reqCtx.TraceID).
			WithContext("service", service).
			Build(), err)
	}

	var code string
	var retryable bool

	switch apiErr.Code {
	case 400:
		code = utils.ErrCodeInvalidArgument
		for _, e := range apiErr.Errors {
			if e.Reason == "teamDriveFileLimitExceeded" {
				code = utils.ErrCodeQuotaExceeded
			}
		}
	case 401:
		code = utils.ErrCodeAuthExpired
	case 403:
		code = utils.ErrCodePermissionDenied
		for _, e := range apiErr.Errors {
			switch e.Reason {
			case "storageQuotaExceeded":
				code = utils.ErrCodeQuotaExceeded
			case "userRateLimitExceeded", "rateLimitExceeded":
				code = utils.ErrCodeRateLimited
				retryable = true
			case "dailyLimitExceeded":
				code = utils.ErrCodeRateLimited
			case "domainPolicy":
				code = utils.ErrCodePolicyViolation
			}
		}
	case 404:
		code = utils.ErrCodeFileNotFound
	case 409:
		code = utils.ErrCodeAlreadyExists
	case 429:
		code = utils.ErrCodeRateLimited
		retryable = true
	case 500, 502, 503, 504:
		code = utils.ErrCodeNetworkError
		retryable = true
	default:
		code = utils.ErrCodeUnknown
		retryable = apiErr.Code >= 500
	}

	logger.Error("API error classified",
		logging.F("httpStatus", apiErr.Code),
		logging.F("errorCode", code),
		logging.F("retryable", retryable),
		logging.F("message", apiErr.Message),
		logging.F("traceId", reqCtx.TraceID),
		logging.F("service", service),
	)

	builder := utils.NewCLIError(code, apiErr.Message).
		WithHTTPStatus(apiErr.Code).
		WithRetryable(retryable).
		WithContext("traceId", reqCtx.TraceID).
		WithContext("requestType", string(reqCtx.RequestType)).
		WithContext("service", service)

	if len(apiErr.Errors) > 0 {
		builder.WithDriveReason(apiErr.Errors[0].Reason)
		switch apiErr.Errors[0].Reason {
		case "storageQuotaExceeded":
			builder.WithContext("suggestedAction", "free up space in Google Drive or upgrade storage")
		case "dailyLimitExceeded":
			builder.WithContext("suggestedAction", "quota will reset in 24 hours")
		case "insufficientFilePermissions":
			builder.WithContext("capability", "write_access_required")
		}
	}

	switch code {
	case utils.ErrCodeAuthExpired:
		builder.WithContext("suggestedAction", "check the service account key and its scopes")
	case utils.ErrCodeFileNotFound:
		if len(reqCtx.InvolvedFileIDs) > 0 {
			builder.WithContext("fileIds", reqCtx.InvolvedFileIDs)
		}
		if len(reqCtx.InvolvedParentIDs) > 0 {
			builder.WithContext("parentIds", reqCtx.InvolvedParentIDs)
		}
	case utils.ErrCodeRateLimited, utils.ErrCodeNetworkError:
		builder.WithContext("suggestedAction", "retry later")
	}

	return utils.WrapAppError(builder.Build(), err)
}
