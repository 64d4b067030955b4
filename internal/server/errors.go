package server

import (
	"encoding/json"
	"net/http"

	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

type errorBody struct {
	Error      types.CLIError    `json:"error"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// statusFor maps an error code to the HTTP status returned to clients.
func statusFor(cliErr types.CLIError) int {
	switch cliErr.Code {
	case utils.ErrCodeInvalidArgument, utils.ErrCodeInvalidPath, utils.ErrCodeConfigInvalid:
		return http.StatusBadRequest
	case utils.ErrCodeAuthRequired, utils.ErrCodeAuthExpired, utils.ErrCodeAuthInvalid:
		return http.StatusUnauthorized
	case utils.ErrCodePermissionDenied, utils.ErrCodePolicyViolation:
		return http.StatusForbidden
	case utils.ErrCodeFileNotFound:
		return http.StatusNotFound
	case utils.ErrCodeAlreadyExists, utils.ErrCodeTypeMismatch, utils.ErrCodeRunInProgress:
		return http.StatusConflict
	case utils.ErrCodeRateLimited, utils.ErrCodeQuotaExceeded:
		return http.StatusTooManyRequests
	}
	if cliErr.Retryable {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func toCLIError(err error) types.CLIError {
	if appErr, ok := utils.AsAppError(err); ok {
		return appErr.CLIError
	}
	return utils.NewCLIError(utils.ErrCodeUnknown, err.Error()).Build()
}

// respondError writes err as a JSON error body with its mapped status.
func respondError(w http.ResponseWriter, r *http.Request, err error, attrs map[string]string) {
	cliErr := toCLIError(err)
	writeErrorBody(w, r, statusFor(cliErr), errorBody{Error: cliErr, Attributes: attrs})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, cliErr types.CLIError) {
	writeErrorBody(w, r, status, errorBody{Error: cliErr})
}

func writeErrorBody(w http.ResponseWriter, _ *http.Request, status int, body errorBody) {
	if len(body.Attributes) == 0 {
		body.Attributes = nil
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
