package server

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/google/uuid"
)

// TraceHeader carries the trace ID on requests and responses.
const TraceHeader = "X-Trace-Id"

// traceMiddleware attaches the caller's trace ID, or a fresh one, to the
// request context.
func traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = uuid.New().String()
		}
		w.Header().Set(TraceHeader, traceID)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithTraceID(r.Context(), traceID)))
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			s.requestLogger(r).Error("Handler panicked",
				logging.F("path", r.URL.Path),
				logging.F("panic", fmt.Sprint(rec)),
				logging.F("stack", string(debug.Stack())),
			)
			writeError(w, r, http.StatusInternalServerError,
				utils.NewCLIError(utils.ErrCodeUnknown, "internal server error").Build())
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(r *http.Request) logging.Logger {
	return s.logger.WithContext(r.Context())
}
