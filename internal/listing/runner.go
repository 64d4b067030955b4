package listing

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/google/uuid"
)

// Run outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// RunMetrics records finished runs.
type RunMetrics interface {
	RunFinished(outcome string, wm watermark.Watermark)
}

// Outcome describes one Runner invocation.
type Outcome struct {
	RunID    string              `json:"runId"`
	Status   string              `json:"status"`
	Scope    string              `json:"scope"`
	Previous watermark.Watermark `json:"-"`
	Result   *Result             `json:"-"`
	// Saved is false when the watermark was unchanged or the run failed.
	Saved    bool                `json:"saved"`
}

// Runner loads the watermark, runs the engine, and stores the new watermark
// only when the run succeeds.
type Runner struct {
	engine  *Engine
	store   watermark.Store
	logger  logging.Logger
	metrics RunMetrics
}

// NewRunner binds an engine to a watermark store. metrics may be nil.
func NewRunner(engine *Engine, store watermark.Store, logger logging.Logger, metrics RunMetrics) *Runner {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Runner{engine: engine, store: store, logger: logger, metrics: metrics}
}

// Run executes one incremental listing for scopeKey. A failed run returns an
// Outcome with Status failed and a retryable error; the stored watermark is
// left untouched.
func (r *Runner) Run(ctx context.Context, req Request, scopeKey string) (*Outcome, error) {
	runID := uuid.New().String()
	if logging.TraceIDFromContext(ctx) == "" {
		ctx = logging.ContextWithTraceID(ctx, runID)
	}
	logger := r.logger.WithTraceID(logging.TraceIDFromContext(ctx))
	out := &Outcome{RunID: runID, Status: OutcomeFailed, Scope: scopeKey}

	prev, _, err := r.store.Load(ctx, scopeKey)
	if err != nil {
		r.finish(out)
		return out, err
	}
	out.Previous = prev

	result, err := r.engine.Run(ctx, req, prev)
	if err != nil {
		r.finish(out)
		return out, retryable(err)
	}
	out.Result = result

	if !result.Watermark.IsZero() && !result.Watermark.Equal(prev) {
		if err := r.store.Save(ctx, scopeKey, result.Watermark); err != nil {
			logger.Error("Failed to store watermark",
				logging.F("scope", scopeKey),
				logging.F("error", err.Error()),
			)
			r.finish(out)
			return out, err
		}
		out.Saved = true
	}

	out.Status = OutcomeSuccess
	r.finish(out)
	return out, nil
}

func (r *Runner) finish(out *Outcome) {
	if r.metrics == nil {
		return
	}
	wm := out.Previous
	if out.Result != nil && out.Status == OutcomeSuccess {
		wm = out.Result.Watermark
	}
	r.metrics.RunFinished(out.Status, wm)
}

// retryable marks run failures for retry on the next schedule, except for
// configuration errors which will fail again unchanged.
func retryable(err error) error {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeUnknown,
			fmt.Sprintf("listing run failed: %v", err)).WithRetryable(true).Build(), err)
	}
	if appErr.CLIError.Code == utils.ErrCodeConfigInvalid || appErr.CLIError.Retryable {
		return err
	}
	cliErr := appErr.CLIError
	cliErr.Retryable = true
	return utils.WrapAppError(cliErr, err)
}
