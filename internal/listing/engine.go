// Package listing implements the incremental folder-tree listing engine.
//
// The engine assumes it is the only writer for a watermark scope while a run is
// in progress. It takes no locks; callers that schedule runs across processes
// must ensure a single leader.
package listing

import (
	"context"
	"fmt"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"golang.org/x/time/rate"
)

// Request is the input of one run.
type Request struct {
	RootFolderID  string
	FromBeginning bool
	Recursive     bool
	BatchSize     int
	PageSize      int
}

// Result summarizes a successful run.
type Result struct {
	Watermark      watermark.Watermark
	Emitted        int
	Observed       int
	Flushes        int
	Pages          int
	FoldersVisited int
	Duration       time.Duration
}

// Metrics receives engine progress. Implementations must be safe for
// concurrent use when one Metrics is shared across engines.
type Metrics interface {
	PageFetched(items int)
	BatchCommitted(records int)
}

type nopMetrics struct{}

func (nopMetrics) PageFetched(int)    {}
func (nopMetrics) BatchCommitted(int) {}

// Options configures an Engine.
type Options struct {
	// Include restricts emission to entries whose Path matches one of these
	// doublestar patterns. Non-matching entries still advance the watermark.
	Include []string
	// Limiter paces page fetches when non-nil.
	Limiter *rate.Limiter
	Logger  logging.Logger
	Metrics Metrics
}

// Engine walks a folder tree and emits entries newer than a watermark.
type Engine struct {
	store   remote.Store
	sink    Sink
	include []string
	limiter *rate.Limiter
	logger  logging.Logger
	metrics Metrics
}

// NewEngine validates opts and returns an engine bound to store and sink.
func NewEngine(store remote.Store, sink Sink, opts Options) (*Engine, error) {
	for _, p := range opts.Include {
		if !doublestar.ValidatePattern(p) {
			return nil, utils.ConfigError("list.include", fmt.Sprintf("invalid include pattern: %s", p))
		}
	}
	e := &Engine{
		store:   store,
		sink:    sink,
		include: opts.Include,
		limiter: opts.Limiter,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
	if e.logger == nil {
		e.logger = logging.NewNoOpLogger()
	}
	if e.metrics == nil {
		e.metrics = nopMetrics{}
	}
	return e, nil
}

type cursor struct {
	folderID string
	path     string
}

type run struct {
	*Engine
	req     Request
	prev    watermark.Watermark
	tracker *watermark.Tracker
	batch   []Record
	emitted map[string]bool
	result  Result
	logger  logging.Logger
}

// Run lists req.RootFolderID against wm. On any error no watermark is returned;
// batches already committed to the sink stay committed.
func (e *Engine) Run(ctx context.Context, req Request, wm watermark.Watermark) (*Result, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	logger := e.logger
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.WithTraceID(traceID)
	}
	r := &run{
		Engine:  e,
		req:     req,
		prev:    wm,
		tracker: watermark.NewTracker(wm),
		batch:   make([]Record, 0, req.BatchSize),
		emitted: map[string]bool{},
		logger:  logger,
	}

	start := time.Now()
	logger.Info("Listing run starting",
		logging.F("root", req.RootFolderID),
		logging.F("recursive", req.Recursive),
		logging.F("fromBeginning", req.FromBeginning),
		logging.F("watermark", wm.String()),
	)

	if err := r.walk(ctx); err != nil {
		logger.Error("Listing run failed",
			logging.F("root", req.RootFolderID),
			logging.F("emitted", r.result.Emitted),
			logging.F("flushes", r.result.Flushes),
			logging.F("error", err.Error()),
		)
		return nil, err
	}

	r.result.Watermark = r.tracker.Watermark()
	r.result.Duration = time.Since(start)
	logger.Info("Listing run completed",
		logging.F("root", req.RootFolderID),
		logging.F("emitted", r.result.Emitted),
		logging.F("observed", r.result.Observed),
		logging.F("folders", r.result.FoldersVisited),
		logging.F("watermark", r.result.Watermark.String()),
		logging.F("duration_ms", r.result.Duration.Milliseconds()),
	)
	return &r.result, nil
}

func validateRequest(req Request) error {
	if req.RootFolderID == "" {
		return utils.ConfigError("list.rootFolder", "root folder id is required")
	}
	if req.BatchSize <= 0 {
		return utils.ConfigError("list.batchSize", "batch size must be positive")
	}
	if req.PageSize <= 0 || req.PageSize > utils.MaxPageSize {
		return utils.ConfigError("list.pageSize", fmt.Sprintf("page size must be between 1 and %d", utils.MaxPageSize))
	}
	return nil
}

func (r *run) walk(ctx context.Context) error {
	queue := []cursor{{folderID: r.req.RootFolderID, path: ""}}
	visited := map[string]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur.folderID] {
			r.logger.Warn("Skipping folder already visited in this run",
				logging.F("folderId", cur.folderID),
				logging.F("path", cur.path),
			)
			continue
		}
		visited[cur.folderID] = true
		r.result.FoldersVisited++

		children, err := r.listFolder(ctx, cur)
		if err != nil {
			return err
		}
		queue = append(queue, children...)

		if err := r.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// listFolder drains every page of one folder and returns the subfolders to visit.
func (r *run) listFolder(ctx context.Context, cur cursor) ([]cursor, error) {
	var children []cursor
	pageToken := ""
	for {
		if err := r.beforePage(ctx); err != nil {
			return nil, err
		}
		page, err := r.store.ListChildren(ctx, cur.folderID, remote.Query{}, pageToken, r.req.PageSize)
		if err != nil {
			return nil, err
		}
		r.result.Pages++
		r.metrics.PageFetched(len(page.Items))

		for _, item := range page.Items {
			item.Path = childPath(cur.path, item.Name)
			if item.ParentFolderID == "" {
				item.ParentFolderID = cur.folderID
			}
			if item.IsFolder && r.req.Recursive {
				children = append(children, cursor{folderID: item.ID, path: item.Path})
			}
			if err := r.observe(ctx, item); err != nil {
				return nil, err
			}
		}

		r.logger.Debug("Listed page",
			logging.F("folderId", cur.folderID),
			logging.F("path", cur.path),
			logging.F("items", len(page.Items)),
		)
		if page.NextPageToken == "" {
			return children, nil
		}
		pageToken = page.NextPageToken
	}
}

func (r *run) beforePage(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return cancelled(err)
		}
	}
	return nil
}

func (r *run) observe(ctx context.Context, item *types.Entry) error {
	r.result.Observed++
	selected := r.req.FromBeginning || r.prev.Selects(item.ID, item.ModifiedAt)
	r.tracker.Observe(item.ID, item.ModifiedAt)
	if !selected || !r.included(item.Path) {
		return nil
	}
	// An object with several parents is reached once per parent; the first
	// path wins.
	if r.emitted[item.ID] {
		r.logger.Debug("Skipping entry already emitted in this run",
			logging.F("fileId", item.ID),
			logging.F("path", item.Path),
		)
		return nil
	}
	r.emitted[item.ID] = true

	r.batch = append(r.batch, NewRecord(item, r.req.RootFolderID))
	if len(r.batch) >= r.req.BatchSize {
		return r.flush(ctx)
	}
	return nil
}

func (r *run) included(path string) bool {
	if len(r.include) == 0 {
		return true
	}
	for _, p := range r.include {
		if ok, _ := doublestar.Match(p, path); ok {
			return true
		}
	}
	return false
}

func (r *run) flush(ctx context.Context) error {
	if len(r.batch) == 0 {
		return nil
	}
	if err := r.sink.Commit(ctx, r.batch); err != nil {
		if _, ok := utils.AsAppError(err); ok {
			return err
		}
		return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeSinkFailure,
			fmt.Sprintf("sink commit failed: %v", err)).Build(), err)
	}
	r.result.Flushes++
	r.result.Emitted += len(r.batch)
	r.metrics.BatchCommitted(len(r.batch))
	r.batch = make([]Record, 0, r.req.BatchSize)
	return nil
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func cancelled(err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled,
		fmt.Sprintf("listing cancelled: %v", err)).
		WithRetryable(true).
		Build(), err)
}
