package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/files"
	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/resolver"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/go-chi/chi/v5"
)

const probeTimeout = 5 * time.Second

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Version: s.opts.Version, Checks: map[string]string{}}
	status := http.StatusOK

	if prober, ok := s.opts.Store.(remote.Prober); ok {
		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := prober.Probe(ctx)
		cancel()
		if err != nil {
			resp.Checks["remote"] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["remote"] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

// RunRequest is the optional body of POST /v1/runs. Unset fields fall back to
// the configured list settings.
type RunRequest struct {
	RootFolderID   string `json:"rootFolderId,omitempty"`
	FromBeginning  *bool  `json:"fromBeginning,omitempty"`
	Recursive      *bool  `json:"recursive,omitempty"`
	BatchSize      int    `json:"batchSize,omitempty"`
	PageSize       int    `json:"pageSize,omitempty"`
	IncludeRecords bool   `json:"includeRecords,omitempty"`
}

// WatermarkView is the JSON form of a stored watermark.
type WatermarkView struct {
	Scope         string   `json:"scope,omitempty"`
	Present       bool     `json:"present"`
	HighWaterMark string   `json:"highWaterMark,omitempty"`
	IDsAtMark     []string `json:"idsAtMark,omitempty"`
}

func newWatermarkView(scope string, wm watermark.Watermark) WatermarkView {
	if wm.IsZero() {
		return WatermarkView{Scope: scope}
	}
	return WatermarkView{
		Scope:         scope,
		Present:       true,
		HighWaterMark: types.FormatTime(wm.HighWaterMark),
		IDsAtMark:     wm.IDsAtMark,
	}
}

// RunResponse is the body of a completed POST /v1/runs.
type RunResponse struct {
	RunID          string              `json:"runId"`
	Status         string              `json:"status"`
	Scope          string              `json:"scope"`
	Saved          bool                `json:"saved"`
	Emitted        int                 `json:"emitted"`
	Observed       int                 `json:"observed"`
	Flushes        int                 `json:"flushes"`
	Pages          int                 `json:"pages"`
	FoldersVisited int                 `json:"foldersVisited"`
	DurationMs     int64               `json:"durationMs"`
	Previous       WatermarkView       `json:"previous"`
	Watermark      WatermarkView       `json:"watermark"`
	Records        []map[string]string `json:"records,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var body RunRequest
	if r.ContentLength != 0 {
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, r, http.StatusBadRequest,
				utils.NewCLIError(utils.ErrCodeInvalidArgument, "invalid run request: "+err.Error()).Build())
			return
		}
	}

	req := s.DefaultRequest()
	if body.RootFolderID != "" {
		req.RootFolderID = body.RootFolderID
	}
	if body.FromBeginning != nil {
		req.FromBeginning = *body.FromBeginning
	}
	if body.Recursive != nil {
		req.Recursive = *body.Recursive
	}
	if body.BatchSize != 0 {
		req.BatchSize = body.BatchSize
	}
	if body.PageSize != 0 {
		req.PageSize = body.PageSize
	}

	out, records, err := s.RunListing(r.Context(), req, body.IncludeRecords)
	if err != nil {
		s.requestLogger(r).Warn("Listing run failed",
			logging.F("root", req.RootFolderID),
			logging.F("error", err.Error()),
		)
		respondError(w, r, err, nil)
		return
	}

	resp := RunResponse{
		RunID:          out.RunID,
		Status:         out.Status,
		Scope:          out.Scope,
		Saved:          out.Saved,
		Emitted:        out.Result.Emitted,
		Observed:       out.Result.Observed,
		Flushes:        out.Result.Flushes,
		Pages:          out.Result.Pages,
		FoldersVisited: out.Result.FoldersVisited,
		DurationMs:     out.Result.Duration.Milliseconds(),
		Previous:       newWatermarkView("", out.Previous),
		Watermark:      newWatermarkView("", out.Result.Watermark),
	}
	for _, rec := range records {
		resp.Records = append(resp.Records, rec.Attributes)
	}
	writeJSON(w, http.StatusOK, resp)
}

// UploadResponse is the body of a successful PUT /v1/files/{folderID}/*.
type UploadResponse struct {
	Path           string            `json:"path"`
	FileID         string            `json:"fileId"`
	Created        bool              `json:"created"`
	MimeType       string            `json:"mimeType"`
	FolderChainIDs []string          `json:"folderChainIds"`
	FoldersCreated int               `json:"foldersCreated"`
	Attributes     map[string]string `json:"attributes"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	folderID := chi.URLParam(r, "folderID")
	relPath := chi.URLParam(r, "*")

	failIfExists := s.opts.Upload.FailIfExists
	if v := r.URL.Query().Get("failIfExists"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest,
				utils.NewCLIError(utils.ErrCodeInvalidArgument, "failIfExists must be a boolean").Build())
			return
		}
		failIfExists = b
	}

	res, err := s.resolver.Upload(r.Context(), resolver.UploadRequest{
		RootFolderID: folderID,
		RelativePath: relPath,
		Content:      r.Body,
		MimeType:     requestMimeType(r),
		FailIfExists: failIfExists,
	})
	if err != nil {
		respondError(w, r, err, resolver.ErrorAttributes(err))
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, UploadResponse{
		Path:           relPath,
		FileID:         res.FileID,
		Created:        res.Created,
		MimeType:       res.MimeType,
		FolderChainIDs: res.FolderChainIDs,
		FoldersCreated: res.FoldersCreated,
		Attributes:     res.Attributes(),
	})
}

// requestMimeType returns the declared content type, or "" when the client
// sent none or only the generic binary type.
func requestMimeType(r *http.Request) string {
	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil || mt == "application/octet-stream" {
		return ""
	}
	return mt
}

func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	entry, err := s.files.Stat(r.Context(), chi.URLParam(r, "fileID"))
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if err := files.CheckDownloadable(entry); err != nil {
		respondError(w, r, err, nil)
		return
	}

	h := w.Header()
	if entry.MimeType != "" {
		h.Set("Content-Type", entry.MimeType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": entry.Name}))
	h.Set("X-File-Id", entry.ID)
	if !entry.ModifiedAt.IsZero() {
		h.Set("Last-Modified", entry.ModifiedAt.UTC().Format(http.TimeFormat))
	}

	if _, err := s.files.Stream(r.Context(), entry, w); err != nil {
		// Headers are already on the wire.
		s.requestLogger(r).Warn("Fetch stream failed",
			logging.F("fileId", entry.ID),
			logging.F("error", err.Error()),
		)
	}
}

func (s *Server) handleGetWatermark(w http.ResponseWriter, r *http.Request) {
	scope := s.opts.ScopeKey(chi.URLParam(r, "rootFolderID"))
	wm, ok, err := s.opts.Watermarks.Load(r.Context(), scope)
	if err != nil {
		respondError(w, r, err, nil)
		return
	}
	if !ok {
		wm = watermark.Watermark{}
	}
	writeJSON(w, http.StatusOK, newWatermarkView(scope, wm))
}

func (s *Server) handleResetWatermark(w http.ResponseWriter, r *http.Request) {
	scope := s.opts.ScopeKey(chi.URLParam(r, "rootFolderID"))
	if err := s.opts.Watermarks.Delete(r.Context(), scope); err != nil {
		respondError(w, r, err, nil)
		return
	}
	s.requestLogger(r).Info("Watermark reset", logging.F("scope", scope))
	w.WriteHeader(http.StatusNoContent)
}
