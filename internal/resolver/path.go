// Package resolver places byte streams at slash-delimited paths under a root
// folder, creating intermediate folders as needed.
package resolver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/gabriel-vasile/mimetype"
)

// Upload outcomes
const (
	OutcomeCreated  = "created"
	OutcomeUpdated  = "updated"
	OutcomeConflict = "conflict"
	OutcomeFailed   = "failed"
)

// UploadRequest describes one upload.
type UploadRequest struct {
	RootFolderID string
	RelativePath string
	Content      io.Reader
	// MimeType is detected from the content when empty.
	MimeType     string
	FailIfExists bool
}

// UploadResult is the resolved location of an uploaded file.
type UploadResult struct {
	FolderChainIDs []string `json:"folderChainIds"`
	FileID         string   `json:"fileId"`
	Created        bool     `json:"created"`
	MimeType       string   `json:"mimeType"`
	// FoldersCreated counts folders this call had to create.
	FoldersCreated int      `json:"foldersCreated"`
}

// Attributes returns the outcome attributes attached to the uploaded record.
func (r *UploadResult) Attributes() map[string]string {
	return map[string]string{
		utils.AttrFileID:      r.FileID,
		utils.AttrFileCreated: strconv.FormatBool(r.Created),
	}
}

// ErrorAttributes returns the attributes attached to a failed upload.
func ErrorAttributes(err error) map[string]string {
	if utils.HasCode(err, utils.ErrCodeAlreadyExists) {
		return map[string]string{utils.AttrErrorFileExists: "true"}
	}
	return map[string]string{}
}

// Metrics records upload outcomes.
type Metrics interface {
	UploadFinished(outcome string)
}

// UploadResolver walks a path segment by segment against a remote store.
// Folder creation is not rolled back when a later step fails; a retry reuses
// the folders already created.
type UploadResolver struct {
	store   remote.Store
	logger  logging.Logger
	metrics Metrics
}

// NewUploadResolver creates a resolver. logger and metrics may be nil.
func NewUploadResolver(store remote.Store, logger logging.Logger, metrics Metrics) *UploadResolver {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &UploadResolver{store: store, logger: logger, metrics: metrics}
}

// Upload resolves req.RelativePath under req.RootFolderID and creates or updates
// the terminal file. At most one content write is made.
func (r *UploadResolver) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	result, err := r.upload(ctx, req)
	r.record(result, err)
	return result, err
}

func (r *UploadResolver) record(result *UploadResult, err error) {
	if r.metrics == nil {
		return
	}
	switch {
	case err == nil && result.Created:
		r.metrics.UploadFinished(OutcomeCreated)
	case err == nil:
		r.metrics.UploadFinished(OutcomeUpdated)
	case utils.HasCode(err, utils.ErrCodeAlreadyExists):
		r.metrics.UploadFinished(OutcomeConflict)
	default:
		r.metrics.UploadFinished(OutcomeFailed)
	}
}

func (r *UploadResolver) upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if strings.TrimSpace(req.RootFolderID) == "" {
		return nil, utils.ConfigError("upload.targetFolder", "target folder id is required")
	}
	segments, err := SplitPath(req.RelativePath)
	if err != nil {
		return nil, err
	}
	if req.Content == nil {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "upload content is required").Build())
	}

	logger := r.logger
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.WithTraceID(traceID)
	}

	result := &UploadResult{FolderChainIDs: []string{req.RootFolderID}}
	currentID := req.RootFolderID
	folders, name := segments[:len(segments)-1], segments[len(segments)-1]

	for i, segment := range folders {
		match, err := r.lookup(ctx, currentID, segment)
		if err != nil {
			return nil, err
		}
		switch {
		case match == nil:
			id, err := r.store.CreateObject(ctx, remote.ObjectMeta{
				Name:     segment,
				ParentID: currentID,
				MimeType: utils.MimeTypeFolder,
			}, nil)
			if err != nil {
				return nil, err
			}
			logger.Debug("Created folder",
				logging.F("name", segment),
				logging.F("parentId", currentID),
				logging.F("folderId", id),
			)
			result.FoldersCreated++
			currentID = id
		case match.IsFolder:
			currentID = match.ID
		default:
			return nil, typeMismatch(req.RelativePath, strings.Join(segments[:i+1], "/"), match,
				"path segment is an existing file, not a folder")
		}
		result.FolderChainIDs = append(result.FolderChainIDs, currentID)
	}

	existing, err := r.lookup(ctx, currentID, name)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.IsFolder {
		return nil, typeMismatch(req.RelativePath, req.RelativePath, existing,
			"target path is an existing folder")
	}
	if existing != nil && req.FailIfExists {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeAlreadyExists,
			fmt.Sprintf("File already exists: %s", req.RelativePath)).
			WithContext("path", req.RelativePath).
			WithContext("fileId", existing.ID).
			Build())
	}

	content, mimeType := req.Content, req.MimeType
	if mimeType == "" {
		mimeType, content, err = DetectMimeType(req.Content)
		if err != nil {
			return nil, err
		}
	}
	result.MimeType = mimeType

	if existing == nil {
		id, err := r.store.CreateObject(ctx, remote.ObjectMeta{
			Name:     name,
			ParentID: currentID,
			MimeType: mimeType,
		}, content)
		if err != nil {
			return nil, err
		}
		result.FileID = id
		result.Created = true
	} else {
		id, err := r.store.UpdateObjectContent(ctx, existing.ID, content, mimeType)
		if err != nil {
			return nil, err
		}
		result.FileID = id
	}

	logger.Info("Upload resolved",
		logging.F("path", req.RelativePath),
		logging.F("fileId", result.FileID),
		logging.F("created", result.Created),
		logging.F("foldersCreated", result.FoldersCreated),
	)
	return result, nil
}

// lookup returns the first child of parentID named name, or nil.
func (r *UploadResolver) lookup(ctx context.Context, parentID, name string) (*types.Entry, error) {
	page, err := r.store.ListChildren(ctx, parentID, remote.Query{NameEquals: name}, "", 1)
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, nil
	}
	return page.Items[0], nil
}

// SplitPath trims surrounding slashes and splits p into segments. Empty inner
// segments and "." or ".." are rejected.
func SplitPath(p string) ([]string, error) {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil, invalidPath(p, "path is empty")
	}
	segments := strings.Split(trimmed, "/")
	for _, s := range segments {
		switch s {
		case "":
			return nil, invalidPath(p, "path contains an empty segment")
		case ".", "..":
			return nil, invalidPath(p, fmt.Sprintf("path segment %q is not allowed", s))
		}
	}
	return segments, nil
}

// DetectMimeType sniffs the first bytes of content. The returned reader yields
// the full stream including the sniffed prefix.
func DetectMimeType(content io.Reader) (string, io.Reader, error) {
	head := make([]byte, utils.MimeSniffBytes)
	n, err := io.ReadFull(content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("failed to read upload content: %v", err)).Build(), err)
	}
	head = head[:n]
	return mimetype.Detect(head).String(), io.MultiReader(bytes.NewReader(head), content), nil
}

func invalidPath(p, msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidPath, msg).
		WithContext("path", p).
		Build())
}

func typeMismatch(path, at string, e *types.Entry, msg string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeTypeMismatch,
		fmt.Sprintf("%s: %s", msg, at)).
		WithContext("path", path).
		WithContext("segment", at).
		WithContext("fileId", e.ID).
		WithContext("mimeType", e.MimeType).
		Build())
}
