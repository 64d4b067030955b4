// Package files fetches single objects from the remote store.
package files

import (
	"context"
	"fmt"
	"io"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// StatFields is the metadata a fetch needs: the record attributes and the
// download checks. Parents are not requested.
const StatFields = "id,name,mimeType,createdTime,modifiedTime"

// StatFields is the metadata a fetch needs: the record attributes and the
// download checks. Parents are not requested.
const StatFields = "id,name,mimeType,createdTime,modifiedTime"

// Manager streams file content and metadata.
type Manager struct {
	store  remote.Store
	logger logging.Logger
}

// NewManager creates a new file manager
func NewManager(store remote.Store, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &Manager{store: store, logger: logger}
}

// FetchResult is the metadata of a fetched file and the number of bytes written.
type FetchResult struct {
	Entry *types.Entry
	Bytes int64
}

// Attributes returns the record attributes of a fetched file.
func (r *FetchResult) Attributes() map[string]string {
	return map[string]string{
		utils.AttrFilename: r.Entry.Name,
		utils.AttrFileID:   r.Entry.ID,
		utils.AttrCreated:  types.FormatTime(r.Entry.CreatedAt),
		utils.AttrModified: types.FormatTime(r.Entry.ModifiedAt),
		utils.AttrMimeType: r.Entry.MimeType,
	}
}

// Stat returns a file's metadata without its content.
func (m *Manager) Stat(ctx context.Context, fileID string) (*types.Entry, error) {
	if fileID == "" {
		return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument, "file id is required").Build())
	}
	return m.store.GetObject(ctx, fileID, StatFields)
}

// Fetch writes the content of fileID to w. Folders and native Workspace
// documents are rejected before any content request.
func (m *Manager) Fetch(ctx context.Context, fileID string, w io.Writer) (*FetchResult, error) {
	entry, err := m.Stat(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := CheckDownloadable(entry); err != nil {
		return nil, err
	}
	return m.Stream(ctx, entry, w)
}

// CheckDownloadable rejects folders and native Workspace documents.
func CheckDownloadable(entry *types.Entry) error {
	if entry.IsFolder {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s is a folder", entry.ID)).
			WithContext("fileId", entry.ID).
			Build())
	}
	if utils.IsWorkspaceMimeType(entry.MimeType) {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
			fmt.Sprintf("%s is a Workspace document and has no binary content", entry.ID)).
			WithContext("fileId", entry.ID).
			WithContext("mimeType", entry.MimeType).
			Build())
	}
	return nil
}

// Stream copies the content of an already-checked entry to w.
func (m *Manager) Stream(ctx context.Context, entry *types.Entry, w io.Writer) (*FetchResult, error) {
	body, err := m.store.GetObjectContent(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	n, err := io.Copy(w, body)
	if err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeNetworkError,
			fmt.Sprintf("Download failed: %s", err)).
			WithRetryable(true).
			Build(), err)
	}

	logger := m.logger
	if traceID := logging.TraceIDFromContext(ctx); traceID != "" {
		logger = logger.WithTraceID(traceID)
	}
	logger.Debug("Fetched file",
		logging.F("fileId", entry.ID),
		logging.F("name", entry.Name),
		logging.F("bytes", n),
	)
	return &FetchResult{Entry: entry, Bytes: n}, nil
}
