package listing

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// Record is one emitted entry with its attribute map.
type Record struct {
	Entry      types.Entry
	Attributes map[string]string
}

// NewRecord builds the emission attributes for an entry found under rootID.
func NewRecord(e *types.Entry, rootID string) Record {
	return Record{
		Entry: *e,
		Attributes: map[string]string{
			utils.AttrFilename:         e.Name,
			utils.AttrFileID:           e.ID,
			utils.AttrCreated:          types.FormatTime(e.CreatedAt),
			utils.AttrModified:         types.FormatTime(e.ModifiedAt),
			utils.AttrMimeType:         e.MimeType,
			utils.AttrIsFolder:         strconv.FormatBool(e.IsFolder),
			utils.AttrFilePath:         e.Path,
			utils.AttrParentFolder:     rootID,
			utils.AttrFileParentFolder: e.ParentFolderID,
		},
	}
}

// MarshalJSON renders the attribute map.
func (r Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Attributes)
}

// Sink receives flushed batches. A Commit error aborts the run.
type Sink interface {
	Commit(ctx context.Context, batch []Record) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, batch []Record) error

func (f SinkFunc) Commit(ctx context.Context, batch []Record) error {
	return f(ctx, batch)
}
