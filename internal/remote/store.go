// Package remote defines the narrow capability the listing engine, upload
// resolver and fetcher need from a hierarchical file store, and its Drive
// implementation.
package remote

import (
	"context"
	"io"

	"github.com/dl-alexandre/gdrvflow/internal/types"
)

// Query scopes a children listing. The zero value lists every non-trashed child.
type Query struct {
	// NameEquals restricts the listing to children with exactly this name.
	NameEquals     string
	IncludeTrashed bool
}

// Page is one page of a children listing. An empty NextPageToken means the
// listing is exhausted.
type Page struct {
	Items         []*types.Entry
	NextPageToken string
}

// ObjectMeta describes an object to create.
type ObjectMeta struct {
	Name     string
	ParentID string
	MimeType string
}

// Store is the remote file store capability. Implementations return classified
// *utils.AppError values; a listing with no matches is an empty page, not an error.
type Store interface {
	ListChildren(ctx context.Context, parentID string, q Query, pageToken string, pageSize int) (*Page, error)
	// GetObject returns metadata for id, restricted to the fields mask when the
	// store supports one. An empty mask selects the store's default fields.
	GetObject(ctx context.Context, id string, fields string) (*types.Entry, error)
	GetObjectContent(ctx context.Context, id string) (io.ReadCloser, error)
	// CreateObject creates a file with content, or a metadata-only object
	// (such as a folder) when content is nil.
	CreateObject(ctx context.Context, meta ObjectMeta, content io.Reader) (string, error)
	UpdateObjectContent(ctx context.Context, id string, content io.Reader, mimeType string) (string, error)
}

// Prober is implemented by stores that can cheaply check connectivity.
type Prober interface {
	Probe(ctx context.Context) error
}
