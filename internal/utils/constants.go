package utils

import "strings"

// OAuth scopes
const (
	ScopeFull             = "https://www.googleapis.com/auth/drive"
	ScopeFile             = "https://www.googleapis.com/auth/drive.file"
	ScopeReadonly         = "https://www.googleapis.com/auth/drive.readonly"
	ScopeMetadataReadonly = "https://www.googleapis.com/auth/drive.metadata.readonly"
)

// ScopesListing is enough for the listing and fetch paths; uploads need ScopeFull.
var (
	ScopesListing = []string{ScopeReadonly}
	ScopesAll     = []string{ScopeFull}
)

// Retry configuration
const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 1000
	MaxRetryDelayMs     = 32000
)

// Listing defaults
const (
	DefaultBatchSize = 100
	DefaultPageSize  = 100
	MaxPageSize      = 1000
)

// MimeSniffBytes is how much of an upload is inspected to detect its type.
const MimeSniffBytes = 3072

// Schema version
const SchemaVersion = "1.0"

// Drive MIME types
const (
	MimeTypeFolder   = "application/vnd.google-apps.folder"
	MimeTypeShortcut = "application/vnd.google-apps.shortcut"
	MimeTypeDefault  = "application/octet-stream"
)

// Record attribute names consumed by downstream stages.
const (
	AttrFilename         = "filename"
	AttrFileID           = "fileid"
	AttrCreated          = "created"
	AttrModified         = "modified"
	AttrMimeType         = "mime.type"
	AttrIsFolder         = "is.folder"
	AttrFilePath         = "file.path"
	AttrParentFolder     = "parent.folder"
	AttrFileParentFolder = "file.parent.folder"
	AttrFileCreated      = "file.created"
	AttrErrorFileExists  = "error.file.exists"
)

// IsWorkspaceMimeType reports whether mimeType is a native Google Workspace
// type, which has no binary content to download.
func IsWorkspaceMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "application/vnd.google-apps.")
}
