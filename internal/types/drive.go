package types

import "time"

// Entry is one object (file or folder) reported by a folder listing.
// Path is computed by the listing engine, not the remote store.
type Entry struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	ParentFolderID string    `json:"parentFolderId,omitempty"`
	IsFolder       bool      `json:"isFolder"`
	CreatedAt      time.Time `json:"createdAt"`
	ModifiedAt     time.Time `json:"modifiedAt"`
	MimeType       string    `json:"mimeType"`
	Path           string    `json:"path,omitempty"`
}

// EntryList is a page of entries rendered as a table by the CLI.
type EntryList []*Entry

func (l EntryList) Headers() []string {
	return []string{"ID", "Path", "Type", "Modified"}
}

func (l EntryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		kind := e.MimeType
		if e.IsFolder {
			kind = "folder"
		}
		name := e.Path
		if name == "" {
			name = e.Name
		}
		rows = append(rows, []string{e.ID, name, kind, FormatTime(e.ModifiedAt)})
	}
	return rows
}

func (l EntryList) EmptyMessage() string {
	return "No entries found"
}

// FormatTime renders a timestamp the way Drive reports it (RFC 3339, UTC, milliseconds).
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DriveTimeLayout)
}

// ParseTime parses an RFC 3339 timestamp from the Drive API. Empty input yields the zero time.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// DriveTimeLayout matches the timestamp format returned in Drive file metadata.
const DriveTimeLayout = "2006-01-02T15:04:05.000Z07:00"
