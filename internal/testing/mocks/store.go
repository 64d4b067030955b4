package mocks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// Calls counts the operations a MemoryStore has served.
type Calls struct {
	List    int
	Get     int
	Content int
	Create  int
	Update  int

	// GetFields is the fields mask of the most recent GetObject call.
	GetFields string
}

type object struct {
	entry   types.Entry
	content []byte
	seq     int
}

// MemoryStore is an in-memory remote.Store. Children are listed in insertion
// order and paged with numeric offset tokens.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string]*object
	seq     int
	calls   Calls

	// MaxPageSize caps every page regardless of the requested size when > 0.
	MaxPageSize int
	// Now stamps created and updated objects. Defaults to a fixed clock that
	// advances one second per mutation.
	Now func() time.Time

	// ListFunc, CreateFunc and UpdateFunc run before the operation and abort
	// it when they return an error. call is the 1-based count for that operation.
	ListFunc   func(call int, parentID, pageToken string) error
	CreateFunc func(call int, meta remote.ObjectMeta) error
	UpdateFunc func(call int, id string) error
}

var _ remote.Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store holding a single root folder with the given ID.
func NewMemoryStore(rootID string) *MemoryStore {
	s := &MemoryStore{objects: make(map[string]*object)}
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.Now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	s.put(types.Entry{ID: rootID, Name: rootID, IsFolder: true, MimeType: utils.MimeTypeFolder, CreatedAt: base, ModifiedAt: base}, nil)
	return s
}

func (s *MemoryStore) put(e types.Entry, content []byte) {
	s.seq++
	s.objects[e.ID] = &object{entry: e, content: content, seq: s.seq}
}

func (s *MemoryStore) newID() string {
	return fmt.Sprintf("obj-%04d", s.seq+1)
}

// Put inserts or replaces an entry as-is. Path is ignored by listings.
func (s *MemoryStore) Put(e types.Entry, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.IsFolder && e.MimeType == "" {
		e.MimeType = utils.MimeTypeFolder
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = e.ModifiedAt
	}
	s.put(e, content)
}

// AddFolder adds a folder under parentID and returns its generated ID.
func (s *MemoryStore) AddFolder(parentID, name string, modified time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.put(types.Entry{
		ID: id, Name: name, ParentFolderID: parentID, IsFolder: true,
		MimeType: utils.MimeTypeFolder, CreatedAt: modified, ModifiedAt: modified,
	}, nil)
	return id
}

// AddFile adds a file under parentID and returns its generated ID.
func (s *MemoryStore) AddFile(parentID, name string, modified time.Time, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.newID()
	s.put(types.Entry{
		ID: id, Name: name, ParentFolderID: parentID,
		MimeType: "text/plain", CreatedAt: modified, ModifiedAt: modified,
	}, content)
	return id
}

// Touch sets an object's modification time.
func (s *MemoryStore) Touch(id string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[id]; ok {
		o.entry.ModifiedAt = modified
	}
}

// Content returns a copy of an object's stored bytes.
func (s *MemoryStore) Content(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.content...), true
}

// Lookup returns a copy of the entry with the given ID.
func (s *MemoryStore) Lookup(id string) (types.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[id]
	if !ok {
		return types.Entry{}, false
	}
	return o.entry, true
}

// ChildNamed returns the first child of parentID with the given name.
func (s *MemoryStore) ChildNamed(parentID, name string) (types.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := s.children(parentID, remote.Query{NameEquals: name})
	if len(matches) == 0 {
		return types.Entry{}, false
	}
	return matches[0].entry, true
}

// Len is the number of stored objects including the root.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Calls returns a snapshot of the operation counters.
func (s *MemoryStore) Calls() Calls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *MemoryStore) children(parentID string, q remote.Query) []*object {
	var out []*object
	for _, o := range s.objects {
		if o.entry.ParentFolderID != parentID || o.entry.ID == parentID {
			continue
		}
		if q.NameEquals != "" && o.entry.Name != q.NameEquals {
			continue
		}
		out = append(out, o)
	}
	// insertion order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].seq < out[j-1].seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func notFound(id string) error {
	return utils.NewAppError(utils.NewCLIError(utils.ErrCodeFileNotFound,
		fmt.Sprintf("File not found: %s", id)).WithHTTPStatus(404).Build())
}

func (s *MemoryStore) ListChildren(ctx context.Context, parentID string, q remote.Query, pageToken string, pageSize int) (*remote.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.List++
	if err := ctx.Err(); err != nil {
		return nil, utils.WrapAppError(utils.NewCLIError(utils.ErrCodeCancelled, err.Error()).Build(), err)
	}
	if s.ListFunc != nil {
		if err := s.ListFunc(s.calls.List, parentID, pageToken); err != nil {
			return nil, err
		}
	}
	if _, ok := s.objects[parentID]; !ok {
		return nil, notFound(parentID)
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, utils.NewAppError(utils.NewCLIError(utils.ErrCodeInvalidArgument,
				"invalid page token").Build())
		}
		offset = n
	}
	if pageSize <= 0 {
		pageSize = utils.DefaultPageSize
	}
	if s.MaxPageSize > 0 && pageSize > s.MaxPageSize {
		pageSize = s.MaxPageSize
	}

	all := s.children(parentID, q)
	page := &remote.Page{}
	end := min(offset+pageSize, len(all))
	for i := offset; i < end; i++ {
		e := all[i].entry
		page.Items = append(page.Items, &e)
	}
	if end < len(all) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

func (s *MemoryStore) GetObject(ctx context.Context, id string, fields string) (*types.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Get++
	s.calls.GetFields = fields
	o, ok := s.objects[id]
	if !ok {
		return nil, notFound(id)
	}
	e := o.entry
	return &e, nil
}

func (s *MemoryStore) GetObjectContent(ctx context.Context, id string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Content++
	o, ok := s.objects[id]
	if !ok {
		return nil, notFound(id)
	}
	return io.NopCloser(bytes.NewReader(append([]byte(nil), o.content...))), nil
}

func (s *MemoryStore) CreateObject(ctx context.Context, meta remote.ObjectMeta, content io.Reader) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Create++
	if s.CreateFunc != nil {
		if err := s.CreateFunc(s.calls.Create, meta); err != nil {
			return "", err
		}
	}
	if _, ok := s.objects[meta.ParentID]; !ok {
		return "", notFound(meta.ParentID)
	}

	var data []byte
	if content != nil {
		b, err := io.ReadAll(content)
		if err != nil {
			return "", err
		}
		data = b
	}
	now := s.Now()
	id := s.newID()
	s.put(types.Entry{
		ID:             id,
		Name:           meta.Name,
		ParentFolderID: meta.ParentID,
		IsFolder:       meta.MimeType == utils.MimeTypeFolder,
		MimeType:       meta.MimeType,
		CreatedAt:      now,
		ModifiedAt:     now,
	}, data)
	return id, nil
}

func (s *MemoryStore) UpdateObjectContent(ctx context.Context, id string, content io.Reader, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls.Update++
	if s.UpdateFunc != nil {
		if err := s.UpdateFunc(s.calls.Update, id); err != nil {
			return "", err
		}
	}
	o, ok := s.objects[id]
	if !ok {
		return "", notFound(id)
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	o.content = data
	if mimeType != "" {
		o.entry.MimeType = mimeType
	}
	o.entry.ModifiedAt = s.Now()
	return id, nil
}
