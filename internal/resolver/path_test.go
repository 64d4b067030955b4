package resolver

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dl-alexandre/gdrvflow/internal/remote"
	testhelpers "github.com/dl-alexandre/gdrvflow/internal/testing"
	"github.com/dl-alexandre/gdrvflow/internal/testing/mocks"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcomeRecorder struct {
	outcomes []string
}

func (o *outcomeRecorder) UploadFinished(outcome string) {
	o.outcomes = append(o.outcomes, outcome)
}

func upload(path, content string, failIfExists bool) UploadRequest {
	return UploadRequest{
		RootFolderID: "root",
		RelativePath: path,
		Content:      strings.NewReader(content),
		MimeType:     "text/plain",
		FailIfExists: failIfExists,
	}
}

func TestUpload_CreateNew(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	metrics := &outcomeRecorder{}
	r := NewUploadResolver(store, nil, metrics)

	result, err := r.Upload(context.Background(), upload("newfile", "hello", false))
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.NotEmpty(t, result.FileID)
	assert.Equal(t, map[string]string{utils.AttrFileID: result.FileID, utils.AttrFileCreated: "true"}, result.Attributes())

	page, err := store.ListChildren(context.Background(), "root", remote.Query{}, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "newfile", page.Items[0].Name)
	assert.Equal(t, result.FileID, page.Items[0].ID)
	assert.Equal(t, []string{OutcomeCreated}, metrics.outcomes)
}

func TestUpload_ConflictLeavesContentUnchanged(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	id := store.AddFile("root", "existfile", testhelpers.At(1), []byte("original"))
	metrics := &outcomeRecorder{}
	r := NewUploadResolver(store, nil, metrics)

	result, err := r.Upload(context.Background(), upload("existfile", "replacement", true))
	assert.Nil(t, result)
	testhelpers.AssertErrorCode(t, err, utils.ErrCodeAlreadyExists)
	assert.Equal(t, map[string]string{utils.AttrErrorFileExists: "true"}, ErrorAttributes(err))

	got, _ := store.Content(id)
	assert.Equal(t, "original", string(got))
	calls := store.Calls()
	assert.Zero(t, calls.Create)
	assert.Zero(t, calls.Update)
	assert.Equal(t, []string{OutcomeConflict}, metrics.outcomes)
}

func TestUpload_NestedPathCreatesFolders(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	r := NewUploadResolver(store, nil, nil)

	result, err := r.Upload(context.Background(), upload("a/b/c.txt", "data", false))
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 2, result.FoldersCreated)
	assert.Equal(t, 3, store.Calls().Create)

	a, ok := store.ChildNamed("root", "a")
	require.True(t, ok)
	assert.True(t, a.IsFolder)
	b, ok := store.ChildNamed(a.ID, "b")
	require.True(t, ok)
	assert.True(t, b.IsFolder)
	c, ok := store.ChildNamed(b.ID, "c.txt")
	require.True(t, ok)
	assert.False(t, c.IsFolder)
	assert.Equal(t, result.FileID, c.ID)
	assert.Equal(t, []string{"root", a.ID, b.ID}, result.FolderChainIDs)
}

func TestUpload_ExistingFileIsUpdated(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	r := NewUploadResolver(store, nil, nil)
	ctx := context.Background()

	first, err := r.Upload(ctx, upload("a/b/c.txt", "v1", false))
	require.NoError(t, err)

	second, err := r.Upload(ctx, upload("/a/b/c.txt/", "v2", false))
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.FileID, second.FileID)
	assert.Zero(t, second.FoldersCreated)
	assert.Equal(t, 3, store.Calls().Create, "second upload creates nothing")
	assert.Equal(t, 1, store.Calls().Update)

	got, _ := store.Content(first.FileID)
	assert.Equal(t, "v2", string(got))
}

func TestUpload_RetryReusesFoldersAfterPartialFailure(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	store.CreateFunc = func(call int, meta remote.ObjectMeta) error {
		if call == 2 {
			return utils.NewAppError(utils.NewCLIError(utils.ErrCodeNetworkError, "reset").WithRetryable(true).Build())
		}
		return nil
	}
	r := NewUploadResolver(store, nil, nil)
	ctx := context.Background()

	_, err := r.Upload(ctx, upload("a/b/c.txt", "data", false))
	testhelpers.AssertErrorCode(t, err, utils.ErrCodeNetworkError)
	_, ok := store.ChildNamed("root", "a")
	assert.True(t, ok, "folder created before the failure is kept")

	result, err := r.Upload(ctx, upload("a/b/c.txt", "data", false))
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, result.FoldersCreated, "a is reused, only b is created")
}

func TestUpload_TypeMismatch(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *mocks.MemoryStore)
		path  string
	}{
		{"file in folder position", func(s *mocks.MemoryStore) { s.AddFile("root", "a", testhelpers.At(1), nil) }, "a/x.txt"},
		{"folder in file position", func(s *mocks.MemoryStore) { s.AddFolder("root", "a", testhelpers.At(1)) }, "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mocks.NewMemoryStore("root")
			tt.setup(store)
			_, err := NewUploadResolver(store, nil, nil).Upload(context.Background(), upload(tt.path, "x", false))
			testhelpers.AssertErrorCode(t, err, utils.ErrCodeTypeMismatch)
			assert.Zero(t, store.Calls().Create)
			assert.Zero(t, store.Calls().Update)
		})
	}
}

func TestUpload_InvalidPathMakesNoRemoteCalls(t *testing.T) {
	for _, p := range []string{"", "/", "a//b", "./a", "a/../b"} {
		t.Run(p, func(t *testing.T) {
			store := mocks.NewMemoryStore("root")
			_, err := NewUploadResolver(store, nil, nil).Upload(context.Background(), upload(p, "x", false))
			testhelpers.AssertErrorCode(t, err, utils.ErrCodeInvalidPath)
			assert.Equal(t, mocks.Calls{}, store.Calls())
		})
	}
}

func TestUpload_DetectsMimeType(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	body := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte("x"), 5000)...)

	req := upload("doc.pdf", "", false)
	req.Content = bytes.NewReader(body)
	req.MimeType = ""
	result, err := NewUploadResolver(store, nil, nil).Upload(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.MimeType)

	entry, ok := store.Lookup(result.FileID)
	require.True(t, ok)
	assert.Equal(t, "application/pdf", entry.MimeType)
	got, _ := store.Content(result.FileID)
	assert.Equal(t, body, got, "sniffed prefix must not be lost")
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"a", []string{"a"}},
		{"/a/b/", []string{"a", "b"}},
		{"a/b/c.txt", []string{"a", "b", "c.txt"}},
		{"///x", []string{"x"}},
	}
	for _, tt := range tests {
		got, err := SplitPath(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
