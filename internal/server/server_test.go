package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/metrics"
	testhelpers "github.com/dl-alexandre/gdrvflow/internal/testing"
	"github.com/dl-alexandre/gdrvflow/internal/testing/mocks"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *mocks.MemoryStore
	wms   *watermark.MemoryStore
	srv   *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := mocks.NewMemoryStore("root")
	wms := watermark.NewMemoryStore(nil)
	list := config.DefaultConfig().List
	list.RootFolder = "root"
	list.Recursive = true
	srv := New("127.0.0.1:0", Options{
		Store:      store,
		Watermarks: wms,
		List:       list,
		Metrics:    metrics.New(),
		Version:    "test",
	})
	return &fixture{store: store, wms: wms, srv: srv}
}

func (f *fixture) do(t *testing.T, method, target string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestUnknownRoutesReturnJSONErrors(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodPatch, "/v1/runs", nil, nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "METHOD_NOT_ALLOWED", decode[errorBody](t, rec).Error.Code)
}

func TestTraceHeaderIsEchoed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/healthz", nil, map[string]string{TraceHeader: "abc"})
	assert.Equal(t, "abc", rec.Header().Get(TraceHeader))

	rec = f.do(t, http.MethodGet, "/healthz", nil, nil)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))
}

func TestRun_IncrementalAcrossRequests(t *testing.T) {
	f := newFixture(t)
	sub := f.store.AddFolder("root", "sub", testhelpers.At(1))
	f.store.AddFile(sub, "a.txt", testhelpers.At(2), nil)

	rec := f.do(t, http.MethodPost, "/v1/runs", []byte(`{"includeRecords":true}`), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	first := decode[RunResponse](t, rec)
	assert.Equal(t, "success", first.Status)
	assert.Equal(t, "list:root", first.Scope)
	assert.Equal(t, 2, first.Emitted)
	assert.True(t, first.Saved)
	assert.False(t, first.Previous.Present)
	assert.Equal(t, "2024-06-01T12:00:02.000Z", first.Watermark.HighWaterMark)
	require.Len(t, first.Records, 2)
	assert.Equal(t, "sub/a.txt", first.Records[1][utils.AttrFilePath])

	rec = f.do(t, http.MethodPost, "/v1/runs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[RunResponse](t, rec)
	assert.Equal(t, 0, second.Emitted)
	assert.False(t, second.Saved)
	assert.Empty(t, second.Records)

	rec = f.do(t, http.MethodGet, "/v1/watermarks/root", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decode[WatermarkView](t, rec)
	assert.True(t, view.Present)
	assert.Equal(t, "list:root", view.Scope)
}

func TestRun_BodyOverridesAndValidation(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/v1/runs", []byte(`{"rootFolderId":"missing"}`), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/v1/runs", []byte(`{"batchSize":-1}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeConfigInvalid, decode[errorBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodPost, "/v1/runs", []byte(`{"bogus":1}`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeInvalidArgument, decode[errorBody](t, rec).Error.Code)
}

func TestRun_SameScopeIsExclusive(t *testing.T) {
	f := newFixture(t)
	f.store.AddFile("root", "a", testhelpers.At(1), nil)

	started := make(chan struct{})
	release := make(chan struct{})
	f.store.ListFunc = func(call int, _, _ string) error {
		if call == 1 {
			close(started)
			<-release
		}
		return nil
	}

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		done <- f.do(t, http.MethodPost, "/v1/runs", nil, nil)
	}()
	<-started

	rec := f.do(t, http.MethodPost, "/v1/runs", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, utils.ErrCodeRunInProgress, decode[errorBody](t, rec).Error.Code)

	close(release)
	first := <-done
	assert.Equal(t, http.StatusOK, first.Code)
}

func TestUpload_CreateUpdateConflict(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/files/root/reports/q1.txt", []byte("v1"), map[string]string{"Content-Type": "text/plain; charset=utf-8"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[UploadResponse](t, rec)
	assert.True(t, created.Created)
	assert.Equal(t, 1, created.FoldersCreated)
	assert.Equal(t, "text/plain", created.MimeType)
	assert.Equal(t, "true", created.Attributes[utils.AttrFileCreated])

	rec = f.do(t, http.MethodPut, "/v1/files/root/reports/q1.txt", []byte("v2"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[UploadResponse](t, rec)
	assert.Equal(t, created.FileID, updated.FileID)
	assert.False(t, updated.Created)
	content, _ := f.store.Content(created.FileID)
	assert.Equal(t, "v2", string(content))

	rec = f.do(t, http.MethodPut, "/v1/files/root/reports/q1.txt?failIfExists=true", []byte("v3"), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decode[errorBody](t, rec)
	assert.Equal(t, utils.ErrCodeAlreadyExists, body.Error.Code)
	assert.Equal(t, "true", body.Attributes[utils.AttrErrorFileExists])
}

func TestUpload_BadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/v1/files/root/a//b.txt", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeInvalidPath, decode[errorBody](t, rec).Error.Code)

	rec = f.do(t, http.MethodPut, "/v1/files/root/a.txt?failIfExists=maybe", []byte("x"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, f.store.Calls().List)
}

func TestFetch(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddFile("root", "notes.txt", testhelpers.At(3), []byte("hello"))
	dir := f.store.AddFolder("root", "dir", testhelpers.At(4))

	rec := f.do(t, http.MethodGet, "/v1/files/"+id, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	assert.Equal(t, id, rec.Header().Get("X-File-Id"))
	assert.True(t, strings.Contains(rec.Header().Get("Content-Disposition"), "notes.txt"))

	rec = f.do(t, http.MethodGet, "/v1/files/"+dir, nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/files/missing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, utils.ErrCodeFileNotFound, decode[errorBody](t, rec).Error.Code)
}

func TestWatermarkReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.wms.Save(ctx, "list:root", watermark.Watermark{HighWaterMark: testhelpers.At(9), IDsAtMark: []string{"x"}}))

	rec := f.do(t, http.MethodDelete, "/v1/watermarks/root", nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/v1/watermarks/root", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[WatermarkView](t, rec).Present)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	f.store.AddFile("root", "a", testhelpers.At(1), nil)
	f.do(t, http.MethodPost, "/v1/runs", nil, nil)

	rec := f.do(t, http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gdrvflow_listing_runs_total")
}

func TestSchedule_RunsUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.store.AddFile("root", "a", testhelpers.At(5), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.srv.Schedule(ctx, time.Hour) }()

	require.Eventually(t, func() bool {
		_, ok, err := f.wms.Load(context.Background(), "list:root")
		return err == nil && ok
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code      string
		retryable bool
		want      int
	}{
		{utils.ErrCodeInvalidPath, false, http.StatusBadRequest},
		{utils.ErrCodeConfigInvalid, false, http.StatusBadRequest},
		{utils.ErrCodeAuthRequired, false, http.StatusUnauthorized},
		{utils.ErrCodePermissionDenied, false, http.StatusForbidden},
		{utils.ErrCodeFileNotFound, true, http.StatusNotFound},
		{utils.ErrCodeTypeMismatch, false, http.StatusConflict},
		{utils.ErrCodeRunInProgress, true, http.StatusConflict},
		{utils.ErrCodeRateLimited, true, http.StatusTooManyRequests},
		{utils.ErrCodeNetworkError, true, http.StatusServiceUnavailable},
		{utils.ErrCodeSinkFailure, false, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(types.CLIError{Code: tt.code, Retryable: tt.retryable}))
		})
	}
}
