package testing

import (
	"context"
	"testing"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// TestTraceID is the trace ID carried by TestContext.
const TestTraceID = "test-trace-id"

// BaseTime is the reference instant fixtures are built around.
var BaseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// TestContext creates a context carrying TestTraceID
func TestContext() context.Context {
	return logging.ContextWithTraceID(context.Background(), TestTraceID)
}

// TestRequestContext creates a standard request context for testing
func TestRequestContext() *types.RequestContext {
	return &types.RequestContext{
		Profile:           "test-profile",
		DriveID:           "",
		InvolvedFileIDs:   []string{},
		InvolvedParentIDs: []string{},
		RequestType:       types.RequestTypeListOrSearch,
		TraceID:           TestTraceID,
	}
}

// At returns BaseTime shifted by the given number of seconds.
func At(seconds int) time.Time {
	return BaseTime.Add(time.Duration(seconds) * time.Second)
}

// TestFile creates a file entry for testing
func TestFile(id, name, parentID string, modified time.Time) types.Entry {
	return types.Entry{
		ID:             id,
		Name:           name,
		ParentFolderID: parentID,
		MimeType:       "text/plain",
		CreatedAt:      modified,
		ModifiedAt:     modified,
	}
}

// TestFolder creates a folder entry for testing
func TestFolder(id, name, parentID string, modified time.Time) types.Entry {
	return types.Entry{
		ID:             id,
		Name:           name,
		ParentFolderID: parentID,
		IsFolder:       true,
		MimeType:       utils.MimeTypeFolder,
		CreatedAt:      modified,
		ModifiedAt:     modified,
	}
}

// AssertNoError is a helper to fail the test if error is not nil
func AssertNoError(t *testing.T, err error, msgAndArgs ...interface{}) {
	t.Helper()
	if err != nil {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: %v", msgAndArgs[0], err)
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// AssertErrorCode fails the test unless err carries the given error code.
func AssertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error but got nil", code)
	}
	if !utils.HasCode(err, code) {
		t.Fatalf("expected %s error, got %v", code, err)
	}
}

// AssertEqual is a helper to fail the test if two values are not equal
func AssertEqual(t *testing.T, got, want interface{}, msgAndArgs ...interface{}) {
	t.Helper()
	if got != want {
		if len(msgAndArgs) > 0 {
			t.Fatalf("%v: got %v, want %v", msgAndArgs[0], got, want)
		} else {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
