package listing

import (
	"context"
	"testing"

	testhelpers "github.com/dl-alexandre/gdrvflow/internal/testing"
	"github.com/dl-alexandre/gdrvflow/internal/testing/mocks"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runRecorder struct {
	outcomes []string
}

func (r *runRecorder) RunFinished(outcome string, _ watermark.Watermark) {
	r.outcomes = append(r.outcomes, outcome)
}

func TestRunner_SavesOnlyOnSuccess(t *testing.T) {
	store := mocks.NewMemoryStore("root")
	store.AddFile("root", "a", testhelpers.At(1), nil)

	wms := watermark.NewMemoryStore(nil)
	metrics := &runRecorder{}
	runner := NewRunner(newEngine(t, store, &collector{}, Options{}), wms, nil, metrics)
	ctx := context.Background()

	out, err := runner.Run(ctx, req(false), "list:root")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, out.Status)
	assert.True(t, out.Saved)
	saved, ok, err := wms.Load(ctx, "list:root")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, saved.HighWaterMark.Equal(testhelpers.At(1)))

	again, err := runner.Run(ctx, req(false), "list:root")
	require.NoError(t, err)
	assert.False(t, again.Saved, "unchanged watermark is not rewritten")
	assert.Equal(t, 0, again.Result.Emitted)

	store.AddFile("root", "b", testhelpers.At(7), nil)
	store.ListFunc = func(int, string, string) error {
		return utils.NewAppError(utils.NewCLIError(utils.ErrCodePermissionDenied, "denied").Build())
	}
	failed, err := runner.Run(ctx, req(false), "list:root")
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, failed.Status)
	assert.True(t, utils.IsRetryable(err), "failed runs are retried on the next schedule")
	assert.True(t, utils.HasCode(err, utils.ErrCodePermissionDenied))

	kept, _, err := wms.Load(ctx, "list:root")
	require.NoError(t, err)
	assert.True(t, kept.Equal(saved), "failed run must not move the watermark")
	assert.Equal(t, []string{OutcomeSuccess, OutcomeSuccess, OutcomeFailed}, metrics.outcomes)
}

func TestRunner_ConfigErrorsAreNotRetryable(t *testing.T) {
	runner := NewRunner(newEngine(t, mocks.NewMemoryStore("root"), &collector{}, Options{}), watermark.NewMemoryStore(nil), nil, nil)
	_, err := runner.Run(context.Background(), Request{RootFolderID: "root"}, "s")
	assert.True(t, utils.HasCode(err, utils.ErrCodeConfigInvalid))
	assert.False(t, utils.IsRetryable(err))
}
