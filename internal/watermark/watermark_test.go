package watermark

import (
	"testing"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

func TestWatermark_Selects(t *testing.T) {
	wm := Watermark{HighWaterMark: t0, IDsAtMark: []string{"seen"}}

	tests := []struct {
		name     string
		wm       Watermark
		id       string
		modified time.Time
		want     bool
	}{
		{"no prior run", Watermark{}, "a", t0.Add(-time.Hour), true},
		{"newer", wm, "a", t0.Add(time.Millisecond), true},
		{"older", wm, "a", t0.Add(-time.Millisecond), false},
		{"equal unseen", wm, "other", t0, true},
		{"equal seen", wm, "seen", t0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.wm.Selects(tt.id, tt.modified))
		})
	}
}

func TestTracker(t *testing.T) {
	t.Run("advance resets ids", func(t *testing.T) {
		tr := NewTracker(Watermark{HighWaterMark: t0, IDsAtMark: []string{"old"}})
		tr.Observe("a", t0.Add(time.Second))
		tr.Observe("b", t0.Add(time.Second))
		tr.Observe("c", t0.Add(-time.Second))

		got := tr.Watermark()
		assert.True(t, got.HighWaterMark.Equal(t0.Add(time.Second)))
		assert.Equal(t, []string{"a", "b"}, got.IDsAtMark)
	})

	t.Run("equal mark unions ids", func(t *testing.T) {
		tr := NewTracker(Watermark{HighWaterMark: t0, IDsAtMark: []string{"x"}})
		tr.Observe("y", t0)

		assert.Equal(t, []string{"x", "y"}, tr.Watermark().IDsAtMark)
	})

	t.Run("nothing observed keeps previous", func(t *testing.T) {
		prev := Watermark{HighWaterMark: t0, IDsAtMark: []string{"x"}}
		assert.True(t, NewTracker(prev).Watermark().Equal(prev))
		assert.True(t, NewTracker(Watermark{}).Watermark().IsZero())
	})
}

func TestEncodeDecode(t *testing.T) {
	wm := Watermark{HighWaterMark: t0.Add(123 * time.Millisecond), IDsAtMark: []string{"b", "a"}}
	data, err := Encode(wm)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1,"hwm":"2024-05-01T08:00:00.123Z","ids":["a","b"]}`, string(data))

	got, ok, err := Decode(data)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(wm))
}

func TestDecode_Edges(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantOK  bool
		wantHWM time.Time
		wantErr bool
	}{
		{"empty", "", false, time.Time{}, false},
		{"unversioned json", `{"hwm":"2024-05-01T08:00:00Z"}`, false, time.Time{}, false},
		{"future version", `{"v":9,"hwm":"2024-05-01T08:00:00Z"}`, false, time.Time{}, false},
		{"legacy millis", "1714550400000", true, t0, false},
		{"corrupt", "{not json", false, time.Time{}, true},
		{"bad timestamp", `{"v":1,"hwm":"yesterday"}`, false, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Decode([]byte(tt.data))
			if tt.wantErr {
				assert.True(t, utils.HasCode(err, utils.ErrCodeWatermarkStore), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.True(t, got.HighWaterMark.Equal(tt.wantHWM), "got %s", got.HighWaterMark)
		})
	}
}
