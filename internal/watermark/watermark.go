// Package watermark holds the incremental-listing progress marker and the
// stores that persist it between runs.
package watermark

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/types"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// PayloadVersion is the only stored encoding version Decode accepts.
const PayloadVersion = 1

// Watermark is the greatest modification time observed by the last successful
// run, plus the IDs observed at exactly that instant. The zero value means no
// prior run.
type Watermark struct {
	HighWaterMark time.Time
	IDsAtMark     []string
}

// IsZero reports whether no run has completed yet.
func (w Watermark) IsZero() bool {
	return w.HighWaterMark.IsZero()
}

// Selects reports whether an entry modified at modified with the given ID is new
// relative to w.
func (w Watermark) Selects(id string, modified time.Time) bool {
	if w.IsZero() {
		return true
	}
	if modified.After(w.HighWaterMark) {
		return true
	}
	if modified.Equal(w.HighWaterMark) {
		for _, seen := range w.IDsAtMark {
			if seen == id {
				return false
			}
		}
		return true
	}
	return false
}

// Equal compares marks and ID sets, ignoring ID order.
func (w Watermark) Equal(o Watermark) bool {
	if !w.HighWaterMark.Equal(o.HighWaterMark) || len(w.IDsAtMark) != len(o.IDsAtMark) {
		return false
	}
	a, b := sortedIDs(w.IDsAtMark), sortedIDs(o.IDsAtMark)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (w Watermark) String() string {
	if w.IsZero() {
		return "none"
	}
	return fmt.Sprintf("%s (%d ids at mark)", types.FormatTime(w.HighWaterMark), len(w.IDsAtMark))
}

// Tracker accumulates the candidate watermark over the entries a run observes.
type Tracker struct {
	mark time.Time
	ids  map[string]struct{}
}

// NewTracker starts from prev so a run that observes nothing older never moves
// the mark backwards.
func NewTracker(prev Watermark) *Tracker {
	t := &Tracker{mark: prev.HighWaterMark, ids: make(map[string]struct{}, len(prev.IDsAtMark))}
	for _, id := range prev.IDsAtMark {
		t.ids[id] = struct{}{}
	}
	return t
}

// Observe folds one entry into the candidate.
func (t *Tracker) Observe(id string, modified time.Time) {
	switch {
	case modified.After(t.mark):
		t.mark = modified
		t.ids = map[string]struct{}{id: {}}
	case modified.Equal(t.mark):
		t.ids[id] = struct{}{}
	}
}

// Watermark returns the current candidate.
func (t *Tracker) Watermark() Watermark {
	if t.mark.IsZero() {
		return Watermark{}
	}
	ids := make([]string, 0, len(t.ids))
	for id := range t.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return Watermark{HighWaterMark: t.mark, IDsAtMark: ids}
}

type payload struct {
	Version int      `json:"v"`
	HWM     string   `json:"hwm"`
	IDs     []string `json:"ids,omitempty"`
}

// Encode renders the versioned stored form.
func Encode(w Watermark) ([]byte, error) {
	return json.Marshal(payload{
		Version: PayloadVersion,
		HWM:     w.HighWaterMark.UTC().Format(time.RFC3339Nano),
		IDs:     sortedIDs(w.IDsAtMark),
	})
}

// Decode parses a stored value. An empty, unversioned or unknown-version value
// decodes as absent. A bare integer is read as a millisecond epoch with no IDs.
func Decode(data []byte) (Watermark, bool, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return Watermark{}, false, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms <= 0 {
			return Watermark{}, false, nil
		}
		return Watermark{HighWaterMark: time.UnixMilli(ms).UTC()}, true, nil
	}

	var p payload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return Watermark{}, false, storeError("decode watermark", err)
	}
	if p.Version != PayloadVersion {
		return Watermark{}, false, nil
	}
	hwm, err := time.Parse(time.RFC3339Nano, p.HWM)
	if err != nil {
		return Watermark{}, false, storeError("decode watermark", err)
	}
	return Watermark{HighWaterMark: hwm.UTC(), IDsAtMark: p.IDs}, true, nil
}

func sortedIDs(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func storeError(op string, err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeWatermarkStore,
		fmt.Sprintf("%s: %v", op, err)).
		WithRetryable(true).
		Build(), err)
}
