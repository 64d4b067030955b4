// Package sink provides listing.Sink implementations.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// JSONL writes one attribute object per line.
type JSONL struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONL writes to w.
func NewJSONL(w io.Writer) *JSONL {
	return &JSONL{enc: json.NewEncoder(w)}
}

func (s *JSONL) Commit(_ context.Context, batch []listing.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range batch {
		if err := s.enc.Encode(r); err != nil {
			return sinkError("jsonl", err)
		}
	}
	return nil
}

func sinkError(kind string, err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeSinkFailure,
		fmt.Sprintf("%s sink: %v", kind, err)).Build(), err)
}
