package sink

import (
	"context"
	"sync"

	"github.com/dl-alexandre/gdrvflow/internal/listing"
)

// Collector keeps committed records in memory.
type Collector struct {
	mu      sync.Mutex
	records []listing.Record
	commits int
}

func (c *Collector) Commit(_ context.Context, batch []listing.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, batch...)
	c.commits++
	return nil
}

// Records returns a copy of everything committed so far.
func (c *Collector) Records() []listing.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]listing.Record(nil), c.records...)
}

// Commits is the number of Commit calls.
func (c *Collector) Commits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.commits
}

// Tee commits each batch to every sink in order, stopping at the first error.
type Tee []listing.Sink

func (t Tee) Commit(ctx context.Context, batch []listing.Record) error {
	for _, s := range t {
		if err := s.Commit(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}
