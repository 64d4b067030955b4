package watermark

import (
	"context"
	"sync"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
)

// MemoryStore keeps encoded watermarks in process memory.
type MemoryStore struct {
	*guarded
	kv *memoryKV
}

type memoryKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore(logger logging.Logger) *MemoryStore {
	kv := &memoryKV{data: make(map[string][]byte)}
	return &MemoryStore{guarded: newGuarded("memory", kv, logger), kv: kv}
}

// SetRaw stores value verbatim, bypassing encoding and the monotonicity check.
func (m *MemoryStore) SetRaw(scopeKey string, value []byte) {
	_ = m.kv.put(context.Background(), scopeKey, value)
}

// Raw returns the stored bytes for scopeKey.
func (m *MemoryStore) Raw(scopeKey string) ([]byte, bool) {
	b, ok, _ := m.kv.get(context.Background(), scopeKey)
	return b, ok
}

func (m *memoryKV) get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (m *memoryKV) put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *memoryKV) del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryKV) close() error {
	return nil
}
