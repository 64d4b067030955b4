package watermark

import (
	"context"
	"fmt"

	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
)

// Store persists one watermark per scope key. Implementations never lower a
// stored HighWaterMark: a stale Save is dropped with a warning and returns nil.
type Store interface {
	// Load reports ok=false when no usable watermark is stored.
	Load(ctx context.Context, scopeKey string) (Watermark, bool, error)
	Save(ctx context.Context, scopeKey string, wm Watermark) error
	// Delete removes the scope so the next run starts from the beginning.
	Delete(ctx context.Context, scopeKey string) error
	Close() error
}

// rawStore is the byte-level persistence each backend provides.
type rawStore interface {
	get(ctx context.Context, key string) ([]byte, bool, error)
	put(ctx context.Context, key string, value []byte) error
	del(ctx context.Context, key string) error
	close() error
}

// guarded layers encoding and the monotonicity check over a rawStore.
type guarded struct {
	raw    rawStore
	name   string
	logger logging.Logger
}

func newGuarded(name string, raw rawStore, logger logging.Logger) *guarded {
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	return &guarded{raw: raw, name: name, logger: logger}
}

func (g *guarded) Load(ctx context.Context, scopeKey string) (Watermark, bool, error) {
	data, ok, err := g.raw.get(ctx, scopeKey)
	if err != nil {
		return Watermark{}, false, storeError(g.name+" load", err)
	}
	if !ok {
		return Watermark{}, false, nil
	}
	wm, ok, err := Decode(data)
	if err != nil {
		return Watermark{}, false, err
	}
	if !ok {
		g.logger.Warn("Ignoring unversioned watermark",
			logging.F("backend", g.name),
			logging.F("scope", scopeKey),
		)
	}
	return wm, ok, nil
}

func (g *guarded) Save(ctx context.Context, scopeKey string, wm Watermark) error {
	if wm.IsZero() {
		return nil
	}
	current, ok, err := g.Load(ctx, scopeKey)
	if err != nil {
		return err
	}
	if ok && wm.HighWaterMark.Before(current.HighWaterMark) {
		g.logger.Warn("Refusing to move watermark backwards",
			logging.F("backend", g.name),
			logging.F("scope", scopeKey),
			logging.F("stored", current.String()),
			logging.F("candidate", wm.String()),
		)
		return nil
	}
	if ok && wm.Equal(current) {
		return nil
	}

	data, err := Encode(wm)
	if err != nil {
		return storeError(g.name+" encode", err)
	}
	if err := g.raw.put(ctx, scopeKey, data); err != nil {
		return storeError(g.name+" save", err)
	}
	g.logger.Debug("Watermark saved",
		logging.F("backend", g.name),
		logging.F("scope", scopeKey),
		logging.F("watermark", wm.String()),
	)
	return nil
}

func (g *guarded) Delete(ctx context.Context, scopeKey string) error {
	if err := g.raw.del(ctx, scopeKey); err != nil {
		return storeError(g.name+" delete", err)
	}
	return nil
}

func (g *guarded) Close() error {
	return g.raw.close()
}

// Open builds the store selected by cfg.Watermark.Backend.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (Store, error) {
	switch cfg.Watermark.Backend {
	case config.BackendSQLite, "":
		path, err := cfg.WatermarkPath()
		if err != nil {
			return nil, storeError("resolve sqlite path", err)
		}
		return OpenSQLite(ctx, path, logger)
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.Watermark.RedisURL, cfg.Watermark.KeyPrefix, logger)
	case config.BackendMemory:
		return NewMemoryStore(logger), nil
	default:
		return nil, utils.ConfigError("watermark.backend",
			fmt.Sprintf("invalid watermark backend: %s", cfg.Watermark.Backend))
	}
}
