package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dl-alexandre/gdrvflow/internal/api"
	"github.com/dl-alexandre/gdrvflow/internal/auth"
	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/remote"
	"github.com/dl-alexandre/gdrvflow/internal/sink"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/internal/watermark"
	"golang.org/x/time/rate"
)

// newRemoteStore builds the Drive-backed store for cfg. Tests swap it for an
// in-memory store.
var newRemoteStore = func(ctx context.Context, cfg *config.Config, scopes []string) (remote.Store, error) {
	mgr := auth.NewManager(cfg.Credentials, logger)
	opts := auth.ServiceOptions{Scopes: scopes, Timeout: cfg.RequestTimeout}
	if debugTransport != nil {
		opts.Transport = debugTransport
	}
	svc, _, err := mgr.DriveService(ctx, cfg.Profile, opts)
	if err != nil {
		return nil, err
	}
	client := api.NewClient(svc, cfg.MaxRetries, cfg.RetryBaseDelay, logger)
	return remote.NewDriveStore(client, cfg.Profile, ""), nil
}

var openWatermarks = func(ctx context.Context, cfg *config.Config) (watermark.Store, error) {
	return watermark.Open(ctx, cfg, logger)
}

var newObjectStorage = func(cfg config.S3Config) (sink.ObjectStorage, error) {
	return sink.NewMinioStorage(cfg)
}

// openSink builds the configured record sink. stdout receives jsonl records
// when no sink path is set, and table output. The returned close func flushes
// and releases the sink.
func openSink(cfg *config.Config, stdout io.Writer, runID string) (listing.Sink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Sink.Kind {
	case config.SinkJSONL, "":
		if cfg.Sink.Path == "" {
			return sink.NewJSONL(stdout), noop, nil
		}
		f, err := openAppend(cfg.Sink.Path)
		if err != nil {
			return nil, nil, err
		}
		return sink.NewJSONL(f), f.Close, nil
	case config.SinkTable:
		t := sink.NewTable(stdout)
		return t, t.Close, nil
	case config.SinkS3:
		storage, err := newObjectStorage(cfg.Sink.S3)
		if err != nil {
			return nil, nil, err
		}
		return sink.NewObjectStore(storage, cfg.Sink.S3.Prefix, runID), noop, nil
	default:
		return nil, nil, utils.ConfigError("sink.kind", fmt.Sprintf("invalid sink: %s", cfg.Sink.Kind))
	}
}

// sinkWritesStdout reports whether records from cfg's sink land on stdout.
func sinkWritesStdout(cfg *config.Config) bool {
	switch cfg.Sink.Kind {
	case config.SinkTable:
		return true
	case config.SinkJSONL, "":
		return cfg.Sink.Path == ""
	}
	return false
}

func openAppend(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, sinkOpenError(path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, sinkOpenError(path, err)
	}
	return f, nil
}

func sinkOpenError(path string, err error) error {
	return utils.WrapAppError(utils.NewCLIError(utils.ErrCodeSinkFailure,
		fmt.Sprintf("cannot open sink file %s: %v", path, err)).
		WithContext("setting", "sink.path").
		Build(), err)
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// ExitCode maps an error returned by Execute to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return utils.ExitSuccess
	}
	if appErr, ok := utils.AsAppError(err); ok {
		return utils.GetExitCode(appErr.CLIError.Code)
	}
	return utils.ExitUnknown
}
