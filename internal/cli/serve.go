package cli

import (
	"github.com/dl-alexandre/gdrvflow/internal/config"
	"github.com/dl-alexandre/gdrvflow/internal/listing"
	"github.com/dl-alexandre/gdrvflow/internal/logging"
	"github.com/dl-alexandre/gdrvflow/internal/metrics"
	"github.com/dl-alexandre/gdrvflow/internal/server"
	"github.com/dl-alexandre/gdrvflow/internal/sink"
	"github.com/dl-alexandre/gdrvflow/internal/utils"
	"github.com/dl-alexandre/gdrvflow/pkg/version"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API and run scheduled listings",
	Long: `Serve listing runs, uploads, fetches and watermark management over HTTP,
with Prometheus metrics on /metrics. With a non-zero --interval the configured
root folder is also listed on a schedule.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", "", "Listen address")
	f.Duration("interval", 0, "Scheduled listing interval (0 disables the scheduler)")
	f.String("root", "", "Root folder ID for scheduled and default runs")
	f.Bool("recursive", false, "Descend into subfolders")
	f.String("watermark-backend", "", "Watermark store (sqlite, redis, memory)")
	bindFlag(serveCmd, "server.addr", "addr")
	bindFlag(serveCmd, "server.interval", "interval")
	bindFlag(serveCmd, "list.rootFolder", "root")
	bindFlag(serveCmd, "list.recursive", "recursive")
	bindFlag(serveCmd, "watermark.backend", "watermark-backend")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := GetGlobalFlags()
	out := NewOutputWriter(cmd.OutOrStdout(), cmd.ErrOrStderr(), flags.OutputFormat, flags.Quiet, flags.Verbose)
	cfg := appConfig
	ctx := cmd.Context()

	if cfg.Server.Interval > 0 {
		if err := cfg.ValidateList(); err != nil {
			return out.WriteError("serve", err)
		}
	}

	store, err := newRemoteStore(ctx, cfg, utils.ScopesAll)
	if err != nil {
		return out.WriteError("serve", err)
	}
	wms, err := openWatermarks(ctx, cfg)
	if err != nil {
		return out.WriteError("serve", err)
	}
	defer wms.Close()

	snk, closeSink, err := serverSink(cfg)
	if err != nil {
		return out.WriteError("serve", err)
	}
	defer closeSink()

	srv := server.New(cfg.Server.Addr, server.Options{
		Store:      store,
		Watermarks: wms,
		Sink:       snk,
		List:       cfg.List,
		Upload:     cfg.Upload,
		Limiter:    newLimiter(cfg.List.RateLimit),
		ScopeKey:   scopeKeyFunc(cfg),
		Metrics:    metrics.New(),
		Logger:     logger,
		Version:    version.Version,
	})

	logger.Info("Starting server",
		logging.F("addr", cfg.Server.Addr),
		logging.F("interval", cfg.Server.Interval.String()),
		logging.F("watermarkBackend", cfg.Watermark.Backend),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	g.Go(func() error { return srv.Schedule(gctx, cfg.Server.Interval) })
	return g.Wait()
}

// serverSink returns the sink server runs also write to. Stdout sinks are not
// used by the server; run records are returned in the response instead.
func serverSink(cfg *config.Config) (listing.Sink, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Sink.Kind {
	case config.SinkS3:
		storage, err := newObjectStorage(cfg.Sink.S3)
		if err != nil {
			return nil, nil, err
		}
		return sink.NewObjectStore(storage, cfg.Sink.S3.Prefix, "serve-"+uuid.New().String()), noop, nil
	case config.SinkJSONL:
		if cfg.Sink.Path == "" {
			return nil, noop, nil
		}
		f, err := openAppend(cfg.Sink.Path)
		if err != nil {
			return nil, nil, err
		}
		return sink.NewJSONL(f), f.Close, nil
	}
	return nil, noop, nil
}

// scopeKeyFunc pins the configured scope key to the configured root and
// derives list:<root> for any other root.
func scopeKeyFunc(cfg *config.Config) func(string) string {
	return func(root string) string {
		if cfg.Watermark.ScopeKey != "" && root == cfg.List.RootFolder {
			return cfg.Watermark.ScopeKey
		}
		return "list:" + root
	}
}
