package server

import (
	"context"
	"time"

	"github.com/dl-alexandre/gdrvflow/internal/logging"
)

// Schedule runs the default listing request every interval until ctx ends.
// The first run starts immediately. Failed runs are logged and retried on the
// next tick with the stored watermark unchanged.
func (s *Server) Schedule(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.scheduledRun(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Server) scheduledRun(ctx context.Context) {
	out, _, err := s.RunListing(ctx, s.DefaultRequest(), false)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Scheduled listing run failed",
			logging.F("root", s.opts.List.RootFolder),
			logging.F("error", err.Error()),
		)
		return
	}
	s.logger.Info("Scheduled listing run finished",
		logging.F("runId", out.RunID),
		logging.F("emitted", out.Result.Emitted),
		logging.F("saved", out.Saved),
	)
}
