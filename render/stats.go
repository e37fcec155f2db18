package render

import (
	"log/slog"
	"time"

	"github.com/loov/hrtime"
)

// FrameSnapshot summarises the frames seen since the last report.
type FrameSnapshot struct {
	Rendered int
	Skipped  int
	Rebuilds int
	Failures int
	// MeanFrame is the mean time of rendered frames, from the start of Step to present.
	MeanFrame time.Duration
}

// FrameStats counts frame outcomes and logs a snapshot every interval. A nil *FrameStats
// records nothing.
type FrameStats struct {
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Duration

	windowStart time.Duration
	frameStart  time.Duration
	busy        time.Duration
	current     FrameSnapshot
}

// NewFrameStats returns stats that report every interval. A non-positive interval disables
// reporting but keeps counting.
func NewFrameStats(interval time.Duration, logger *slog.Logger) *FrameStats {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FrameStats{
		interval: interval,
		logger:   logger,
		now:      hrtime.Now,
	}
	s.windowStart = s.now()
	return s
}

func (s *FrameStats) begin() {
	if s == nil {
		return
	}
	s.frameStart = s.now()
}

func (s *FrameStats) rendered() {
	if s == nil {
		return
	}
	s.current.Rendered++
	s.busy += s.now() - s.frameStart
	s.maybeReport()
}

func (s *FrameStats) skipped() {
	if s == nil {
		return
	}
	s.current.Skipped++
	s.maybeReport()
}

func (s *FrameStats) failed() {
	if s == nil {
		return
	}
	s.current.Failures++
	s.maybeReport()
}

func (s *FrameStats) rebuilt() {
	if s == nil {
		return
	}
	s.current.Rebuilds++
}

// Snapshot returns the counters of the current window.
func (s *FrameStats) Snapshot() FrameSnapshot {
	if s == nil {
		return FrameSnapshot{}
	}

	snapshot := s.current
	if snapshot.Rendered > 0 {
		snapshot.MeanFrame = s.busy / time.Duration(snapshot.Rendered)
	}
	return snapshot
}

func (s *FrameStats) maybeReport() {
	if s.interval <= 0 {
		return
	}

	now := s.now()
	elapsed := now - s.windowStart
	if elapsed < s.interval {
		return
	}

	snapshot := s.Snapshot()
	s.logger.Info("frame stats",
		slog.Int("rendered", snapshot.Rendered),
		slog.Int("skipped", snapshot.Skipped),
		slog.Int("rebuilds", snapshot.Rebuilds),
		slog.Int("failures", snapshot.Failures),
		slog.Duration("mean_frame", snapshot.MeanFrame),
		slog.Float64("fps", float64(snapshot.Rendered)/elapsed.Seconds()))

	s.windowStart = now
	s.busy = 0
	s.current = FrameSnapshot{}
}
