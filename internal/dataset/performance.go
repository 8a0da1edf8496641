package dataset

import (
	"context"
	"fmt"
	"time"
)

const performanceSamples = 5

// PerformanceMetrics times a handful of index reads and scratch writes and
// reports them with the server uptime and cache hit rate.
func (s *service) PerformanceMetrics(ctx context.Context) (PerformanceMetrics, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	start := s.now()
	for i := 0; i < performanceSamples; i++ {
		if err := s.repo.SampleRead(ctx); err != nil {
			return PerformanceMetrics{}, upstream("sample read", err)
		}
	}
	readTime := s.now().Sub(start) / performanceSamples

	start = s.now()
	for i := 0; i < performanceSamples; i++ {
		if err := s.repo.SampleWrite(ctx); err != nil {
			s.dropSamples(ctx)
			return PerformanceMetrics{}, upstream("sample write", err)
		}
	}
	writeTime := s.now().Sub(start) / performanceSamples
	s.dropSamples(ctx)

	status, err := s.repo.ServerStatus(ctx)
	if err != nil {
		return PerformanceMetrics{}, upstream("server status", err)
	}

	return PerformanceMetrics{
		ReadTime:     formatMillis(readTime),
		WriteTime:    formatMillis(writeTime),
		Uptime:       formatUptime(status.Uptime),
		CacheHitRate: cacheHitRate(status),
	}, nil
}

func (s *service) dropSamples(ctx context.Context) {
	if err := s.repo.DropSamples(context.WithoutCancel(ctx)); err != nil {
		s.log.Warnw("drop sample collection failed", "error", err)
	}
}

func formatMillis(d time.Duration) string {
	return fmt.Sprintf("%.2f ms", float64(d)/float64(time.Millisecond))
}

func formatUptime(d time.Duration) string {
	return fmt.Sprintf("%d hrs %d mins", int(d.Hours()), int(d.Minutes())%60)
}

// cacheHitRate derives the storage engine cache hit rate. Servers that do not
// report cache counters yield "N/A".
func cacheHitRate(status ServerStatus) string {
	if status.CachePagesRequested <= 0 {
		return "N/A"
	}
	rate := 100 * (1 - float64(status.CachePagesRead)/float64(status.CachePagesRequested))
	if rate < 0 {
		rate = 0
	}
	return fmt.Sprintf("%.2f%%", rate)
}
