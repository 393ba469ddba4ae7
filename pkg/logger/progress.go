package logger

import (
	"sync"
	"time"
)

// ProgressTracker logs progress of long-running batch operations at a fixed
// interval instead of per row.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// NewProgressTracker creates a tracker for an operation. A zero total means
// the total is unknown and percentages are omitted.
func NewProgressTracker(log Logger, operation string, total int64) *ProgressTracker {
	if log == nil {
		log = GetGlobalLogger()
	}
	now := time.Now()
	return &ProgressTracker{
		logger:      log.WithComponent("progress"),
		operation:   operation,
		total:       total,
		startTime:   now,
		lastLogTime: now,
		logInterval: 5 * time.Second,
	}
}

// Add advances the progress counter and logs if the interval has elapsed.
func (p *ProgressTracker) Add(n int64) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.current += n
	now := time.Now()
	if now.Sub(p.lastLogTime) < p.logInterval {
		return
	}
	p.lastLogTime = now
	p.logProgress(now)
}

// Done logs the final counts and elapsed time.
func (p *ProgressTracker) Done() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.logProgress(time.Now())
}

// Percent returns completion as 0-100, or -1 when the total is unknown.
func (p *ProgressTracker) Percent() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.total <= 0 {
		return -1
	}
	return int(p.current * 100 / p.total)
}

func (p *ProgressTracker) logProgress(now time.Time) {
	fields := Fields{
		"operation": p.operation,
		"processed": p.current,
		"elapsed":   now.Sub(p.startTime).Round(time.Millisecond).String(),
	}
	if p.total > 0 {
		fields["total"] = p.total
		fields["percent"] = int(p.current * 100 / p.total)
	}
	p.logger.WithFields(fields).Info("progress")
}
