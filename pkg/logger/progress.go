package logger

import "time"

// ProgressTracker logs the progress of a long-running operation every
// Every items, plus a final line on Complete.
type ProgressTracker struct {
	logger    Logger
	operation string
	every     int64
	current   int64
	startTime time.Time
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation string
	Every     int64
	Logger    Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.Every <= 0 {
		config.Every = 10000
	}

	tracker := &ProgressTracker{
		logger:    config.Logger.WithComponent("progress").WithField("operation", config.Operation),
		operation: config.Operation,
		every:     config.Every,
		startTime: time.Now(),
	}
	tracker.logger.Debug("Starting operation")
	return tracker
}

// Increment advances the counter by one.
func (p *ProgressTracker) Increment() {
	p.current++
	if p.current%p.every == 0 {
		p.logger.WithField("processed", p.current).Info("Progress")
	}
}

// Current returns the number of items processed so far.
func (p *ProgressTracker) Current() int64 {
	return p.current
}

// Complete logs final statistics
func (p *ProgressTracker) Complete() {
	p.logger.WithFields(Fields{
		"processed": p.current,
		"duration":  time.Since(p.startTime).String(),
	}).Info("Operation completed")
}

// CompleteWithError logs the failure together with the progress reached
func (p *ProgressTracker) CompleteWithError(err error) {
	p.logger.WithError(err).WithFields(Fields{
		"processed": p.current,
		"duration":  time.Since(p.startTime).String(),
	}).Error("Operation failed")
}
