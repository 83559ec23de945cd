package api

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// completionMetrics collects per-stage timings for one completion-link
// visit and logs them as a single structured entry.
type completionMetrics struct {
	logger           *log.Logger
	start            time.Time
	resolveDuration  time.Duration
	updateDuration   time.Duration
	dispatchDuration time.Duration
	result           string
}

func newCompletionMetrics(logger *log.Logger) *completionMetrics {
	return &completionMetrics{
		logger: logger,
		start:  time.Now(),
	}
}

func (m *completionMetrics) ObserveResolve(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.resolveDuration = duration
}

func (m *completionMetrics) ObserveUpdate(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.updateDuration = duration
}

func (m *completionMetrics) ObserveDispatch(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.dispatchDuration = duration
}

func (m *completionMetrics) SetResult(result string) {
	if result == "" {
		return
	}
	m.result = result
}

func (m *completionMetrics) Log(status int, err error) {
	if m == nil || m.logger == nil {
		return
	}

	fields := log.Fields{
		"route":    "/?complete_task",
		"status":   status,
		"total_ms": durationToMillis(time.Since(m.start)),
	}
	if m.resolveDuration > 0 {
		fields["resolve_ms"] = durationToMillis(m.resolveDuration)
	}
	if m.updateDuration > 0 {
		fields["update_ms"] = durationToMillis(m.updateDuration)
	}
	if m.dispatchDuration > 0 {
		fields["dispatch_ms"] = durationToMillis(m.dispatchDuration)
	}
	if m.result != "" {
		fields["result"] = m.result
	}
	if err != nil {
		fields["error"] = err.Error()
	}

	m.logger.WithFields(fields).Info("completion.request.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
