package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	sessionEventCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "sessions",
		Name:      "events_total",
		Help:      "Session lifecycle events grouped by outcome (opened, closed, duplicate_enter, orphan_leave, invalid_interval, recovered).",
	}, []string{"outcome"})

	recordsWrittenCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "persistence",
		Name:      "records_written_total",
		Help:      "Number of day-bounded attendance records persisted.",
	})

	recordsPurgedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "persistence",
		Name:      "records_purged_total",
		Help:      "Number of attendance records removed by the monthly retention sweep.",
	})

	recordPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Subsystem: "persistence",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the check-out of the most recent record persisted.",
	})

	triggerCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Subsystem: "scheduler",
		Name:      "trigger_runs_total",
		Help:      "Report trigger runs grouped by trigger and result.",
	}, []string{"trigger", "result"})
)

// Session outcomes used as label values.
const (
	SessionOpened          = "opened"
	SessionClosed          = "closed"
	SessionDuplicateEnter  = "duplicate_enter"
	SessionOrphanLeave     = "orphan_leave"
	SessionInvalidInterval = "invalid_interval"
	SessionRecovered       = "recovered"
)

func init() {
	prometheus.MustRegister(sessionEventCounter, recordsWrittenCounter, recordsPurgedCounter, recordPersistGauge, triggerCounter)
}

// RecordSessionEvent counts a lifecycle outcome.
func RecordSessionEvent(outcome string) {
	sessionEventCounter.WithLabelValues(outcome).Inc()
}

// RecordRecordsPersisted bumps the written counter and the persistence watermark gauge.
func RecordRecordsPersisted(n int, ts time.Time) {
	if n <= 0 {
		return
	}
	recordsWrittenCounter.Add(float64(n))
	if ts.IsZero() {
		return
	}
	recordPersistGauge.Set(float64(ts.Unix()))
}

// RecordPurged counts records deleted by the retention sweep.
func RecordPurged(n int64) {
	if n <= 0 {
		return
	}
	recordsPurgedCounter.Add(float64(n))
}

// RecordTriggerRun counts a trigger run; failed marks actions that returned an error.
func RecordTriggerRun(trigger string, failed bool) {
	result := "ok"
	if failed {
		result = "error"
	}
	triggerCounter.WithLabelValues(trigger, result).Inc()
}

// SessionEvents exposes the lifecycle counter for assertions.
func SessionEvents() *prometheus.CounterVec { return sessionEventCounter }

// TriggerRuns exposes the trigger counter for assertions.
func TriggerRuns() *prometheus.CounterVec { return triggerCounter }
