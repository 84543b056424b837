package metrics

import (
	"sync"

	"github.com/ainotebook/notebase/log"
)

var registerLogMetricsOnce sync.Once

// RegisterLogMetrics registers counters of warning, error and critical log
// lines.
func RegisterLogMetrics() {
	registerLogMetricsOnce.Do(func() {
		set.GetOrCreateGauge(`notebase_logs_total{level="warning"}`, func() float64 {
			return float64(log.TotalWarningLogLines())
		})
		set.GetOrCreateGauge(`notebase_logs_total{level="error"}`, func() float64 {
			return float64(log.TotalErrorLogLines())
		})
		set.GetOrCreateGauge(`notebase_logs_total{level="critical"}`, func() float64 {
			return float64(log.TotalCriticalLogLines())
		})
	})
}
