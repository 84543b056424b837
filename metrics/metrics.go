package metrics

import (
	"fmt"
	"io"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
)

// Result labels of store operations.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var set = vm.NewSet()

// StoreOp records a finished store operation.
func StoreOp(db, collection, op string, err error, start time.Time) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}

	set.GetOrCreateCounter(fmt.Sprintf(
		`notebase_store_ops_total{db=%q,collection=%q,op=%q,result=%q}`,
		db, collection, op, result,
	)).Inc()
	set.GetOrCreateHistogram(fmt.Sprintf(
		`notebase_store_op_duration_seconds{op=%q}`,
		op,
	)).UpdateDuration(start)
}

// StoreOpCount returns how often the operation was recorded with the given
// result.
func StoreOpCount(db, collection, op, result string) uint64 {
	return set.GetOrCreateCounter(fmt.Sprintf(
		`notebase_store_ops_total{db=%q,collection=%q,op=%q,result=%q}`,
		db, collection, op, result,
	)).Get()
}

// WriteMetrics writes all metrics in the prometheus text format. Process
// metrics are included if requested.
func WriteMetrics(w io.Writer, withProcessMetrics bool) {
	set.WritePrometheus(w)
	if withProcessMetrics {
		vm.WriteProcessMetrics(w)
	}
}
