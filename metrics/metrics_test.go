package metrics

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStoreOp(t *testing.T) {
	t.Parallel()

	before := StoreOpCount("metrics-db", "notes", "add", ResultOK)
	StoreOp("metrics-db", "notes", "add", nil, time.Now())
	StoreOp("metrics-db", "notes", "add", nil, time.Now())
	StoreOp("metrics-db", "notes", "add", errors.New("failed"), time.Now())

	assert.Equal(t, before+2, StoreOpCount("metrics-db", "notes", "add", ResultOK))
	assert.Equal(t, uint64(1), StoreOpCount("metrics-db", "notes", "add", ResultError))

	buf := &bytes.Buffer{}
	WriteMetrics(buf, false)
	assert.Contains(t, buf.String(), `notebase_store_ops_total{db="metrics-db",collection="notes",op="add",result="error"} 1`)
	assert.Contains(t, buf.String(), `notebase_store_op_duration_seconds_bucket{op="add"`)
}

func TestRegisteredMetrics(t *testing.T) {
	t.Parallel()

	RegisterInfoMetric()
	RegisterLogMetrics()
	// registering twice is fine
	RegisterInfoMetric()
	RegisterLogMetrics()

	buf := &bytes.Buffer{}
	WriteMetrics(buf, true)
	out := buf.String()
	assert.Contains(t, out, "notebase_info{")
	assert.Contains(t, out, `notebase_logs_total{level="error"}`)
	assert.Contains(t, out, "go_goroutines")
}
