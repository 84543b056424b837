package metrics

import (
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/ainotebook/notebase/info"
)

var registerInfoOnce sync.Once

// RegisterInfoMetric registers a constant metric that carries the build
// information as labels.
func RegisterInfoMetric() {
	registerInfoOnce.Do(func() {
		meta := info.GetInfo()
		set.GetOrCreateGauge(fmt.Sprintf(
			`notebase_info{version=%q,commit=%q,build_date=%q,go_os=%q,go_arch=%q,go_version=%q}`,
			checkUnknown(meta.Version),
			checkUnknown(meta.Commit),
			checkUnknown(meta.BuildDate),
			runtime.GOOS,
			runtime.GOARCH,
			runtime.Version(),
		), func() float64 {
			return 1
		})
	})
}

func checkUnknown(s string) string {
	if s == "" || strings.Contains(s, "unknown") {
		return "unknown"
	}
	return s
}
