package obs

import (
	"runtime"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "casedesk_build_info",
			Help: "Constant 1, labelled with the running build.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo publishes casedesk_build_info for this binary. Calling it
// again replaces nothing; it only adds the new label set.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
