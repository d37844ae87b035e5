package obs

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfoOnce sync.Once

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "durga_build_info",
			Help: "Durga API build information.",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// InitBuildInfo registers durga_build_info once and sets it to 1. An empty or "dev" commit
// is replaced by the VCS revision embedded by the Go toolchain, when present.
func InitBuildInfo(version, commit string) {
	buildInfoOnce.Do(func() {
		prometheus.MustRegister(buildInfo)
	})
	goVersion := "unknown"
	if bi, ok := debug.ReadBuildInfo(); ok {
		goVersion = bi.GoVersion
		if commit == "" || commit == "dev" {
			commit = vcsRevision(bi)
		}
	}
	buildInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

func vcsRevision(bi *debug.BuildInfo) string {
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 12 {
				return s.Value[:12]
			}
			return s.Value
		}
	}
	return "dev"
}
