// Package metrics owns the Prometheus registry the resolver binaries expose.
package metrics

import (
	"fmt"
	"net/http"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/geo-resolver/internal/core/observability"
)

type BuildInfo struct {
	Version   string
	Revision  string
	Branch    string
	BuildDate string
}

// BuildFromEnv completes version with the labels set by the build pipeline.
func BuildFromEnv(version string) BuildInfo {
	return BuildInfo{
		Version:   version,
		Revision:  os.Getenv("BUILD_REVISION"),
		Branch:    os.Getenv("BUILD_BRANCH"),
		BuildDate: os.Getenv("BUILD_DATE"),
	}
}

// Provider is a registry holding runtime collectors, build info and the
// resolver instruments.
type Provider struct {
	reg *prometheus.Registry
}

func New(build BuildInfo) (*Provider, error) {
	reg := prometheus.NewRegistry()

	if build.Version == "" {
		build.Version = "dev"
	}
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "georesolver_build_info",
		Help: "Build information of the running binary; value is always 1.",
		ConstLabels: prometheus.Labels{
			"version":    build.Version,
			"revision":   build.Revision,
			"branch":     build.Branch,
			"build_date": build.BuildDate,
			"go_version": runtime.Version(),
		},
	})
	info.Set(1)

	cs := []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		info,
	}
	cs = append(cs, observability.Collectors()...)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return &Provider{reg: reg}, nil
}

// Handler serves the registry and counts its own scrapes.
func (p *Provider) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(p.reg,
		promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{
			Registry:      p.reg,
			ErrorHandling: promhttp.ContinueOnError,
		}))
}

func (p *Provider) Gatherer() prometheus.Gatherer { return p.reg }
