// Package metrics wires the Prometheus collectors exposed at /metrics.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
)

// Registry groups the server's collectors behind one Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	PingsForwarded  prometheus.Counter
	PingsDropped    prometheus.Counter
	DecodeErrors    prometheus.Counter
	Players         prometheus.Gauge
}

// NewRegistry creates all collectors on a private registry, so tests can
// build as many as they like without duplicate-registration panics.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chisel_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status code",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "code"}),
		PingsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chisel_ws_pings_forwarded_total",
			Help: "Ping frames fanned out to subscribers",
		}),
		PingsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chisel_ws_pings_dropped_total",
			Help: "Ping frames dropped by the rate limiter or full queues",
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chisel_ws_decode_errors_total",
			Help: "Inbound frames that failed to decode",
		}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chisel_players_connected",
			Help: "Currently attached WebSocket sessions",
		}),
	}
	reg.MustRegister(
		r.RequestDuration,
		r.PingsForwarded,
		r.PingsDropped,
		r.DecodeErrors,
		r.Players,
		collectors.NewGoCollector(),
		newProcessCollector(),
	)
	return r
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Middleware records request latency. Route comes from the matched mux
// pattern so the label set stays bounded.
func (r *Registry) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, req)
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		r.RequestDuration.
			WithLabelValues(req.Method, route, strconv.Itoa(rec.code)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the wrapped writer so WebSocket upgrades keep working
// behind the middleware.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}

// processCollector samples this process's CPU and memory via gopsutil.
type processCollector struct {
	proc *process.Process
	cpu  *prometheus.Desc
	rss  *prometheus.Desc
}

func newProcessCollector() *processCollector {
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &processCollector{
		proc: proc,
		cpu:  prometheus.NewDesc("chisel_process_cpu_percent", "Process CPU utilization percent", nil, nil),
		rss:  prometheus.NewDesc("chisel_process_memory_rss_bytes", "Process resident memory in bytes", nil, nil),
	}
}

func (c *processCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.cpu
	ch <- c.rss
}

func (c *processCollector) Collect(ch chan<- prometheus.Metric) {
	if c.proc == nil {
		return
	}
	if cpu, err := c.proc.CPUPercent(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.cpu, prometheus.GaugeValue, cpu)
	}
	if mem, err := c.proc.MemoryInfo(); err == nil {
		ch <- prometheus.MustNewConstMetric(c.rss, prometheus.GaugeValue, float64(mem.RSS))
	}
}
