package observability

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	grpcprom "github.com/grpc-ecosystem/go-grpc-middleware/providers/prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics owns every Prometheus collector the service exports. Each instance
// has its own registry so tests can build as many as they like.
type Metrics struct {
	registry      *prometheus.Registry
	serverMetrics *grpcprom.ServerMetrics

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	uploadFiles  *prometheus.CounterVec
	uploadBytes  prometheus.Counter
	rejections   *prometheus.CounterVec
	jobs         *prometheus.CounterVec
}

// InitMetrics registers the HTTP, upload, worker and gRPC collectors.
func InitMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		serverMetrics: grpcprom.NewServerMetrics(
			grpcprom.WithServerHandlingTimeHistogram(
				grpcprom.WithHistogramBuckets([]float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10}),
			),
		),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "urbanease",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "urbanease",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),
		uploadFiles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "urbanease",
			Name:      "upload_files_total",
			Help:      "Portfolio files accepted, by content type.",
		}, []string{"content_type"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "urbanease",
			Name:      "upload_bytes_total",
			Help:      "Bytes handed to object storage.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "urbanease",
			Name:      "upload_rejections_total",
			Help:      "Upload batches rejected by the gatekeeper, by reason.",
		}, []string{"reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "urbanease",
			Name:      "thumbnail_jobs_total",
			Help:      "Thumbnail jobs finished, by outcome.",
		}, []string{"outcome"}),
	}

	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.serverMetrics,
		m.httpRequests, m.httpDuration, m.uploadFiles, m.uploadBytes, m.rejections, m.jobs,
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// GetServerMetrics returns the gRPC server metrics
func (m *Metrics) GetServerMetrics() *grpcprom.ServerMetrics { return m.serverMetrics }

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

func (m *Metrics) FileUploaded(contentType string, size int64) {
	m.uploadFiles.WithLabelValues(contentType).Inc()
	m.uploadBytes.Add(float64(size))
}

func (m *Metrics) UploadRejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) JobFinished(outcome string) {
	m.jobs.WithLabelValues(outcome).Inc()
}

// StartMetricsServer serves /metrics and /health on addr until ctx is done.
func StartMetricsServer(ctx context.Context, addr string, m *Metrics, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("starting metrics server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	return srv
}
