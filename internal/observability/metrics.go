package observability

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/yungbote/companysync-backend/internal/platform/logger"
)

// Metrics holds every collector the pipeline reports. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	phaseDuration *prometheus.HistogramVec

	reconcileBatches    *prometheus.CounterVec
	reconcileCandidates prometheus.Counter
	reconcileMatches    prometheus.Counter

	companiesInserted prometheus.Counter

	mediaImages   *prometheus.CounterVec
	mediaEntities *prometheus.CounterVec

	classifyImages   *prometheus.CounterVec
	classifyDuration *prometheus.HistogramVec
	classifyEntities *prometheus.CounterVec

	llmRequests *prometheus.CounterVec
	llmLatency  *prometheus.HistogramVec
	llmTokens   *prometheus.CounterVec

	apifyRequests *prometheus.CounterVec
	ingestImages  *prometheus.CounterVec

	storageBootstrap *prometheus.CounterVec

	dbStats *prometheus.GaugeVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

// Current returns the process-wide metrics, or nil when Init was never enabled.
func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics once. force bypasses METRICS_ENABLED.
func Init(log *logger.Logger, force bool) *Metrics {
	if !force && !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = New()
		if log != nil {
			log.Info("Metrics initialized")
		}
	})
	return instance
}

// New builds an isolated Metrics on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		phaseDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cs_phase_duration_seconds",
			Help:    "Pipeline phase duration in seconds by phase/status.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
		}, []string{"phase", "status"}),
		reconcileBatches: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_reconcile_batches_total",
			Help: "Reconciliation batches by status.",
		}, []string{"status"}),
		reconcileCandidates: f.NewCounter(prometheus.CounterOpts{
			Name: "cs_reconcile_candidates_total",
			Help: "Candidate names fed to reconciliation.",
		}),
		reconcileMatches: f.NewCounter(prometheus.CounterOpts{
			Name: "cs_reconcile_matches_total",
			Help: "Candidate names matched to a canonical record.",
		}),
		companiesInserted: f.NewCounter(prometheus.CounterOpts{
			Name: "cs_companies_inserted_total",
			Help: "Company rows inserted by the migration writer.",
		}),
		mediaImages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_media_images_total",
			Help: "Media objects handled by image type/status.",
		}, []string{"image_type", "status"}),
		mediaEntities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_media_entities_total",
			Help: "Entities processed by the media pool by status.",
		}, []string{"status"}),
		classifyImages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_classify_images_total",
			Help: "Classified images by outcome.",
		}, []string{"outcome"}),
		classifyDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cs_classify_image_duration_seconds",
			Help:    "Per-image classification wall time by outcome.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90},
		}, []string{"outcome"}),
		classifyEntities: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_classify_entities_total",
			Help: "Entities visited by the classification loop by completion status.",
		}, []string{"status"}),
		llmRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_llm_requests_total",
			Help: "Model API requests by model/endpoint/status.",
		}, []string{"model", "endpoint", "status"}),
		llmLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cs_llm_request_duration_seconds",
			Help:    "Model API latency in seconds by model/endpoint/status.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		}, []string{"model", "endpoint", "status"}),
		llmTokens: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_llm_tokens_total",
			Help: "Model tokens by model/kind.",
		}, []string{"model", "kind"}),
		apifyRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_apify_requests_total",
			Help: "Scraping actor API requests by endpoint/status.",
		}, []string{"endpoint", "status"}),
		ingestImages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_ingest_images_total",
			Help: "Scraped images downloaded and uploaded by status.",
		}, []string{"status"}),
		storageBootstrap: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cs_object_storage_bootstrap_total",
			Help: "Object storage client bootstraps by mode/status/error code.",
		}, []string{"mode", "status", "code"}),
		dbStats: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cs_db_pool",
			Help: "database/sql pool statistics.",
		}, []string{"stat"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves /metrics on addr until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) ObservePhase(phase, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(labelOr(phase, "unknown"), labelOr(status, "unknown")).Observe(dur.Seconds())
}

func (m *Metrics) ObserveReconcileBatch(status string, candidates, matches int) {
	if m == nil {
		return
	}
	m.reconcileBatches.WithLabelValues(labelOr(status, "unknown")).Inc()
	m.reconcileCandidates.Add(float64(candidates))
	m.reconcileMatches.Add(float64(matches))
}

func (m *Metrics) AddCompaniesInserted(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.companiesInserted.Add(float64(n))
}

func (m *Metrics) IncMediaImage(imageType, status string) {
	if m == nil {
		return
	}
	m.mediaImages.WithLabelValues(labelOr(imageType, "unknown"), labelOr(status, "unknown")).Inc()
}

func (m *Metrics) IncMediaEntity(status string) {
	if m == nil {
		return
	}
	m.mediaEntities.WithLabelValues(labelOr(status, "unknown")).Inc()
}

func (m *Metrics) ObserveClassification(outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	outcome = labelOr(outcome, "unknown")
	m.classifyImages.WithLabelValues(outcome).Inc()
	if dur > 0 {
		m.classifyDuration.WithLabelValues(outcome).Observe(dur.Seconds())
	}
}

func (m *Metrics) IncClassifyEntity(status string) {
	if m == nil {
		return
	}
	m.classifyEntities.WithLabelValues(labelOr(status, "unknown")).Inc()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	model = labelOr(model, "unknown")
	endpoint = labelOr(endpoint, "unknown")
	status = labelOr(status, "0")
	m.llmRequests.WithLabelValues(model, endpoint, status).Inc()
	if dur > 0 {
		m.llmLatency.WithLabelValues(model, endpoint, status).Observe(dur.Seconds())
	}
	if inputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmTokens.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

func (m *Metrics) IncApifyRequest(endpoint, status string) {
	if m == nil {
		return
	}
	m.apifyRequests.WithLabelValues(labelOr(endpoint, "unknown"), labelOr(status, "0")).Inc()
}

func (m *Metrics) IncIngestImage(status string) {
	if m == nil {
		return
	}
	m.ingestImages.WithLabelValues(labelOr(status, "unknown")).Inc()
}

func (m *Metrics) ObserveStorageBootstrap(mode, status, code string) {
	if m == nil {
		return
	}
	m.storageBootstrap.WithLabelValues(labelOr(mode, "unknown"), labelOr(status, "unknown"), labelOr(code, "none")).Inc()
}

// StartPostgresCollector samples the connection pool every interval until ctx is done.
func (m *Metrics) StartPostgresCollector(ctx context.Context, log *logger.Logger, db *gorm.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: postgres stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.WithLabelValues("open_connections").Set(float64(stats.OpenConnections))
				m.dbStats.WithLabelValues("in_use").Set(float64(stats.InUse))
				m.dbStats.WithLabelValues("idle").Set(float64(stats.Idle))
				m.dbStats.WithLabelValues("wait_count").Set(float64(stats.WaitCount))
				m.dbStats.WithLabelValues("wait_duration_seconds").Set(stats.WaitDuration.Seconds())
			}
		}
	}()
}

func labelOr(v, def string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return def
	}
	return v
}
