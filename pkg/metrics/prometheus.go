package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"referral_ledger/internal/domain"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

type MetricsCollector struct {
	registry            *prometheus.Registry
	activationsApproved prometheus.Counter
	activationsRejected prometheus.Counter
	withdrawalsApproved prometheus.Counter
	manualCredits       prometheus.Counter
	operationsFailed    *prometheus.CounterVec
	cascadeDuration     prometheus.Histogram
	cascadeLength       prometheus.Histogram
	commissionPaid      prometheus.Counter
	totalUsers          prometheus.Gauge
	activeUsers         prometheus.Gauge
	totalHoldings       prometheus.Gauge
	logger              *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &MetricsCollector{
		registry: registry,
		activationsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "activations_approved_total",
			Help: "Total number of approved activations",
		}),
		activationsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "activations_rejected_total",
			Help: "Total number of rejected activations",
		}),
		withdrawalsApproved: factory.NewCounter(prometheus.CounterOpts{
			Name: "withdrawals_approved_total",
			Help: "Total number of withdrawals marked paid",
		}),
		manualCredits: factory.NewCounter(prometheus.CounterOpts{
			Name: "manual_credits_total",
			Help: "Total number of manual balance credits",
		}),
		operationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "operations_failed_total",
			Help: "Failed operations by operation and error class",
		}, []string{"operation", "reason"}),
		cascadeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascade_duration_seconds",
			Help:    "Time taken to compute and commit a commission cascade",
			Buckets: prometheus.DefBuckets,
		}),
		cascadeLength: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascade_ancestors",
			Help:    "Number of credited ancestors per activation",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 15, 20, 35},
		}),
		commissionPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "commission_paid_total",
			Help: "Sum of commission credited through cascades",
		}),
		totalUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accounts_total",
			Help: "Number of accounts",
		}),
		activeUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accounts_active",
			Help: "Number of activated accounts",
		}),
		totalHoldings: factory.NewGauge(prometheus.GaugeOpts{
			Name: "accounts_holdings",
			Help: "Sum of all account balances",
		}),
		logger: logger,
	}
}

func (m *MetricsCollector) RecordApproval(duration time.Duration, credited int, paid decimal.Decimal) {
	m.activationsApproved.Inc()
	m.cascadeDuration.Observe(duration.Seconds())
	m.cascadeLength.Observe(float64(credited))
	m.commissionPaid.Add(paid.InexactFloat64())
}

func (m *MetricsCollector) RecordRejection() {
	m.activationsRejected.Inc()
}

func (m *MetricsCollector) RecordWithdrawal() {
	m.withdrawalsApproved.Inc()
}

func (m *MetricsCollector) RecordCredit() {
	m.manualCredits.Inc()
}

func (m *MetricsCollector) RecordFailure(operation, reason string) {
	m.operationsFailed.WithLabelValues(operation, reason).Inc()
}

func (m *MetricsCollector) UpdateStats(stats domain.Stats) {
	m.totalUsers.Set(float64(stats.TotalUsers))
	m.activeUsers.Set(float64(stats.ActiveUsers))
	m.totalHoldings.Set(stats.TotalHoldings.InexactFloat64())
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) StartMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		m.logger.Info("Starting metrics server", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Error("Metrics server failed", slog.String("error", err.Error()))
		}
	}()

	return server
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.Info("Metrics collector shutdown complete")
	return nil
}
