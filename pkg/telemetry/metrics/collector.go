package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus registry and every vault metric. A nil
// *Collector is valid and records nothing, so call sites never need an
// enabled check.
//
// Metrics:
//   - ganymede_operations_total: operations by name and outcome
//   - ganymede_operation_duration_seconds: end-to-end operation duration
//   - ganymede_lock_wait_seconds: time spent waiting for the vault lock
//   - ganymede_step_duration_seconds: duration of individual operation steps
//   - ganymede_credentials: managed credential count
//   - ganymede_credentials_awaiting_revocation: rotated credentials whose
//     previous blob is still retained
//   - ganymede_orphaned_blobs: blobs in the credstore no credential references
//   - ganymede_bound_services: services with at least one binding
//   - ganymede_audit_entries: ledger length
//   - ganymede_audit_chain_valid: 1 while the hash chain verifies, else 0
type Collector struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	lockWait          prometheus.Histogram
	stepDuration      *prometheus.HistogramVec

	credentials        prometheus.Gauge
	awaitingRevocation prometheus.Gauge
	orphanedBlobs      prometheus.Gauge
	boundServices      prometheus.Gauge
	auditEntries       prometheus.Gauge
	auditChainValid    prometheus.Gauge
}

// Inventory is a point-in-time count of managed state, set by the
// maintenance sweep and the health command.
type Inventory struct {
	Credentials        int
	AwaitingRevocation int
	OrphanedBlobs      int
	BoundServices      int
}

// NewCollector creates a collector and registers all vault metrics with the
// provided registry. If registry is nil, a fresh one is created.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,

		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ganymede",
				Name:      "operations_total",
				Help:      "Total vault operations by name and outcome",
			},
			[]string{"operation", "outcome"},
		),

		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ganymede",
				Name:      "operation_duration_seconds",
				Help:      "End-to-end duration of vault operations in seconds",
				// Local file and exec work: single-digit milliseconds
				// to oracle round-trips of a few seconds.
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		lockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ganymede",
				Name:      "lock_wait_seconds",
				Help:      "Time spent waiting to acquire the vault lock in seconds",
				Buckets:   []float64{0.0001, 0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
			},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ganymede",
				Name:      "step_duration_seconds",
				Help:      "Duration of individual operation steps in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
			},
			[]string{"operation", "step"},
		),

		credentials: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "credentials",
			Help:      "Number of managed credentials",
		}),

		awaitingRevocation: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "credentials_awaiting_revocation",
			Help:      "Rotated credentials whose previous blob is still retained",
		}),

		orphanedBlobs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "orphaned_blobs",
			Help:      "Blobs in the credstore not referenced by any credential",
		}),

		boundServices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "bound_services",
			Help:      "Services with at least one credential binding",
		}),

		auditEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "audit_entries",
			Help:      "Number of entries in the audit ledger",
		}),

		auditChainValid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ganymede",
			Name:      "audit_chain_valid",
			Help:      "Whether the audit hash chain verifies (1) or not (0)",
		}),
	}

	registry.MustRegister(
		c.operationsTotal,
		c.operationDuration,
		c.lockWait,
		c.stepDuration,
		c.credentials,
		c.awaitingRevocation,
		c.orphanedBlobs,
		c.boundServices,
		c.auditEntries,
		c.auditChainValid,
	)

	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveOperation records one completed operation.
func (c *Collector) ObserveOperation(operation, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.operationsTotal.WithLabelValues(operation, outcome).Inc()
	c.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveLockWait records time spent acquiring the vault lock, whether or
// not acquisition succeeded.
func (c *Collector) ObserveLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.lockWait.Observe(d.Seconds())
}

// ObserveStep records one operation step's duration.
func (c *Collector) ObserveStep(operation, step string, d time.Duration) {
	if c == nil {
		return
	}
	c.stepDuration.WithLabelValues(operation, step).Observe(d.Seconds())
}

// SetInventory updates the point-in-time state gauges.
func (c *Collector) SetInventory(inv Inventory) {
	if c == nil {
		return
	}
	c.credentials.Set(float64(inv.Credentials))
	c.awaitingRevocation.Set(float64(inv.AwaitingRevocation))
	c.orphanedBlobs.Set(float64(inv.OrphanedBlobs))
	c.boundServices.Set(float64(inv.BoundServices))
}

// SetAuditStats updates the ledger gauges after a verification pass.
func (c *Collector) SetAuditStats(entries uint64, chainValid bool) {
	if c == nil {
		return
	}
	c.auditEntries.Set(float64(entries))
	if chainValid {
		c.auditChainValid.Set(1)
	} else {
		c.auditChainValid.Set(0)
	}
}
