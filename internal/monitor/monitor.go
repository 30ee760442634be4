package monitor

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/op/go-logging.v1"

	"cipherline/internal/domain"
	"cipherline/internal/instrument"
	"cipherline/internal/worker"
)

// Thresholds is the alert table. A sample value at or above a threshold
// raises one alert.
type Thresholds struct {
	FailedLogins   uint64
	FailedRequests uint64
	Connections    int
	Memory         float64
	CPU            float64
}

// DefaultThresholds returns 5 failed logins, 100 failed requests, 1000
// connections, 90% memory and 80% CPU.
func DefaultThresholds() Thresholds {
	return Thresholds{FailedLogins: 5, FailedRequests: 100, Connections: 1000, Memory: 0.9, CPU: 0.8}
}

// Config configures a Monitor.
type Config struct {
	CheckInterval          time.Duration
	RetentionPeriod        time.Duration
	RetentionSweepInterval time.Duration
	Thresholds             Thresholds
}

// Gauges are read-only views of live relay state.
type Gauges struct {
	Connections func() int
	Sessions    func() int
}

// Monitor samples health and raises alerts.
type Monitor struct {
	worker.Worker

	cfg       Config
	store     domain.EventStore
	metrics   *instrument.Metrics
	gauges    Gauges
	resources ResourceSampler
	log       *logging.Logger
	now       func() time.Time

	mu           sync.Mutex
	lastLogins   uint64
	lastRequests uint64
	subscribers  []chan domain.Alert
}

// New returns a Monitor. resources may be nil, in which case memory and CPU
// are reported as zero.
func New(cfg Config, store domain.EventStore, metrics *instrument.Metrics, gauges Gauges, resources ResourceSampler, log *logging.Logger) *Monitor {
	return &Monitor{
		cfg:          cfg,
		store:        store,
		metrics:      metrics,
		gauges:       gauges,
		resources:    resources,
		log:          log,
		now:          time.Now,
		lastLogins:   metrics.FailedLogins(),
		lastRequests: metrics.FailedRequests(),
	}
}

// Start launches the sampling and retention workers. Stop them with Halt.
func (m *Monitor) Start() {
	m.Every(m.cfg.CheckInterval, func(time.Time) {
		if _, _, err := m.Sample(); err != nil {
			m.log.Errorf("Failed to collect metrics: %v", err)
		}
	})
	m.Every(m.cfg.RetentionSweepInterval, func(time.Time) {
		if _, err := m.Prune(); err != nil {
			m.log.Errorf("Failed to prune monitoring data: %v", err)
		}
	})
	m.log.Noticef("Monitoring every %v, retaining %v", m.cfg.CheckInterval, m.cfg.RetentionPeriod)
}

// Subscribe returns a channel receiving every alert raised from now on.
// Alerts are dropped for subscribers that fall behind.
func (m *Monitor) Subscribe(buffer int) <-chan domain.Alert {
	ch := make(chan domain.Alert, buffer)
	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()
	return ch
}

// Sample takes one snapshot, stores it, and raises any alerts it trips.
func (m *Monitor) Sample() (domain.MetricSample, []domain.Alert, error) {
	now := m.now()

	m.mu.Lock()
	logins, requests := m.metrics.FailedLogins(), m.metrics.FailedRequests()
	recentLogins, recentRequests := logins-m.lastLogins, requests-m.lastRequests
	m.lastLogins, m.lastRequests = logins, requests
	m.mu.Unlock()

	s := domain.MetricSample{
		Timestamp:      now,
		FailedLogins:   recentLogins,
		FailedRequests: recentRequests,
	}
	if m.gauges.Connections != nil {
		s.ActiveConnections = m.gauges.Connections()
	}
	if m.gauges.Sessions != nil {
		s.ActiveSessions = m.gauges.Sessions()
	}
	if m.resources != nil {
		mem, cpu, err := m.resources.Usage()
		if err != nil {
			m.log.Warningf("Failed to read resource usage: %v", err)
		} else {
			s.MemoryUsage, s.CPUUsage = mem, cpu
		}
	}
	if size, err := m.store.Size(); err == nil {
		s.StorageBytes = size
	}

	if err := m.store.AppendSample(s); err != nil {
		return s, nil, err
	}

	alerts := Evaluate(s, m.cfg.Thresholds)
	for i := range alerts {
		alerts[i].Timestamp = now
		id, err := m.store.AppendAlert(alerts[i])
		if err != nil {
			return s, alerts, err
		}
		alerts[i].ID = id
		m.emit(alerts[i])
	}
	return s, alerts, nil
}

// Evaluate applies the threshold table to s.
func Evaluate(s domain.MetricSample, t Thresholds) []domain.Alert {
	var out []domain.Alert
	if s.FailedLogins >= t.FailedLogins {
		out = append(out, domain.Alert{
			Kind:     domain.AlertLoginFailure,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("High number of failed login attempts: %d", s.FailedLogins),
		})
	}
	if s.FailedRequests >= t.FailedRequests {
		out = append(out, domain.Alert{
			Kind:     domain.AlertRateLimitExceeded,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("High number of failed requests: %d", s.FailedRequests),
		})
	}
	if s.ActiveConnections >= t.Connections {
		out = append(out, domain.Alert{
			Kind:     domain.AlertSuspiciousActivity,
			Severity: domain.SeverityHigh,
			Message:  fmt.Sprintf("High number of concurrent connections: %d", s.ActiveConnections),
		})
	}
	if s.MemoryUsage >= t.Memory {
		out = append(out, domain.Alert{
			Kind:     domain.AlertResourceUsage,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("High memory usage: %.1f%%", s.MemoryUsage*100),
		})
	}
	if s.CPUUsage >= t.CPU {
		out = append(out, domain.Alert{
			Kind:     domain.AlertResourceUsage,
			Severity: domain.SeverityMedium,
			Message:  fmt.Sprintf("High CPU usage: %.1f%%", s.CPUUsage*100),
		})
	}
	return out
}

// Resolve marks an alert handled.
func (m *Monitor) Resolve(id uint64) error {
	return m.store.ResolveAlert(id)
}

// Prune removes data older than the retention period.
func (m *Monitor) Prune() (int, error) {
	n, err := m.store.Prune(m.now().Add(-m.cfg.RetentionPeriod))
	if err == nil && n > 0 {
		m.log.Infof("Pruned %d monitoring records", n)
	}
	return n, err
}

// RecordEvent implements domain.EventSink. Sensitive fields, including the
// source address, are hashed before the event is stored.
func (m *Monitor) RecordEvent(e domain.SecurityEvent) {
	e.Details = Anonymize(e.Details)
	if e.Address != "" {
		e.Address = hashValue(e.Address)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = m.now()
	}
	if err := m.store.AppendEvent(e); err != nil {
		m.log.Errorf("Failed to record security event %s: %v", e.Type, err)
	}
}

func (m *Monitor) emit(a domain.Alert) {
	m.metrics.Alert(string(a.Kind), string(a.Severity))
	switch a.Severity {
	case domain.SeverityHigh:
		m.log.Errorf("Security alert [%s]: %s", a.Kind, a.Message)
	default:
		m.log.Warningf("Security alert [%s]: %s", a.Kind, a.Message)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- a:
		default:
		}
	}
}

var _ domain.EventSink = (*Monitor)(nil)
