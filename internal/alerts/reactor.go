// Package alerts escalates high-risk events into severity-graded, stateful
// alert records.
package alerts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/serenai/emotion-ai-platform/internal/observability/metrics"
	"github.com/serenai/emotion-ai-platform/internal/risk"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

// Severity grades an alert.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

const (
	StatusPending  = "pending"
	StatusResolved = "resolved"
)

// Alert is derived from exactly one event whose RequiresAlert is true. It is
// self-contained: it copies what it needs from the source event so it stays
// meaningful even if the event history is discarded.
type Alert struct {
	ID             string     `json:"alert_id"`
	SubjectID      string     `json:"subject_id"`
	Severity       Severity   `json:"severity"`
	Status         string     `json:"status"`
	Emotion        string     `json:"emotion"`
	Intensity      int        `json:"intensity"`
	RiskLevel      risk.Level `json:"risk_level"`
	Recommendation string     `json:"recommendation"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

// Reactor subscribes to the dispatcher and owns the alert collection. It is
// the sole mutator of alert status.
type Reactor struct {
	mu      sync.Mutex
	alerts  []Alert
	channel NotificationChannel
	logger  *logging.Logger
	metrics *metrics.PipelineMetrics
}

// NewReactor creates an alert reactor. channel may be nil; the no-op channel
// is used then.
func NewReactor(channel NotificationChannel, logger *logging.Logger, m *metrics.PipelineMetrics) *Reactor {
	if channel == nil {
		channel = NoopChannel{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Reactor{
		channel: channel,
		logger:  logger,
		metrics: m,
	}
}

func (r *Reactor) Name() string { return "alerts" }

// React creates an alert when the event requires one. It never returns an
// error for channel failures: the alert record itself is already stored.
func (r *Reactor) React(event risk.Event) error {
	if !event.RequiresAlert() {
		return nil
	}

	alert := Alert{
		ID:             newAlertID(),
		SubjectID:      event.SubjectID,
		Severity:       severityFor(event),
		Status:         StatusPending,
		Emotion:        event.Emotion,
		Intensity:      event.Intensity,
		RiskLevel:      event.RiskLevel,
		Recommendation: event.Recommendation,
		CreatedAt:      event.CreatedAt,
	}

	r.mu.Lock()
	r.alerts = append(r.alerts, alert)
	r.mu.Unlock()

	// No source text in alert logs; these lines reach shared log storage.
	r.logger.Warn("alert generated",
		"alert_id", alert.ID,
		"severity", string(alert.Severity),
		"emotion", alert.Emotion,
		"intensity", alert.Intensity,
	)
	r.metrics.ObserveAlert(string(alert.Severity))

	if alert.Severity == SeverityCritical {
		r.logger.Error("critical alert requires immediate attention",
			"alert_id", alert.ID,
			"recommendation", alert.Recommendation,
		)
	}

	if err := r.channel.Notify(context.Background(), alert); err != nil {
		r.logger.Error("notification channel failed",
			"alert_id", alert.ID,
			"error", err,
		)
	}
	return nil
}

// severityFor evaluates the severity table in order, first match wins. The
// LOW and MEDIUM branches are kept even though the RequiresAlert gate makes
// them unreachable today.
func severityFor(event risk.Event) Severity {
	switch {
	case event.IsHighRisk():
		return SeverityCritical
	case event.Intensity >= 7:
		return SeverityHigh
	case event.Intensity >= 5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// PendingAlerts returns every unresolved alert in creation order.
func (r *Reactor) PendingAlerts() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []Alert
	for _, a := range r.alerts {
		if a.Status == StatusPending {
			pending = append(pending, a)
		}
	}
	return pending
}

// Resolve marks an alert resolved and records when. Unknown ids and already
// resolved alerts are silent no-ops; resolution is one-way.
func (r *Reactor) Resolve(alertID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.alerts {
		if r.alerts[i].ID != alertID {
			continue
		}
		if r.alerts[i].Status == StatusResolved {
			return
		}
		now := time.Now().UTC()
		r.alerts[i].Status = StatusResolved
		r.alerts[i].ResolvedAt = &now
		r.logger.Info("alert resolved", "alert_id", alertID)
		return
	}
}

// newAlertID builds a unique, time-ordered identifier.
func newAlertID() string {
	return fmt.Sprintf("alert_%s_%s",
		time.Now().UTC().Format("20060102T150405.000000000"),
		uuid.NewString()[:8],
	)
}
