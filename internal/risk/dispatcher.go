package risk

import (
	"fmt"
	"sync"

	"github.com/serenai/emotion-ai-platform/internal/observability/metrics"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

// Reactor consumes published events without influencing the publisher's
// control flow. A returned error is logged and isolated by the dispatcher.
type Reactor interface {
	Name() string
	React(event Event) error
}

// Dispatcher is the process-wide fan-out point from "a new event exists" to
// "every registered reactor ran". One instance is constructed at bootstrap
// and shared by every concurrent analysis call.
type Dispatcher struct {
	mu       sync.Mutex
	reactors []Reactor
	history  []Event
	logger   *logging.Logger
	metrics  *metrics.PipelineMetrics
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *logging.Logger, m *metrics.PipelineMetrics) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		logger:  logger,
		metrics: m,
	}
}

// Register adds a reactor to the subscriber set. Registering the same
// reactor twice is a no-op.
func (d *Dispatcher) Register(r Reactor) {
	if r == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.reactors {
		if existing == r {
			return
		}
	}
	d.reactors = append(d.reactors, r)
	d.logger.Info("reactor registered", "reactor", r.Name())
}

// Unregister removes a reactor; unknown reactors are ignored.
func (d *Dispatcher) Unregister(r Reactor) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.reactors {
		if existing == r {
			d.reactors = append(d.reactors[:i], d.reactors[i+1:]...)
			d.logger.Info("reactor unregistered", "reactor", r.Name())
			return
		}
	}
}

// Publish appends the event to the history and delivers it to every
// registered reactor in registration order. A failing reactor never affects
// the others or the caller: Publish itself cannot fail.
func (d *Dispatcher) Publish(event Event) {
	d.mu.Lock()
	d.history = append(d.history, event)
	reactors := make([]Reactor, len(d.reactors))
	copy(reactors, d.reactors)
	d.mu.Unlock()

	d.logger.Info("risk event published",
		"subject_id", event.SubjectID,
		"emotion", event.Emotion,
		"intensity", event.Intensity,
		"risk_level", string(event.RiskLevel),
		"high_risk", event.IsHighRisk(),
	)
	d.metrics.ObserveEvent(event.Emotion, string(event.RiskLevel))

	for _, r := range reactors {
		d.deliver(r, event)
	}
}

// deliver runs one reactor, converting panics and errors into log entries.
func (d *Dispatcher) deliver(r Reactor, event Event) {
	defer func() {
		if rec := recover(); rec != nil {
			d.metrics.ObserveReactorFailure(r.Name())
			d.logger.Error("reactor panicked",
				"reactor", r.Name(),
				"panic", fmt.Sprint(rec),
			)
		}
	}()

	if err := r.React(event); err != nil {
		d.metrics.ObserveReactorFailure(r.Name())
		d.logger.Error("reactor failed",
			"reactor", r.Name(),
			"error", err,
		)
	}
}

// History returns up to limit most recent events in chronological order,
// optionally filtered by subject. limit <= 0 means unbounded.
func (d *Dispatcher) History(subjectID string, limit int) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	var filtered []Event
	for _, e := range d.history {
		if subjectID != "" && e.SubjectID != subjectID {
			continue
		}
		filtered = append(filtered, e)
	}
	if limit > 0 && len(filtered) > limit {
		filtered = filtered[len(filtered)-limit:]
	}
	out := make([]Event, len(filtered))
	copy(out, filtered)
	return out
}

// HighRiskHistory returns every high-risk event, optionally filtered by
// subject, in chronological order.
func (d *Dispatcher) HighRiskHistory(subjectID string) []Event {
	events := d.History(subjectID, 0)
	out := events[:0]
	for _, e := range events {
		if e.IsHighRisk() {
			out = append(out, e)
		}
	}
	return out
}
