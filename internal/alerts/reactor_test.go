package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/serenai/emotion-ai-platform/internal/inference"
	"github.com/serenai/emotion-ai-platform/internal/risk"
)

type recordingChannel struct {
	mu      sync.Mutex
	alerts  []Alert
	failErr error
}

func (c *recordingChannel) Notify(_ context.Context, a Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.alerts = append(c.alerts, a)
	return c.failErr
}

func (c *recordingChannel) received() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

func highRiskEvent(t *testing.T) risk.Event {
	t.Helper()
	return risk.NewEvent("user-1", "me siento muy mal", inference.Assessment{
		Emotion:        "ansiedad",
		Intensity:      9,
		RiskLevel:      "alto",
		Recommendation: "buscar ayuda profesional",
	})
}

func TestReactCreatesCriticalAlert(t *testing.T) {
	channel := &recordingChannel{}
	reactor := NewReactor(channel, nil, nil)

	if err := reactor.React(highRiskEvent(t)); err != nil {
		t.Fatalf("React returned error: %v", err)
	}

	pending := reactor.PendingAlerts()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending alert, got %d", len(pending))
	}
	alert := pending[0]
	if alert.Severity != SeverityCritical {
		t.Errorf("expected severity CRITICAL, got %s", alert.Severity)
	}
	if alert.Status != StatusPending {
		t.Errorf("expected status pending, got %s", alert.Status)
	}
	if alert.SubjectID != "user-1" {
		t.Errorf("unexpected subject id %q", alert.SubjectID)
	}
	if alert.Emotion != "ansiedad" || alert.Intensity != 9 {
		t.Errorf("alert did not copy event fields: %+v", alert)
	}
	if alert.ResolvedAt != nil {
		t.Error("new alert must not carry a resolution timestamp")
	}
	if got := channel.received(); len(got) != 1 {
		t.Fatalf("expected channel notification, got %d", len(got))
	}
}

func TestReactIgnoresLowRiskEvents(t *testing.T) {
	channel := &recordingChannel{}
	reactor := NewReactor(channel, nil, nil)

	event := risk.NewEvent("user-2", "todo bien", inference.Assessment{
		Emotion:   "alegría",
		Intensity: 3,
		RiskLevel: "no",
	})
	if err := reactor.React(event); err != nil {
		t.Fatalf("React returned error: %v", err)
	}
	if got := len(reactor.PendingAlerts()); got != 0 {
		t.Fatalf("expected no alerts, got %d", got)
	}
	if got := channel.received(); len(got) != 0 {
		t.Fatalf("expected no notifications, got %d", len(got))
	}
}

func TestSeverityHighWithoutHighRiskFlag(t *testing.T) {
	reactor := NewReactor(nil, nil, nil)

	// Intensity 7 alerts but is not high risk, so severity stays HIGH.
	event := risk.NewEvent("user-3", "estoy estresado", inference.Assessment{
		Emotion:   "estrés",
		Intensity: 7,
		RiskLevel: "no",
	})
	if err := reactor.React(event); err != nil {
		t.Fatalf("React returned error: %v", err)
	}
	pending := reactor.PendingAlerts()
	if len(pending) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(pending))
	}
	if pending[0].Severity != SeverityHigh {
		t.Errorf("expected severity HIGH, got %s", pending[0].Severity)
	}
}

func TestChannelFailureDoesNotPropagate(t *testing.T) {
	channel := &recordingChannel{failErr: errors.New("smtp down")}
	reactor := NewReactor(channel, nil, nil)

	if err := reactor.React(highRiskEvent(t)); err != nil {
		t.Fatalf("channel failure must not propagate, got %v", err)
	}
	if got := len(reactor.PendingAlerts()); got != 1 {
		t.Fatalf("alert must be stored even when notification fails, got %d", got)
	}
}

func TestResolveAlert(t *testing.T) {
	reactor := NewReactor(nil, nil, nil)
	if err := reactor.React(highRiskEvent(t)); err != nil {
		t.Fatalf("React returned error: %v", err)
	}
	pending := reactor.PendingAlerts()
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending alert, got %d", len(pending))
	}

	reactor.Resolve(pending[0].ID)
	if got := len(reactor.PendingAlerts()); got != 0 {
		t.Fatalf("expected no pending alerts after resolve, got %d", got)
	}

	// Resolving again is a silent no-op.
	reactor.Resolve(pending[0].ID)
}

func TestResolveUnknownIDIsNoOp(t *testing.T) {
	reactor := NewReactor(nil, nil, nil)
	if err := reactor.React(highRiskEvent(t)); err != nil {
		t.Fatalf("React returned error: %v", err)
	}

	reactor.Resolve("alert_does_not_exist")
	if got := len(reactor.PendingAlerts()); got != 1 {
		t.Fatalf("unknown id must leave alerts unchanged, got %d pending", got)
	}
}

func TestPendingAlertsCreationOrder(t *testing.T) {
	reactor := NewReactor(nil, nil, nil)
	for i := 0; i < 3; i++ {
		if err := reactor.React(highRiskEvent(t)); err != nil {
			t.Fatalf("React returned error: %v", err)
		}
	}
	pending := reactor.PendingAlerts()
	if len(pending) != 3 {
		t.Fatalf("expected 3 alerts, got %d", len(pending))
	}
	for i := 1; i < len(pending); i++ {
		if pending[i].CreatedAt.Before(pending[i-1].CreatedAt) {
			t.Errorf("alerts out of creation order at index %d", i)
		}
	}
	seen := map[string]bool{}
	for _, a := range pending {
		if seen[a.ID] {
			t.Errorf("duplicate alert id %q", a.ID)
		}
		seen[a.ID] = true
	}
}

func TestConcurrentReactAndResolve(t *testing.T) {
	reactor := NewReactor(nil, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = reactor.React(highRiskEvent(t))
				reactor.Resolve("alert_unknown")
			}
		}()
	}
	wg.Wait()

	if got := len(reactor.PendingAlerts()); got != 160 {
		t.Fatalf("expected 160 pending alerts, got %d", got)
	}
}
