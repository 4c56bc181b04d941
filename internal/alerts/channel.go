package alerts

import (
	"context"
	"fmt"

	"github.com/serenai/emotion-ai-platform/internal/notify"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

// NotificationChannel receives severity-graded alert payloads for delivery to
// external systems (paging, email, push). Channel failures are logged by the
// reactor and never affect event processing.
type NotificationChannel interface {
	Notify(ctx context.Context, alert Alert) error
}

// NoopChannel is the default channel: the external paging integration is a
// deferred integration point.
type NoopChannel struct{}

func (NoopChannel) Notify(context.Context, Alert) error { return nil }

// EmailChannel escalates CRITICAL alerts to an operator mailbox.
type EmailChannel struct {
	sender notify.EmailSender
	to     string
	logger *logging.Logger
}

// NewEmailChannel creates an email-backed channel. Returns nil when either
// the sender or the destination address is missing, so callers can fall back
// to NoopChannel.
func NewEmailChannel(sender notify.EmailSender, to string, logger *logging.Logger) *EmailChannel {
	if sender == nil || to == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &EmailChannel{
		sender: sender,
		to:     to,
		logger: logger,
	}
}

// Notify emails CRITICAL alerts; lower severities stay in-process.
func (c *EmailChannel) Notify(ctx context.Context, alert Alert) error {
	if alert.Severity != SeverityCritical {
		return nil
	}

	body := fmt.Sprintf(
		"A critical emotional-risk alert was generated.\n\n"+
			"Alert ID: %s\nEmotion: %s\nIntensity: %d/10\nRisk level: %s\n\nRecommendation: %s\n",
		alert.ID, alert.Emotion, alert.Intensity, alert.RiskLevel, alert.Recommendation,
	)

	err := c.sender.Send(ctx, notify.EmailMessage{
		To:      c.to,
		Subject: fmt.Sprintf("[%s] emotional-risk alert %s", alert.Severity, alert.ID),
		Body:    body,
	})
	if err != nil {
		return fmt.Errorf("alerts: email channel: %w", err)
	}

	c.logger.Info("critical alert escalated by email", "alert_id", alert.ID)
	return nil
}
