package notify

import (
	"context"
	"testing"
)

func TestNewSendGridSenderRequiresAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{}, nil); sender != nil {
		t.Fatal("expected nil sender without api key")
	}
}

func TestNewSendGridSenderDefaults(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{
		APIKey:    "SG.test",
		FromEmail: "alerts@example.com",
	}, nil)
	if sender == nil {
		t.Fatal("expected sender")
	}
	if sender.fromName != "SerenAI Alerts" {
		t.Fatalf("expected default from name, got %q", sender.fromName)
	}
}

func TestStubEmailSenderNeverFails(t *testing.T) {
	sender := NewStubEmailSender(nil)
	err := sender.Send(context.Background(), EmailMessage{
		To:      "oncall@example.com",
		Subject: "critical alert",
		Body:    "severity CRITICAL",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
