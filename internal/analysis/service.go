// Package analysis orchestrates the emotional-risk pipeline: inference,
// event publication, empathetic response and the operator surfaces built on
// top of them.
package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/serenai/emotion-ai-platform/internal/alerts"
	"github.com/serenai/emotion-ai-platform/internal/audit"
	"github.com/serenai/emotion-ai-platform/internal/conversation"
	"github.com/serenai/emotion-ai-platform/internal/inference"
	"github.com/serenai/emotion-ai-platform/internal/observability/metrics"
	"github.com/serenai/emotion-ai-platform/internal/risk"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

const (
	genericErrorResponse    = "Lo siento, ocurrió un error al procesar tu mensaje."
	fallbackSupportResponse = "Estoy aquí para apoyarte. ¿Cómo te puedo ayudar?"
)

// EmotionAnalysis is the caller-facing view of an assessment.
type EmotionAnalysis struct {
	Emotion        string `json:"emotion"`
	Intensity      int    `json:"intensity"`
	RiskLevel      string `json:"risk_level"`
	Recommendation string `json:"recommendation"`
}

// Result is the outcome of one analysis request. A failed analysis still
// carries a supportive response so callers always have something to show.
type Result struct {
	Success         bool             `json:"success"`
	Response        string           `json:"response,omitempty"`
	EmotionAnalysis *EmotionAnalysis `json:"emotion_analysis,omitempty"`
	AlertGenerated  bool             `json:"alert_generated"`
	Transcription   string           `json:"transcription,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// Deps wires the pipeline components into the service.
type Deps struct {
	Gateway    *inference.Gateway
	Dispatcher *risk.Dispatcher
	Alerts     *alerts.Reactor
	Trail      *audit.TrailWriter
	History    conversation.Store
	Metrics    *metrics.PipelineMetrics
	Logger     *logging.Logger
}

// Service coordinates the gateway, dispatcher and reactors. Event
// publication happens before response generation, so a failed response never
// suppresses alerting.
type Service struct {
	gateway    *inference.Gateway
	dispatcher *risk.Dispatcher
	alerts     *alerts.Reactor
	trail      *audit.TrailWriter
	history    conversation.Store
	metrics    *metrics.PipelineMetrics
	logger     *logging.Logger
}

func NewService(d Deps) *Service {
	if d.Gateway == nil {
		panic("analysis: gateway cannot be nil")
	}
	if d.Dispatcher == nil {
		panic("analysis: dispatcher cannot be nil")
	}
	if d.Alerts == nil {
		panic("analysis: alert reactor cannot be nil")
	}
	if d.History == nil {
		d.History = conversation.NewMemoryStore()
	}
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	return &Service{
		gateway:    d.Gateway,
		dispatcher: d.Dispatcher,
		alerts:     d.Alerts,
		trail:      d.Trail,
		history:    d.History,
		metrics:    d.Metrics,
		logger:     d.Logger,
	}
}

// AnalyzeText runs the full pipeline for one message: classify, publish the
// event, respond, and record the turns in the conversation history.
func (s *Service) AnalyzeText(ctx context.Context, subjectID, text string) (result Result) {
	// A panicking provider SDK or store must not escape the pipeline; the
	// caller always gets a failure Result.
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("analysis panicked", "panic", r)
			result = Result{
				Success:  false,
				Error:    "no se pudo analizar el mensaje",
				Response: genericErrorResponse,
			}
		}
	}()

	recent, err := s.history.Recent(ctx, subjectID, 10)
	if err != nil {
		// Degraded context, not a failed request.
		s.logger.Warn("history load failed", "error", err)
		recent = nil
	}

	start := time.Now()
	assessment, err := s.gateway.Classify(ctx, text, recent)
	s.observeInference("classify", err, start)
	if err != nil {
		s.logger.Error("classification failed", "error", err)
		return Result{
			Success:  false,
			Error:    "no se pudo analizar el mensaje",
			Response: genericErrorResponse,
		}
	}

	event := risk.NewEvent(subjectID, text, assessment)
	s.dispatcher.Publish(event)

	start = time.Now()
	response, err := s.gateway.Respond(ctx, text, assessment, recent)
	s.observeInference("respond", err, start)
	if err != nil {
		s.logger.Warn("response generation failed, using recommendation", "error", err)
		response = assessment.Recommendation
		if response == "" {
			response = fallbackSupportResponse
		}
	}

	if err := s.history.Append(ctx, subjectID,
		inference.ChatMessage{Role: inference.ChatRoleUser, Content: text},
		inference.ChatMessage{Role: inference.ChatRoleAssistant, Content: response},
	); err != nil {
		s.logger.Warn("history append failed", "error", err)
	}

	s.logger.Info("message processed",
		"emotion", event.Emotion,
		"intensity", event.Intensity,
		"risk_level", string(event.RiskLevel),
		"alert_generated", event.RequiresAlert(),
	)

	return Result{
		Success:  true,
		Response: response,
		EmotionAnalysis: &EmotionAnalysis{
			Emotion:        event.Emotion,
			Intensity:      event.Intensity,
			RiskLevel:      string(event.RiskLevel),
			Recommendation: event.Recommendation,
		},
		AlertGenerated: event.RequiresAlert(),
	}
}

// AnalyzeAudio transcribes the audio and, when a transcription comes back,
// runs the text pipeline on it. A failed or empty transcription skips
// classification entirely.
func (s *Service) AnalyzeAudio(ctx context.Context, subjectID string, audio []byte, filename string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("audio analysis panicked", "panic", r)
			result = Result{
				Success:  false,
				Error:    "no se pudo transcribir el audio",
				Response: genericErrorResponse,
			}
		}
	}()

	start := time.Now()
	transcription, err := s.gateway.Transcribe(ctx, audio, filename)
	s.observeInference("transcribe", err, start)
	if err != nil {
		s.logger.Error("transcription failed", "error", err)
		return Result{Success: false, Error: "no se pudo transcribir el audio"}
	}
	if transcription == "" {
		return Result{Success: false, Error: "no se pudo transcribir el audio"}
	}

	result = s.AnalyzeText(ctx, subjectID, transcription)
	result.Transcription = transcription
	return result
}

// History returns the subject's recent emotional events, oldest first.
func (s *Service) History(subjectID string, limit int) []risk.Summary {
	events := s.dispatcher.History(subjectID, limit)
	summaries := make([]risk.Summary, 0, len(events))
	for _, e := range events {
		summaries = append(summaries, e.Summarize())
	}
	return summaries
}

// HighRiskHistory returns only the subject's high-risk events.
func (s *Service) HighRiskHistory(subjectID string) []risk.Summary {
	events := s.dispatcher.HighRiskHistory(subjectID)
	summaries := make([]risk.Summary, 0, len(events))
	for _, e := range events {
		summaries = append(summaries, e.Summarize())
	}
	return summaries
}

// PendingAlerts returns unresolved alerts in creation order.
func (s *Service) PendingAlerts() []alerts.Alert {
	return s.alerts.PendingAlerts()
}

// ResolveAlert marks an alert as handled. Unknown ids are no-ops.
func (s *Service) ResolveAlert(alertID string) {
	s.alerts.Resolve(alertID)
}

// Statistics aggregates the audit trail over a trailing window of days.
func (s *Service) Statistics(windowDays int) (audit.Statistics, error) {
	if s.trail == nil {
		return audit.Statistics{}, fmt.Errorf("analysis: audit trail not configured")
	}
	return s.trail.Statistics(windowDays)
}

func (s *Service) observeInference(operation string, err error, start time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.ObserveInference(operation, status, time.Since(start).Seconds())
}
