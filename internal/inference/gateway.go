package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

const (
	// contextTurns bounds how much prior conversation is sent to the provider.
	contextTurns = 5

	classifyTemperature float32 = 0.3
	classifyMaxTokens   int32   = 500
	respondTemperature  float32 = 0.7
	respondMaxTokens    int32   = 1024

	fallbackRecommendationChars = 200
)

const classifySystemPrompt = `Eres un asistente experto en análisis emocional y salud mental.
Analiza el texto del usuario y proporciona:
1. Emoción principal detectada (alegría, tristeza, ansiedad, enojo, miedo, neutral)
2. Intensidad emocional (escala 1-10)
3. Indicadores de riesgo (si, no, moderado)
4. Recomendaciones breves de apoyo

Responde SOLO en formato JSON como este ejemplo:
{
    "emotion": "ansiedad",
    "intensity": 7,
    "risk_level": "moderado",
    "keywords": ["preocupado", "nervioso"],
    "recommendation": "Considera técnicas de respiración profunda"
}`

const respondSystemPromptTemplate = `Eres un asistente de apoyo emocional empático y profesional.

El usuario está experimentando: %s
con intensidad %d/10.

Lineamientos:
- Sé empático y comprensivo
- Valida sus emociones
- Ofrece apoyo constructivo
- Si detectas riesgo alto, sugiere buscar ayuda profesional
- Mantén un tono cálido pero profesional
- Respeta la confidencialidad del usuario`

// Assessment is the provider's emotional classification of one text. Values
// are carried as returned by the provider; normalization onto the bounded
// vocabularies happens when the risk event is constructed.
type Assessment struct {
	Emotion        string   `json:"emotion"`
	Intensity      int      `json:"intensity"`
	RiskLevel      string   `json:"risk_level"`
	Keywords       []string `json:"keywords"`
	Recommendation string   `json:"recommendation"`
}

// Gateway exposes the three provider capabilities the pipeline needs:
// emotional classification, empathetic reply generation, and transcription.
type Gateway struct {
	llm         LLMClient
	transcriber Transcriber
	logger      *logging.Logger
}

// NewGateway creates a Gateway. transcriber may be nil when the deployment has
// no speech-to-text capability; Transcribe then reports ErrUnavailable.
func NewGateway(llm LLMClient, transcriber Transcriber, logger *logging.Logger) *Gateway {
	if llm == nil {
		panic("inference: llm client cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		llm:         llm,
		transcriber: transcriber,
		logger:      logger,
	}
}

// Classify asks the provider for an emotional assessment of text. Malformed
// provider output never fails: it degrades to a neutral assessment carrying
// the raw reply as recommendation. Only transport failures return an error,
// tagged ErrUnavailable.
func (g *Gateway) Classify(ctx context.Context, text string, recentContext []ChatMessage) (Assessment, error) {
	messages := append(lastTurns(recentContext), ChatMessage{
		Role:    ChatRoleUser,
		Content: fmt.Sprintf("Analiza este texto: '%s'", text),
	})

	resp, err := g.llm.Complete(ctx, LLMRequest{
		System:      []string{classifySystemPrompt},
		Messages:    messages,
		MaxTokens:   classifyMaxTokens,
		Temperature: classifyTemperature,
	})
	if err != nil {
		return Assessment{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	assessment, ok := parseAssessment(resp.Text)
	if !ok {
		g.logger.Warn("provider reply was not valid assessment JSON, using neutral fallback",
			"reply_chars", len(resp.Text),
		)
	}
	return assessment, nil
}

// Respond generates an empathetic reply informed by the assessment. Transport
// failures surface as ErrUnavailable; the caller owns the fallback reply.
func (g *Gateway) Respond(ctx context.Context, text string, assessment Assessment, recentContext []ChatMessage) (string, error) {
	emotion := assessment.Emotion
	if strings.TrimSpace(emotion) == "" {
		emotion = "neutral"
	}

	messages := append(lastTurns(recentContext), ChatMessage{
		Role:    ChatRoleUser,
		Content: text,
	})

	resp, err := g.llm.Complete(ctx, LLMRequest{
		System:      []string{fmt.Sprintf(respondSystemPromptTemplate, emotion, assessment.Intensity)},
		Messages:    messages,
		MaxTokens:   respondMaxTokens,
		Temperature: respondTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp.Text, nil
}

// Transcribe converts audio to text via the provider's speech-to-text
// capability.
func (g *Gateway) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if g.transcriber == nil {
		return "", fmt.Errorf("%w: no transcriber configured", ErrUnavailable)
	}
	text, err := g.transcriber.Transcribe(ctx, audio, filename)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return text, nil
}

// lastTurns returns a copy of at most the trailing contextTurns messages.
func lastTurns(history []ChatMessage) []ChatMessage {
	start := 0
	if len(history) > contextTurns {
		start = len(history) - contextTurns
	}
	out := make([]ChatMessage, 0, len(history)-start+1)
	return append(out, history[start:]...)
}

type assessmentPayload struct {
	Emotion        string      `json:"emotion"`
	Intensity      json.Number `json:"intensity"`
	RiskLevel      string      `json:"risk_level"`
	Keywords       []string    `json:"keywords"`
	Recommendation string      `json:"recommendation"`
}

// parseAssessment extracts the assessment JSON object from a raw provider
// reply. The second return value reports whether parsing succeeded; on
// failure the returned assessment is the documented neutral fallback.
func parseAssessment(raw string) (Assessment, bool) {
	content := strings.TrimSpace(raw)

	// Providers occasionally wrap the object in prose or a markdown fence.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	var payload assessmentPayload
	parsed := false
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &payload); err == nil {
			parsed = true
		}
	}

	if !parsed {
		return Assessment{
			Emotion:        "neutral",
			Intensity:      5,
			RiskLevel:      "no",
			Keywords:       []string{},
			Recommendation: firstChars(raw, fallbackRecommendationChars),
		}, false
	}

	intensity := 5
	if payload.Intensity != "" {
		if f, err := payload.Intensity.Float64(); err == nil {
			intensity = int(f)
		}
	}

	keywords := payload.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	return Assessment{
		Emotion:        payload.Emotion,
		Intensity:      intensity,
		RiskLevel:      payload.RiskLevel,
		Keywords:       keywords,
		Recommendation: payload.Recommendation,
	}, true
}

func firstChars(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
