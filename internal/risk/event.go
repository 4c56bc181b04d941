// Package risk models one emotional assessment as an immutable event and
// fans it out to registered reactors.
package risk

import (
	"strings"
	"sync"
	"time"

	"github.com/serenai/emotion-ai-platform/internal/inference"
)

// Level is the normalized risk classification of an event.
type Level string

const (
	LevelNone     Level = "none"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

const EmotionNeutral = "neutral"

// Provider replies are free-form; these label sets fold the strings the
// classifier is known to emit (Spanish and English) onto the bounded levels.
var highLevelLabels = map[string]struct{}{
	"si": {}, "sí": {}, "yes": {},
	"alto": {}, "high": {},
	"crítico": {}, "critico": {}, "critical": {},
}

var moderateLevelLabels = map[string]struct{}{
	"moderado": {}, "moderate": {},
	"medio": {}, "medium": {},
}

// crisisEmotions is the small set of emotion labels that mark an event
// high-risk regardless of its reported level or intensity.
var crisisEmotions = map[string]struct{}{
	"depresión": {}, "depresion": {}, "depression": {},
	"pánico": {}, "panico": {}, "panic": {},
	"crisis": {},
}

// Event is one emotional assessment. Once constructed it is never mutated;
// the derived predicates recompute from the stored fields.
type Event struct {
	SubjectID      string    `json:"subject_id"`
	SourceText     string    `json:"text"`
	Emotion        string    `json:"emotion"`
	Intensity      int       `json:"intensity"`
	RiskLevel      Level     `json:"risk_level"`
	Keywords       []string  `json:"keywords"`
	Recommendation string    `json:"recommendation"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewEvent normalizes a provider assessment into an Event. subjectID must not
// be empty; the caller guarantees it.
func NewEvent(subjectID, sourceText string, a inference.Assessment) Event {
	keywords := make([]string, len(a.Keywords))
	copy(keywords, a.Keywords)

	return Event{
		SubjectID:      subjectID,
		SourceText:     sourceText,
		Emotion:        normalizeEmotion(a.Emotion),
		Intensity:      clampIntensity(a.Intensity),
		RiskLevel:      NormalizeLevel(a.RiskLevel),
		Keywords:       keywords,
		Recommendation: a.Recommendation,
		CreatedAt:      nextTimestamp(),
	}
}

// IsHighRisk reports whether the event represents a high emotional risk.
func (e Event) IsHighRisk() bool {
	if e.RiskLevel == LevelHigh || e.Intensity >= 8 {
		return true
	}
	_, crisis := crisisEmotions[e.Emotion]
	return crisis
}

// RequiresAlert reports whether the alert reactor should escalate the event.
func (e Event) RequiresAlert() bool {
	return e.IsHighRisk() || e.Intensity >= 7
}

// Summary is the read-model projection of an event returned by the history
// API.
type Summary struct {
	SubjectID      string    `json:"subject_id"`
	Text           string    `json:"text"`
	Emotion        string    `json:"emotion"`
	Intensity      int       `json:"intensity"`
	RiskLevel      Level     `json:"risk_level"`
	Keywords       []string  `json:"keywords"`
	Recommendation string    `json:"recommendation"`
	HighRisk       bool      `json:"high_risk"`
	CreatedAt      time.Time `json:"created_at"`
}

// Summarize builds the API projection of the event.
func (e Event) Summarize() Summary {
	return Summary{
		SubjectID:      e.SubjectID,
		Text:           e.SourceText,
		Emotion:        e.Emotion,
		Intensity:      e.Intensity,
		RiskLevel:      e.RiskLevel,
		Keywords:       e.Keywords,
		Recommendation: e.Recommendation,
		HighRisk:       e.IsHighRisk(),
		CreatedAt:      e.CreatedAt,
	}
}

// NormalizeLevel folds a free-form provider risk string onto the bounded
// level set. Unrecognized values map to LevelNone.
func NormalizeLevel(raw string) Level {
	label := strings.ToLower(strings.TrimSpace(raw))
	if _, ok := highLevelLabels[label]; ok {
		return LevelHigh
	}
	if _, ok := moderateLevelLabels[label]; ok {
		return LevelModerate
	}
	return LevelNone
}

func normalizeEmotion(raw string) string {
	emotion := strings.ToLower(strings.TrimSpace(raw))
	if emotion == "" {
		return EmotionNeutral
	}
	return emotion
}

func clampIntensity(intensity int) int {
	switch {
	case intensity < 1:
		return 1
	case intensity > 10:
		return 10
	default:
		return intensity
	}
}

var (
	clockMu       sync.Mutex
	lastTimestamp time.Time
)

// nextTimestamp returns a strictly increasing timestamp so that events order
// deterministically within the process even under a coarse wall clock.
func nextTimestamp() time.Time {
	clockMu.Lock()
	defer clockMu.Unlock()

	now := time.Now().UTC()
	if !now.After(lastTimestamp) {
		now = lastTimestamp.Add(time.Nanosecond)
	}
	lastTimestamp = now
	return now
}
