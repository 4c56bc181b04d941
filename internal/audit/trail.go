// Package audit keeps an anonymized, append-only trail of every published
// event and computes aggregate statistics from it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/serenai/emotion-ai-platform/internal/risk"
	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

// record is one JSON line in the trail. It never contains the source text or
// the raw subject id.
type record struct {
	Timestamp  string     `json:"timestamp"`
	Subject    string     `json:"subject"`
	Emotion    string     `json:"emotion"`
	Intensity  int        `json:"intensity"`
	RiskLevel  risk.Level `json:"risk_level"`
	Keywords   []string   `json:"keywords"`
	HighRisk   bool       `json:"high_risk"`
	TextLength int        `json:"text_length"`
}

// Statistics aggregates the trail over a trailing window.
type Statistics struct {
	WindowDays          int            `json:"window_days"`
	TotalEvents         int            `json:"total_events"`
	HighRiskEvents      int            `json:"high_risk_events"`
	EmotionDistribution map[string]int `json:"emotion_distribution"`
	AverageIntensity    float64        `json:"average_intensity"`
}

// TrailWriter appends anonymized event records to a JSONL file. It implements
// the dispatcher's reactor contract, so a full disk or bad path degrades the
// trail but never the pipeline.
type TrailWriter struct {
	mu     sync.Mutex
	path   string
	logger *logging.Logger
}

func NewTrailWriter(path string, logger *logging.Logger) *TrailWriter {
	if logger == nil {
		logger = logging.Default()
	}
	return &TrailWriter{path: path, logger: logger}
}

func (w *TrailWriter) Name() string { return "audit" }

// React appends one record for the event.
func (w *TrailWriter) React(event risk.Event) error {
	rec := record{
		Timestamp:  event.CreatedAt.UTC().Format(time.RFC3339Nano),
		Subject:    AnonymizeSubject(event.SubjectID),
		Emotion:    event.Emotion,
		Intensity:  event.Intensity,
		RiskLevel:  event.RiskLevel,
		Keywords:   event.Keywords,
		HighRisk:   event.IsHighRisk(),
		TextLength: len([]rune(event.SourceText)),
	}
	if rec.Keywords == nil {
		rec.Keywords = []string{}
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		w.logger.Error("audit trail open failed", "path", w.path, "error", err)
		return fmt.Errorf("audit: open trail: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		w.logger.Error("audit trail write failed", "path", w.path, "error", err)
		return fmt.Errorf("audit: write record: %w", err)
	}
	return nil
}

// Statistics re-reads the trail and aggregates records whose timestamp falls
// within the trailing window. Malformed lines are skipped, not fatal.
func (w *TrailWriter) Statistics(windowDays int) (Statistics, error) {
	if windowDays <= 0 {
		windowDays = 7
	}
	stats := Statistics{
		WindowDays:          windowDays,
		EmotionDistribution: map[string]int{},
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("audit: open trail: %w", err)
	}
	defer f.Close()

	cutoff := time.Now().UTC().AddDate(0, 0, -windowDays)
	var intensitySum int

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var rec record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue
		}
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}

		stats.TotalEvents++
		if rec.HighRisk {
			stats.HighRiskEvents++
		}
		stats.EmotionDistribution[rec.Emotion]++
		intensitySum += rec.Intensity
	}
	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("audit: scan trail: %w", err)
	}

	if stats.TotalEvents > 0 {
		stats.AverageIntensity = float64(intensitySum) / float64(stats.TotalEvents)
	}
	return stats, nil
}

// AnonymizeSubject derives a stable pseudonymous token from a subject id. The
// raw id never reaches the trail.
func AnonymizeSubject(subjectID string) string {
	sum := sha256.Sum256([]byte(subjectID))
	return hex.EncodeToString(sum[:])[:16]
}
