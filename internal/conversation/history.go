// Package conversation persists per-subject chat history so responses can be
// grounded in recent turns.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/serenai/emotion-ai-platform/internal/inference"
)

const (
	historyTTL     = 24 * time.Hour
	maxStoredTurns = 50
)

// Store keeps recent conversation turns per subject.
type Store interface {
	Append(ctx context.Context, subjectID string, turns ...inference.ChatMessage) error
	Recent(ctx context.Context, subjectID string, limit int) ([]inference.ChatMessage, error)
}

// RedisStore is the production store. History expires after the TTL so stale
// conversations do not accumulate.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewRedisStore(client *redis.Client, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if tracer == nil {
		tracer = otel.Tracer("serenai.internal.conversation.history")
	}
	return &RedisStore{
		redis:  client,
		tracer: tracer,
	}
}

// Append loads the stored history, adds the new turns, trims to the retention
// cap and persists the result. Each write refreshes the TTL.
func (s *RedisStore) Append(ctx context.Context, subjectID string, turns ...inference.ChatMessage) error {
	ctx, span := s.tracer.Start(ctx, "conversation.append_history")
	defer span.End()

	if len(turns) == 0 {
		return nil
	}

	history, err := s.load(ctx, subjectID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	history = append(history, turns...)
	if len(history) > maxStoredTurns {
		history = history[len(history)-maxStoredTurns:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal history: %w", err)
	}
	if err := s.redis.Set(ctx, historyKey(subjectID), data, historyTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist history: %w", err)
	}
	return nil
}

// Recent returns up to limit trailing turns for the subject, oldest first. An
// unknown subject yields an empty history, not an error.
func (s *RedisStore) Recent(ctx context.Context, subjectID string, limit int) ([]inference.ChatMessage, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.load_history")
	defer span.End()

	history, err := s.load(ctx, subjectID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return tail(history, limit), nil
}

func (s *RedisStore) load(ctx context.Context, subjectID string) ([]inference.ChatMessage, error) {
	data, err := s.redis.Get(ctx, historyKey(subjectID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("conversation: failed to load history: %w", err)
	}

	var history []inference.ChatMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode history: %w", err)
	}
	return history, nil
}

func historyKey(subjectID string) string {
	return fmt.Sprintf("history:%s", subjectID)
}

// MemoryStore keeps history in process memory. Used when Redis is not
// configured and in tests.
type MemoryStore struct {
	mu      sync.Mutex
	history map[string][]inference.ChatMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{history: map[string][]inference.ChatMessage{}}
}

func (s *MemoryStore) Append(_ context.Context, subjectID string, turns ...inference.ChatMessage) error {
	if len(turns) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.history[subjectID], turns...)
	if len(history) > maxStoredTurns {
		history = history[len(history)-maxStoredTurns:]
	}
	s.history[subjectID] = history
	return nil
}

func (s *MemoryStore) Recent(_ context.Context, subjectID string, limit int) ([]inference.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return tail(s.history[subjectID], limit), nil
}

func tail(history []inference.ChatMessage, limit int) []inference.ChatMessage {
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	out := make([]inference.ChatMessage, len(history))
	copy(out, history)
	return out
}
