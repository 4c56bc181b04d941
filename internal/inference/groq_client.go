package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
	defaultGroqTimeout = 60 * time.Second
)

// GroqConfig controls how the Groq client behaves.
type GroqConfig struct {
	BaseURL        string
	APIKey         string
	ModelID        string
	WhisperModelID string
	Language       string
	Timeout        time.Duration
	HTTPClient     *http.Client
	Logger         *logging.Logger
}

// GroqClient talks to Groq's OpenAI-compatible REST API. It implements both
// LLMClient (chat completions) and Transcriber (Whisper speech-to-text).
type GroqClient struct {
	apiKey         string
	baseURL        string
	modelID        string
	whisperModelID string
	language       string
	httpClient     *http.Client
	logger         *logging.Logger
}

// NewGroqClient creates a configured GroqClient with sane defaults.
func NewGroqClient(cfg GroqConfig) (*GroqClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("inference: groq api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	modelID := strings.TrimSpace(cfg.ModelID)
	if modelID == "" {
		modelID = "openai/gpt-oss-120b"
	}
	whisperModelID := strings.TrimSpace(cfg.WhisperModelID)
	if whisperModelID == "" {
		whisperModelID = "whisper-large-v3"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultGroqTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &GroqClient{
		apiKey:         cfg.APIKey,
		baseURL:        baseURL,
		modelID:        modelID,
		whisperModelID: whisperModelID,
		language:       strings.TrimSpace(cfg.Language),
		httpClient:     httpClient,
		logger:         logger,
	}, nil
}

type groqChatRequest struct {
	Model               string        `json:"model"`
	Messages            []ChatMessage `json:"messages"`
	Temperature         *float32      `json:"temperature,omitempty"`
	TopP                *float32      `json:"top_p,omitempty"`
	MaxCompletionTokens int32         `json:"max_completion_tokens,omitempty"`
	Stream              bool          `json:"stream"`
}

type groqChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int32 `json:"prompt_tokens"`
		CompletionTokens int32 `json:"completion_tokens"`
		TotalTokens      int32 `json:"total_tokens"`
	} `json:"usage"`
}

// Complete sends a chat completion request to Groq and returns the response.
func (c *GroqClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.modelID
	}

	messages := make([]ChatMessage, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		messages = append(messages, ChatMessage{Role: ChatRoleSystem, Content: sys})
	}
	for _, msg := range req.Messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return LLMResponse{}, errors.New("inference: groq requires at least one message")
	}

	payload := groqChatRequest{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: req.MaxTokens,
		Stream:              false,
	}
	if req.Temperature >= 0 {
		temp := req.Temperature
		payload.Temperature = &temp
	}
	if req.TopP > 0 {
		topP := req.TopP
		payload.TopP = &topP
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("inference: marshal groq request: %w", err)
	}

	data, err := c.invoke(ctx, "/chat/completions", "application/json", bytes.NewReader(body))
	if err != nil {
		return LLMResponse{}, err
	}

	var parsed groqChatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return LLMResponse{}, fmt.Errorf("inference: decode groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return LLMResponse{}, errors.New("inference: groq returned no choices")
	}

	choice := parsed.Choices[0]
	return LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: choice.FinishReason,
		Usage: TokenUsage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}, nil
}

// Transcribe sends binary audio to Groq's Whisper endpoint and returns the
// transcript text.
func (c *GroqClient) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	if len(audio) == 0 {
		return "", errors.New("inference: empty audio payload")
	}
	if strings.TrimSpace(filename) == "" {
		filename = "audio.webm"
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("inference: build transcription form: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("inference: write transcription form: %w", err)
	}
	fields := map[string]string{
		"model":           c.whisperModelID,
		"temperature":     "0",
		"response_format": "json",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			return "", fmt.Errorf("inference: write transcription field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("inference: close transcription form: %w", err)
	}

	data, err := c.invoke(ctx, "/audio/transcriptions", writer.FormDataContentType(), &buf)
	if err != nil {
		return "", err
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("inference: decode transcription response: %w", err)
	}

	c.logger.Debug("transcription completed", "chars", len(parsed.Text))
	return strings.TrimSpace(parsed.Text), nil
}

func (c *GroqClient) invoke(ctx context.Context, path, contentType string, body io.Reader) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("inference: build groq request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference: groq request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("inference: read groq response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(data))
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return nil, fmt.Errorf("inference: groq returned status %d: %s", resp.StatusCode, snippet)
	}
	return data, nil
}
