package analysis

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/serenai/emotion-ai-platform/pkg/logging"
)

const (
	maxMessageChars  = 2000
	maxAudioBytes    = 10 << 20
	subjectHeader    = "X-Subject-ID"
	defaultHistoryN  = 10
	defaultStatsDays = 7
)

// Handler exposes the analysis service over HTTP.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if service == nil {
		panic("analysis: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

// SendMessage handles POST /chat/send.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "formato de datos inválido")
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "mensaje vacío")
		return
	}
	if len([]rune(message)) > maxMessageChars {
		writeError(w, http.StatusBadRequest, "mensaje demasiado largo (máximo 2000 caracteres)")
		return
	}

	subjectID := h.subjectID(r)
	result := h.service.AnalyzeText(r.Context(), subjectID, message)
	if !result.Success {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}

	w.Header().Set(subjectHeader, subjectID)
	writeJSON(w, http.StatusOK, result)
}

// TranscribeAudio handles POST /chat/transcribe with a multipart "audio" part.
func (h *Handler) TranscribeAudio(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioBytes+4096)
	if err := r.ParseMultipartForm(maxAudioBytes); err != nil {
		writeError(w, http.StatusBadRequest, "archivo de audio demasiado grande (máximo 10MB)")
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no se recibió archivo de audio")
		return
	}
	defer file.Close()

	if header.Size > maxAudioBytes {
		writeError(w, http.StatusBadRequest, "archivo de audio demasiado grande (máximo 10MB)")
		return
	}

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioBytes))
	if err != nil {
		h.logger.Error("audio read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error al procesar el audio")
		return
	}

	subjectID := h.subjectID(r)
	result := h.service.AnalyzeAudio(r.Context(), subjectID, audio, header.Filename)
	if !result.Success {
		writeJSON(w, http.StatusInternalServerError, result)
		return
	}

	w.Header().Set(subjectHeader, subjectID)
	writeJSON(w, http.StatusOK, result)
}

// EmotionalHistory handles GET /chat/history.
func (h *Handler) EmotionalHistory(w http.ResponseWriter, r *http.Request) {
	subjectID := r.Header.Get(subjectHeader)
	if subjectID == "" {
		writeError(w, http.StatusUnauthorized, "usuario no identificado")
		return
	}

	limit := queryInt(r, "limit", defaultHistoryN)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"history": h.service.History(subjectID, limit),
	})
}

// PendingAlerts handles GET /admin/alerts.
func (h *Handler) PendingAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.service.PendingAlerts()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}

// ResolveAlert handles POST /admin/alerts/{alertID}/resolve. Resolving an
// unknown alert still succeeds.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "alertID")
	if alertID == "" {
		writeError(w, http.StatusBadRequest, "alert id requerido")
		return
	}
	h.service.ResolveAlert(alertID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Statistics handles GET /admin/statistics.
func (h *Handler) Statistics(w http.ResponseWriter, r *http.Request) {
	days := queryInt(r, "days", defaultStatsDays)
	stats, err := h.service.Statistics(days)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(w, http.StatusInternalServerError, "error al obtener estadísticas")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"statistics": stats,
	})
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// subjectID reads the caller-provided subject id, minting a fresh one for
// first contact.
func (h *Handler) subjectID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(subjectHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}
