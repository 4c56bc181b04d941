package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T, llm *scriptedLLM, tr *scriptedTranscriber) (*Handler, *serviceFixture) {
	t.Helper()
	f := newServiceFixture(t, llm, tr)
	return NewHandler(f.service, nil), f
}

func testRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/chat/send", h.SendMessage)
	r.Post("/chat/transcribe", h.TranscribeAudio)
	r.Get("/chat/history", h.EmotionalHistory)
	r.Get("/admin/alerts", h.PendingAlerts)
	r.Post("/admin/alerts/{alertID}/resolve", h.ResolveAlert)
	r.Get("/admin/statistics", h.Statistics)
	r.Get("/health", h.Health)
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return body
}

func TestSendMessageSuccess(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{
		classifyText: highRiskAssessment,
		respondText:  "Estoy contigo.",
	}, nil)
	router := testRouter(h)

	payload := `{"message": "me siento muy mal"}`
	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(payload))
	req.Header.Set("X-Subject-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("expected success true: %v", body)
	}
	if body["response"] != "Estoy contigo." {
		t.Errorf("unexpected response %v", body["response"])
	}
	if body["alert_generated"] != true {
		t.Errorf("expected alert_generated true: %v", body)
	}
	analysis, ok := body["emotion_analysis"].(map[string]any)
	if !ok {
		t.Fatalf("missing emotion_analysis: %v", body)
	}
	if analysis["emotion"] != "ansiedad" || analysis["risk_level"] != "high" {
		t.Errorf("unexpected analysis %v", analysis)
	}
	if rec.Header().Get("X-Subject-ID") != "user-1" {
		t.Errorf("subject id header not echoed: %q", rec.Header().Get("X-Subject-ID"))
	}
}

func TestSendMessageMintsSubjectID(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{classifyText: calmAssessment, respondText: "ok"}, nil)
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"message": "hola"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("X-Subject-ID") == "" {
		t.Error("expected a minted subject id header")
	}
}

func TestSendMessageValidation(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{}, nil)
	router := testRouter(h)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `not json`},
		{"empty message", `{"message": "   "}`},
		{"too long", `{"message": "` + strings.Repeat("a", 2001) + `"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
			body := decodeBody(t, rec)
			if body["success"] != false || body["error"] == "" {
				t.Errorf("expected error payload, got %v", body)
			}
		})
	}
}

func TestSendMessageAcceptsBoundaryLength(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{classifyText: calmAssessment, respondText: "ok"}, nil)
	router := testRouter(h)

	payload, _ := json.Marshal(map[string]string{"message": strings.Repeat("a", 2000)})
	req := httptest.NewRequest(http.MethodPost, "/chat/send", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 at the 2000-char boundary, got %d", rec.Code)
	}
}

func TestSendMessageInferenceFailure(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{classifyErr: context.DeadlineExceeded}, nil)
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/chat/send", strings.NewReader(`{"message": "hola"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false {
		t.Errorf("expected success false: %v", body)
	}
}

func multipartAudio(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestTranscribeAudioSuccess(t *testing.T) {
	h, _ := newTestHandler(t,
		&scriptedLLM{classifyText: calmAssessment, respondText: "Gracias por compartir."},
		&scriptedTranscriber{text: "hoy me siento tranquilo"},
	)
	router := testRouter(h)

	body, contentType := multipartAudio(t, "audio", "voz.ogg", []byte("fake-audio"))
	req := httptest.NewRequest(http.MethodPost, "/chat/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Subject-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody(t, rec)
	if resp["transcription"] != "hoy me siento tranquilo" {
		t.Errorf("unexpected transcription %v", resp["transcription"])
	}
	if resp["success"] != true {
		t.Errorf("expected success: %v", resp)
	}
}

func TestTranscribeAudioMissingFile(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{}, &scriptedTranscriber{})
	router := testRouter(h)

	body, contentType := multipartAudio(t, "wrongfield", "voz.ogg", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/chat/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEmotionalHistoryRequiresSubject(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{}, nil)
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/chat/history", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEmotionalHistoryReturnsEvents(t *testing.T) {
	h, f := newTestHandler(t, &scriptedLLM{classifyText: calmAssessment, respondText: "ok"}, nil)
	router := testRouter(h)

	f.service.AnalyzeText(context.Background(), "user-1", "hola")

	req := httptest.NewRequest(http.MethodGet, "/chat/history?limit=5", nil)
	req.Header.Set("X-Subject-ID", "user-1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	history, ok := body["history"].([]any)
	if !ok || len(history) != 1 {
		t.Fatalf("expected 1 history entry, got %v", body["history"])
	}
	entry := history[0].(map[string]any)
	if entry["text"] != "hola" || entry["emotion"] != "calma" {
		t.Errorf("unexpected history entry %v", entry)
	}
}

func TestAdminAlertsAndResolve(t *testing.T) {
	h, f := newTestHandler(t, &scriptedLLM{
		classifyText: highRiskAssessment,
		respondText:  "Estoy contigo.",
	}, nil)
	router := testRouter(h)

	f.service.AnalyzeText(context.Background(), "user-1", "no puedo más")

	req := httptest.NewRequest(http.MethodGet, "/admin/alerts", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(1) {
		t.Fatalf("expected 1 alert, got %v", body["count"])
	}
	alertList := body["alerts"].([]any)
	alertID := alertList[0].(map[string]any)["alert_id"].(string)

	req = httptest.NewRequest(http.MethodPost, "/admin/alerts/"+alertID+"/resolve", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/alerts", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if body := decodeBody(t, rec); body["count"] != float64(0) {
		t.Fatalf("expected 0 pending alerts after resolve, got %v", body["count"])
	}

	// Resolving an unknown id still succeeds.
	req = httptest.NewRequest(http.MethodPost, "/admin/alerts/alert_unknown/resolve", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unknown alert id, got %d", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	h, f := newTestHandler(t, &scriptedLLM{classifyText: calmAssessment, respondText: "ok"}, nil)
	router := testRouter(h)

	f.service.AnalyzeText(context.Background(), "user-1", "hola")

	req := httptest.NewRequest(http.MethodGet, "/admin/statistics?days=7", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	stats, ok := body["statistics"].(map[string]any)
	if !ok {
		t.Fatalf("missing statistics: %v", body)
	}
	if stats["total_events"] != float64(1) {
		t.Errorf("expected 1 event in statistics, got %v", stats["total_events"])
	}
}

func TestHealthEndpoint(t *testing.T) {
	h, _ := newTestHandler(t, &scriptedLLM{}, nil)
	router := testRouter(h)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["status"] != "ok" {
		t.Errorf("unexpected health body %v", body)
	}
}
