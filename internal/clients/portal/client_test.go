package portal

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/openlingo/openlingo-backend/internal/capture"
	"github.com/openlingo/openlingo-backend/internal/logger"
)

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	c, err := NewClient(log, baseURL, StaticToken("test-token"))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestUploadRecording(t *testing.T) {
	itemID := uuid.New()
	clipData := []byte("fake-webm-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/recordings" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if got := r.FormValue("item_id"); got != itemID.String() {
			t.Errorf("item_id = %q, want %q", got, itemID)
		}
		if got := r.FormValue("duration_ms"); got != "2500" {
			t.Errorf("duration_ms = %q, want 2500", got)
		}
		f, fh, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer f.Close()
		if got := fh.Header.Get("Content-Type"); got != "audio/webm" {
			t.Errorf("file content type = %q", got)
		}
		body, _ := io.ReadAll(f)
		if string(body) != string(clipData) {
			t.Errorf("file body = %q", body)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"audio_url":   "https://cdn.example.com/r.webm",
			"progress_id": 314,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	res, err := c.UploadRecording(context.Background(), itemID, capture.Clip{
		Data:     clipData,
		MimeType: "audio/webm",
		Duration: 2500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("UploadRecording: %v", err)
	}
	if res.AudioURL != "https://cdn.example.com/r.webm" || res.ProgressID != 314 {
		t.Fatalf("result = %+v", res)
	}
}

func TestUploadRecordingServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bucket unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.UploadRecording(context.Background(), uuid.New(), capture.Clip{Data: []byte("x"), MimeType: "audio/webm"})
	if err == nil {
		t.Fatalf("expected error on 502 response")
	}
}

func TestAssessSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/speech/assess" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			AudioURL   string `json:"audio_url"`
			TargetText string `json:"target_text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.AudioURL != "https://cdn.example.com/r.webm" || req.TargetText != "say hello" {
			t.Errorf("request = %+v", req)
		}
		json.NewEncoder(w).Encode(map[string]float64{
			"accuracy_score":      92.5,
			"fluency_score":       88.0,
			"pronunciation_score": 90.1,
		})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	a, err := c.AssessSpeech(context.Background(), "https://cdn.example.com/r.webm", "say hello")
	if err != nil {
		t.Fatalf("AssessSpeech: %v", err)
	}
	if a.AccuracyScore != 92.5 || a.FluencyScore != 88.0 || a.PronunciationScore != 90.1 {
		t.Fatalf("assessment = %+v", a)
	}
}

func TestNewClientValidation(t *testing.T) {
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	if _, err := NewClient(log, "", StaticToken("t")); err == nil {
		t.Fatalf("empty base url accepted")
	}
	if _, err := NewClient(log, "http://localhost:9999", nil); err == nil {
		t.Fatalf("nil token source accepted")
	}
}
