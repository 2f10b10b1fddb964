package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/Tutortoise/deepfake-detector/detections"
	"github.com/Tutortoise/deepfake-detector/inference"
	"github.com/Tutortoise/deepfake-detector/models"
	"github.com/Tutortoise/deepfake-detector/store"
)

// ========================================
// Fakes
// ========================================

type fakeClassifier struct {
	preds []models.Prediction
	err   error
}

func (f *fakeClassifier) Classify(_ context.Context, _ image.Image, _ *models.ProcessingTimings) ([]models.Prediction, error) {
	return f.preds, f.err
}

type fakeSequence struct {
	probs []float32
	err   error
}

func (f *fakeSequence) Probabilities(_ context.Context, _ string) ([]float32, error) {
	return f.probs, f.err
}

type fakeFrames struct {
	remaining int
}

func (f *fakeFrames) Next() bool {
	if f.remaining == 0 {
		return false
	}
	f.remaining--
	return true
}

func (f *fakeFrames) Frame() (image.Image, error) {
	return image.NewNRGBA(image.Rect(0, 0, 8, 8)), nil
}

func (f *fakeFrames) Close() error { return nil }

type fakeFeedback struct {
	items []models.Feedback
}

func (f *fakeFeedback) Insert(fb *models.Feedback) (int64, error) {
	if err := store.Validate(fb); err != nil {
		return 0, err
	}
	fb.ID = int64(len(f.items) + 1)
	f.items = append(f.items, *fb)
	return fb.ID, nil
}

func (f *fakeFeedback) List(limit int) ([]models.Feedback, error) {
	return f.items, nil
}

type fakePool struct{}

func (fakePool) Stats() inference.PoolStats {
	return inference.PoolStats{Name: "image", PoolSize: 4, Idle: 3, InUse: 1}
}

// ========================================
// Helpers
// ========================================

var fakePrediction = []models.Prediction{{Label: "artificial", Score: 0.9}, {Label: "human", Score: 0.1}}
var realPrediction = []models.Prediction{{Label: "human", Score: 0.9}, {Label: "artificial", Score: 0.1}}

type testEnv struct {
	images   detections.ImageClassifier
	text     detections.SequenceClassifier
	opener   detections.VideoOpener
	feedback FeedbackStore
	strict   bool
}

func newTestServer(t *testing.T, env testEnv) http.Handler {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "server_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	uploads, err := store.NewUploads(tempDir)
	if err != nil {
		t.Fatalf("Failed to create uploads: %v", err)
	}

	imageDetector := detections.NewImageDetector(env.images, nil)
	d := Detectors{
		Image: imageDetector,
		Text:  detections.NewTextDetector(env.text, detections.DefaultTextOptions()),
		Video: detections.NewVideoDetector(imageDetector, env.opener, 2),
	}

	srv := New(d, uploads, env.feedback, []PoolReporter{fakePool{}}, Options{DegradeOnError: !env.strict})
	return srv.Handler(nil)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 16, 16))); err != nil {
		t.Fatalf("Failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func multipartBody(t *testing.T, fields map[string]string, fileField string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("Failed to write field: %v", err)
		}
	}
	if fileField != "" {
		fw, err := mw.CreateFormFile(fileField, "upload.bin")
		if err != nil {
			t.Fatalf("Failed to create form file: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("Response is not JSON (%d): %s", rec.Code, rec.Body.String())
	}
	return rec, body
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-4
}

// ========================================
// Root, health and metrics
// ========================================

func TestRoot(t *testing.T) {
	h := newTestServer(t, testEnv{})

	rec, body := do(t, h, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if body["message"] != "Deepfake Detector API is running" {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("Expected request id header")
	}
}

func TestHealth_ReportsAvailability(t *testing.T) {
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}})

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	m, ok := body["models"].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected models object, got %v", body["models"])
	}
	if m["image"] != true || m["text"] != false || m["video"] != false {
		t.Errorf("Unexpected availability: %v", m)
	}
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, testEnv{})

	_, body := do(t, h, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	pools, ok := body["pools"].([]interface{})
	if !ok || len(pools) != 1 {
		t.Fatalf("Expected one pool, got %v", body["pools"])
	}
	if pools[0].(map[string]interface{})["sessions_in_use"] != float64(1) {
		t.Errorf("Unexpected pool stats: %v", pools[0])
	}
}

func TestCORS_AllowsAnyOrigin(t *testing.T) {
	h := newTestServer(t, testEnv{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://example.com")
	rec, _ := do(t, h, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Expected wildcard origin, got %q", got)
	}
}

// ========================================
// Image
// ========================================

func TestAnalyzeImage_NoInput(t *testing.T) {
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}})

	body, ct := multipartBody(t, nil, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}
	if resp["error"] != "No file or URL provided" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

func TestAnalyzeImage_Upload(t *testing.T) {
	tests := []struct {
		name  string
		preds []models.Prediction
		score float64
		label string
	}{
		{"fake", fakePrediction, 0.9, "AI-Generated"},
		{"real", realPrediction, 0.1, "Real"},
	}

	for _, tt := range tests {
		h := newTestServer(t, testEnv{images: &fakeClassifier{preds: tt.preds}})

		body, ct := multipartBody(t, nil, "file", pngBytes(t))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", body)
		req.Header.Set("Content-Type", ct)
		rec, resp := do(t, h, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tt.name, rec.Code)
		}
		if !approx(resp["score"].(float64), tt.score) {
			t.Errorf("%s: expected score %v, got %v", tt.name, tt.score, resp["score"])
		}
		if resp["label"] != tt.label {
			t.Errorf("%s: expected label %s, got %v", tt.name, tt.label, resp["label"])
		}
	}
}

func TestAnalyzeImage_Base64JSON(t *testing.T) {
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}})

	payload, _ := json.Marshal(map[string]string{"image": base64.StdEncoding.EncodeToString(pngBytes(t))})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	_, resp := do(t, h, req)

	if resp["label"] != "AI-Generated" {
		t.Errorf("Expected AI-Generated, got %v", resp)
	}
}

func TestAnalyzeImage_ModelUnavailable(t *testing.T) {
	body, ct := multipartBody(t, nil, "file", pngBytes(t))

	h := newTestServer(t, testEnv{})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200 when degrading, got %d", rec.Code)
	}
	if resp["label"] != "Model Error" || resp["score"] != 0.5 {
		t.Errorf("Unexpected fallback: %v", resp)
	}
}

func TestAnalyzeImage_ModelUnavailableStrict(t *testing.T) {
	body, ct := multipartBody(t, nil, "file", pngBytes(t))

	h := newTestServer(t, testEnv{strict: true})
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	if resp["kind"] != "model_unavailable" {
		t.Errorf("Expected kind model_unavailable, got %v", resp["kind"])
	}
}

func TestAnalyzeImage_InferenceFailureDegrades(t *testing.T) {
	h := newTestServer(t, testEnv{images: &fakeClassifier{err: errors.New("session exploded")}})

	body, ct := multipartBody(t, nil, "file", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", body)
	req.Header.Set("Content-Type", ct)
	_, resp := do(t, h, req)

	if resp["label"] != "Error" || resp["score"] != 0.5 {
		t.Errorf("Unexpected fallback: %v", resp)
	}
	if !strings.HasPrefix(resp["details"].(string), "Processing failed: ") {
		t.Errorf("Unexpected details: %v", resp["details"])
	}
}

func TestAnalyzeImage_UndecodableStrict(t *testing.T) {
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}, strict: true})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/image", strings.NewReader("not an image"))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", rec.Code)
	}
	if resp["kind"] != "source_unreadable" {
		t.Errorf("Expected source_unreadable, got %v", resp["kind"])
	}
}

// ========================================
// Text
// ========================================

func TestAnalyzeText(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 60))

	tests := []struct {
		name  string
		text  string
		score float64
		words float64
	}{
		{"long text bonus", long, 0.7 / 1.1, 60},
		{"short text", "just a few words here", 0.6 / 1.1, 5},
	}

	for _, tt := range tests {
		h := newTestServer(t, testEnv{text: &fakeSequence{probs: []float32{0.4, 0.6}}})

		payload, _ := json.Marshal(map[string]string{"text": tt.text})
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/text", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		_, resp := do(t, h, req)

		if !approx(resp["score"].(float64), tt.score) {
			t.Errorf("%s: expected score %v, got %v", tt.name, tt.score, resp["score"])
		}
		if resp["word_count"] != tt.words {
			t.Errorf("%s: expected %v words, got %v", tt.name, tt.words, resp["word_count"])
		}
	}
}

func TestAnalyzeText_QueryAndRawBody(t *testing.T) {
	h := newTestServer(t, testEnv{text: &fakeSequence{probs: []float32{0.9, 0.1}}})

	req := httptest.NewRequest(http.MethodPost, "/api/analyze/text?text=hello+there", nil)
	_, resp := do(t, h, req)
	if resp["label"] != "Human-Written" {
		t.Errorf("Expected Human-Written from query, got %v", resp)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/analyze/text", strings.NewReader("hello there"))
	req.Header.Set("Content-Type", "text/plain")
	_, resp = do(t, h, req)
	if resp["label"] != "Human-Written" {
		t.Errorf("Expected Human-Written from body, got %v", resp)
	}
}

func TestAnalyzeText_Empty(t *testing.T) {
	tests := []struct {
		strict bool
		status int
	}{
		{false, http.StatusOK},
		{true, http.StatusBadRequest},
	}

	for _, tt := range tests {
		h := newTestServer(t, testEnv{text: &fakeSequence{probs: []float32{0.5, 0.5}}, strict: tt.strict})

		req := httptest.NewRequest(http.MethodPost, "/api/analyze/text", strings.NewReader("   "))
		req.Header.Set("Content-Type", "text/plain")
		rec, resp := do(t, h, req)

		if rec.Code != tt.status {
			t.Errorf("strict=%v: expected %d, got %d", tt.strict, tt.status, rec.Code)
		}
		if resp["error"] != "No text provided" {
			t.Errorf("strict=%v: unexpected error %v", tt.strict, resp["error"])
		}
	}
}

// ========================================
// Video
// ========================================

func TestAnalyzeVideo_NoFile(t *testing.T) {
	opener := func(string) (detections.FrameReader, error) { return &fakeFrames{}, nil }
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}, opener: opener})

	body, ct := multipartBody(t, nil, "", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/video", body)
	req.Header.Set("Content-Type", ct)
	_, resp := do(t, h, req)

	if resp["error"] != "No video file provided" {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

func TestAnalyzeVideo_AllFramesFake(t *testing.T) {
	var openedPath string
	opener := func(path string) (detections.FrameReader, error) {
		openedPath = path
		if _, err := os.Stat(path); err != nil {
			return nil, err
		}
		return &fakeFrames{remaining: 100}, nil
	}
	h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}, opener: opener})

	body, ct := multipartBody(t, nil, "file", []byte("fake video bytes"))
	req := httptest.NewRequest(http.MethodPost, "/api/analyze/video", body)
	req.Header.Set("Content-Type", ct)
	_, resp := do(t, h, req)

	// Frames 0, 30, 60 and 90 are sampled out of 100.
	if resp["frames_analyzed"] != float64(4) || resp["fake_frames_detected"] != float64(4) {
		t.Errorf("Unexpected counts: %v", resp)
	}
	if resp["score"] != 1.0 || resp["label"] != "AI-Generated" {
		t.Errorf("Unexpected verdict: %v", resp)
	}
	if _, err := os.Stat(openedPath); !os.IsNotExist(err) {
		t.Error("Upload should be removed after the request")
	}
}

func TestAnalyzeVideo_Unopenable(t *testing.T) {
	opener := func(string) (detections.FrameReader, error) { return nil, errors.New("bad container") }

	tests := []struct {
		strict bool
		status int
	}{
		{false, http.StatusOK},
		{true, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		h := newTestServer(t, testEnv{images: &fakeClassifier{preds: fakePrediction}, opener: opener, strict: tt.strict})

		body, ct := multipartBody(t, nil, "file", []byte("garbage"))
		req := httptest.NewRequest(http.MethodPost, "/api/analyze/video", body)
		req.Header.Set("Content-Type", ct)
		rec, resp := do(t, h, req)

		if rec.Code != tt.status {
			t.Errorf("strict=%v: expected %d, got %d", tt.strict, tt.status, rec.Code)
		}
		if resp["error"] != "Could not open video" {
			t.Errorf("strict=%v: unexpected body %v", tt.strict, resp)
		}
		if _, ok := resp["score"]; ok {
			t.Errorf("strict=%v: unopenable video must not carry a score", tt.strict)
		}
	}
}

// ========================================
// Feedback
// ========================================

func TestFeedback_Disabled(t *testing.T) {
	h := newTestServer(t, testEnv{})

	req := httptest.NewRequest(http.MethodGet, "/api/feedback", nil)
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
	if resp["error"] != msgFeedbackDisabled {
		t.Errorf("Unexpected error: %v", resp["error"])
	}
}

func TestFeedback_CreateAndList(t *testing.T) {
	fb := &fakeFeedback{}
	h := newTestServer(t, testEnv{feedback: fb})

	payload := `{"media_type":"image","verdict":"real","reported_score":0.93,"comment":"my own photo"}`
	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec, resp := do(t, h, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	if resp["id"] != float64(1) {
		t.Errorf("Expected id 1, got %v", resp["id"])
	}

	rec, resp = do(t, h, httptest.NewRequest(http.MethodGet, "/api/feedback?limit=5", nil))
	if rec.Code != http.StatusOK || resp["count"] != float64(1) {
		t.Errorf("Unexpected list response %d: %v", rec.Code, resp)
	}
}

func TestFeedback_Invalid(t *testing.T) {
	h := newTestServer(t, testEnv{feedback: &fakeFeedback{}})

	req := httptest.NewRequest(http.MethodPost, "/api/feedback", strings.NewReader(`{"media_type":"audio","verdict":"real"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, _ := do(t, h, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}
