package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/Tutortoise/deepfake-detector/detections"
	"github.com/Tutortoise/deepfake-detector/inference"
	"github.com/Tutortoise/deepfake-detector/models"
	"github.com/Tutortoise/deepfake-detector/store"
)

const (
	DefaultMaxImageUpload = 20 << 20
	DefaultMaxVideoUpload = 500 << 20
	DefaultMaxTextBody    = 1 << 20
	multipartMemory       = 32 << 20
	requestIDHeader       = "X-Request-ID"
)

// FeedbackStore persists verdict disputes.
type FeedbackStore interface {
	Insert(f *models.Feedback) (int64, error)
	List(limit int) ([]models.Feedback, error)
}

// PoolReporter exposes session pool counters for /metrics.
type PoolReporter interface {
	Stats() inference.PoolStats
}

type Detectors struct {
	Image *detections.ImageDetector
	Text  *detections.TextDetector
	Video *detections.VideoDetector
}

type Options struct {
	// DegradeOnError answers degradable failures with an uncertain score
	// and HTTP 200 instead of an error status.
	DegradeOnError bool
	MaxImageUpload int64
	MaxVideoUpload int64
	MaxTextBody    int64
}

type Server struct {
	detectors Detectors
	uploads   *store.Uploads
	feedback  FeedbackStore
	pools     []PoolReporter
	opts      Options
}

// New builds the API server. feedback may be nil to disable /api/feedback.
func New(detectors Detectors, uploads *store.Uploads, feedback FeedbackStore, pools []PoolReporter, opts Options) *Server {
	if opts.MaxImageUpload <= 0 {
		opts.MaxImageUpload = DefaultMaxImageUpload
	}
	if opts.MaxVideoUpload <= 0 {
		opts.MaxVideoUpload = DefaultMaxVideoUpload
	}
	if opts.MaxTextBody <= 0 {
		opts.MaxTextBody = DefaultMaxTextBody
	}
	return &Server{
		detectors: detectors,
		uploads:   uploads,
		feedback:  feedback,
		pools:     pools,
		opts:      opts,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/analyze/image", s.handleAnalyzeImage).Methods("POST")
	api.HandleFunc("/analyze/video", s.handleAnalyzeVideo).Methods("POST")
	api.HandleFunc("/analyze/text", s.handleAnalyzeText).Methods("POST")
	api.HandleFunc("/feedback", s.handleCreateFeedback).Methods("POST")
	api.HandleFunc("/feedback", s.handleListFeedback).Methods("GET")

	return r
}

// Handler wraps the router with CORS open to all origins and, when
// accessLog is non-nil, a combined-format access log.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	var h http.Handler = s.Router()
	h = handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", requestIDHeader}),
	)(h)
	if accessLog != nil {
		h = handlers.CombinedLoggingHandler(accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(detections.WithRequestID(r.Context(), id)))
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Deepfake Detector API is running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"models": map[string]bool{
			"image": s.detectors.Image.Available(),
			"text":  s.detectors.Text.Available(),
			"video": s.detectors.Video.Available(),
		},
		"feedback": s.feedback != nil,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	pools := make([]inference.PoolStats, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p.Stats())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pools": pools,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", slog.Any("error", err))
	}
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
