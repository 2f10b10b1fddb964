package models

import "time"

// Prediction is one class of a classifier output after softmax.
type Prediction struct {
	Label string
	Score float32
}

// DetectionResult is the response shape shared by every modality.
type DetectionResult struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Details    string  `json:"details,omitempty"`
	Confidence string  `json:"confidence,omitempty"`
	RiskLevel  string  `json:"risk_level,omitempty"`
}

type TextResult struct {
	DetectionResult
	WordCount int `json:"word_count"`
}

type VideoResult struct {
	DetectionResult
	FramesAnalyzed     int `json:"frames_analyzed"`
	FakeFramesDetected int `json:"fake_frames_detected"`
	FramesFailed       int `json:"frames_failed"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// Feedback is a user dispute of a verdict.
type Feedback struct {
	ID            int64     `json:"id"`
	MediaType     string    `json:"media_type"`
	Verdict       string    `json:"verdict"`
	Comment       string    `json:"comment"`
	ReportedScore float64   `json:"reported_score"`
	CreatedAt     time.Time `json:"created_at"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Total       time.Duration
}
