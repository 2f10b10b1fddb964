package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Tutortoise/deepfake-detector/models"
	"github.com/Tutortoise/deepfake-detector/store"
)

const msgFeedbackDisabled = "Feedback store not configured"

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		sendErrorResponse(w, msgFeedbackDisabled, http.StatusServiceUnavailable)
		return
	}

	var req struct {
		MediaType     string  `json:"media_type"`
		Verdict       string  `json:"verdict"`
		Comment       string  `json:"comment"`
		ReportedScore float64 `json:"reported_score"`
	}
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	f := &models.Feedback{
		MediaType:     req.MediaType,
		Verdict:       req.Verdict,
		Comment:       req.Comment,
		ReportedScore: req.ReportedScore,
	}
	if _, err := s.feedback.Insert(f); err != nil {
		if errors.Is(err, store.ErrInvalidFeedback) {
			sendErrorResponse(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("failed to store feedback", slog.Any("error", err))
		sendErrorResponse(w, "failed to store feedback", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, f)
}

func (s *Server) handleListFeedback(w http.ResponseWriter, r *http.Request) {
	if s.feedback == nil {
		sendErrorResponse(w, msgFeedbackDisabled, http.StatusServiceUnavailable)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := s.feedback.List(limit)
	if err != nil {
		slog.Error("failed to list feedback", slog.Any("error", err))
		sendErrorResponse(w, "failed to list feedback", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feedback": items,
		"count":    len(items),
	})
}
