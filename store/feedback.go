package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tutortoise/deepfake-detector/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxCommentLength = 2000
)

var (
	validMediaTypes = map[string]bool{"image": true, "video": true, "text": true}
	validVerdicts   = map[string]bool{"real": true, "fake": true}
)

// ErrInvalidFeedback is returned for submissions that fail validation.
var ErrInvalidFeedback = errors.New("invalid feedback")

// FeedbackRepository stores user disputes of detection verdicts.
type FeedbackRepository struct {
	db *DB
}

func NewFeedbackRepository(db *DB) *FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Validate normalizes f in place and rejects unknown media types or verdicts.
func Validate(f *models.Feedback) error {
	f.MediaType = strings.ToLower(strings.TrimSpace(f.MediaType))
	f.Verdict = strings.ToLower(strings.TrimSpace(f.Verdict))

	if !validMediaTypes[f.MediaType] {
		return fmt.Errorf("%w: media_type must be image, video or text", ErrInvalidFeedback)
	}
	if !validVerdicts[f.Verdict] {
		return fmt.Errorf("%w: verdict must be real or fake", ErrInvalidFeedback)
	}
	if f.ReportedScore < 0 || f.ReportedScore > 1 {
		return fmt.Errorf("%w: reported_score must be within [0,1]", ErrInvalidFeedback)
	}
	if len(f.Comment) > MaxCommentLength {
		return fmt.Errorf("%w: comment longer than %d bytes", ErrInvalidFeedback, MaxCommentLength)
	}
	return nil
}

// Insert validates and stores f, filling its ID and CreatedAt.
func (r *FeedbackRepository) Insert(f *models.Feedback) (int64, error) {
	if err := Validate(f); err != nil {
		return 0, err
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	result, err := r.db.conn.Exec(`
		INSERT INTO feedback (media_type, verdict, comment, reported_score, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, f.MediaType, f.Verdict, f.Comment, f.ReportedScore, f.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert feedback: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read feedback id: %w", err)
	}
	f.ID = id
	return id, nil
}

// List returns the most recent entries first.
func (r *FeedbackRepository) List(limit int) ([]models.Feedback, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rows, err := r.db.conn.Query(`
		SELECT id, media_type, verdict, comment, reported_score, created_at
		FROM feedback ORDER BY created_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	items := []models.Feedback{}
	for rows.Next() {
		var f models.Feedback
		if err := rows.Scan(&f.ID, &f.MediaType, &f.Verdict, &f.Comment, &f.ReportedScore, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}
