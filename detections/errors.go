package detections

import (
	"errors"
	"fmt"

	"github.com/Tutortoise/deepfake-detector/models"
)

type ErrorKind int

const (
	KindModelUnavailable ErrorKind = iota + 1
	KindInputMissing
	KindInputTooLarge
	KindSourceUnreadable
	KindInference
	KindVideoUnopenable
)

func (k ErrorKind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindInputMissing:
		return "input_missing"
	case KindInputTooLarge:
		return "input_too_large"
	case KindSourceUnreadable:
		return "source_unreadable"
	case KindInference:
		return "inference_error"
	case KindVideoUnopenable:
		return "video_unopenable"
	default:
		return "unknown"
	}
}

// Degradable reports whether a failure of this kind may be answered with an
// uncertain score instead of an error.
func (k ErrorKind) Degradable() bool {
	switch k {
	case KindModelUnavailable, KindSourceUnreadable, KindInference:
		return true
	}
	return false
}

type DetectionError struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *DetectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *DetectionError) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, message string, cause error) *DetectionError {
	return &DetectionError{Kind: kind, Message: message, Cause: cause}
}

var ErrModelUnavailable = NewError(KindModelUnavailable, "model not loaded", nil)

// KindOf returns the kind carried by err, or 0 if err is not a DetectionError.
func KindOf(err error) ErrorKind {
	var de *DetectionError
	if errors.As(err, &de) {
		return de.Kind
	}
	return 0
}

// Fallback converts a degradable failure into the uncertain result returned
// to clients. ok is false when err must be reported as an error instead.
func Fallback(err error) (result models.DetectionResult, ok bool) {
	var de *DetectionError
	if !errors.As(err, &de) || !de.Kind.Degradable() {
		return models.DetectionResult{}, false
	}

	if de.Kind == KindModelUnavailable {
		return Finalize(models.DetectionResult{
			Score:   UncertainScore,
			Label:   LabelModelError,
			Details: MsgModelUnavailable,
		}), true
	}

	return Finalize(models.DetectionResult{
		Score:   UncertainScore,
		Label:   LabelError,
		Details: fmt.Sprintf(MsgProcessingFailed, de.Error()),
	}), true
}
