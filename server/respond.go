package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/Tutortoise/deepfake-detector/detections"
	"github.com/Tutortoise/deepfake-detector/models"
)

// respond writes a detection result, or maps err through the degrade policy.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, media string, result interface{}, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, result)
		return
	}

	kind := detections.KindOf(err)
	logAttrs := []any{
		slog.String("request_id", detections.RequestID(r.Context())),
		slog.String("media", media),
		slog.String("kind", kind.String()),
		slog.Any("error", err),
	}

	if s.opts.DegradeOnError {
		if fallback, ok := detections.Fallback(err); ok {
			slog.Warn("detection degraded to uncertain result", logAttrs...)
			writeJSON(w, http.StatusOK, fallback)
			return
		}
		if kind != 0 {
			slog.Info("detection rejected", logAttrs...)
			sendErrorResponse(w, errorMessage(err), http.StatusOK)
			return
		}
	}

	slog.Warn("detection failed", logAttrs...)
	resp := models.ErrorResponse{Error: errorMessage(err)}
	if kind != 0 {
		resp.Kind = kind.String()
	}
	writeJSON(w, statusFor(kind), resp)
}

// errorMessage is the client facing text for err. Input errors carry their
// own message; degradable errors include the cause.
func errorMessage(err error) string {
	var de *detections.DetectionError
	if !errors.As(err, &de) {
		return err.Error()
	}
	switch de.Kind {
	case detections.KindModelUnavailable:
		return detections.MsgModelUnavailable
	case detections.KindInputMissing, detections.KindInputTooLarge, detections.KindVideoUnopenable:
		return de.Message
	default:
		return de.Error()
	}
}

func statusFor(kind detections.ErrorKind) int {
	switch kind {
	case detections.KindInputMissing:
		return http.StatusBadRequest
	case detections.KindInputTooLarge:
		return http.StatusRequestEntityTooLarge
	case detections.KindVideoUnopenable:
		return http.StatusUnprocessableEntity
	case detections.KindModelUnavailable:
		return http.StatusServiceUnavailable
	case detections.KindSourceUnreadable, detections.KindInference:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
