package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/Tutortoise/deepfake-detector/detections"
)

const (
	msgInvalidForm = "invalid form body"
	msgInvalidJSON = "invalid JSON body"
	msgTooLarge    = "Request body too large"
)

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImageUpload)

	src, err := s.imageSource(r)
	if err != nil {
		s.respond(w, r, "image", nil, err)
		return
	}

	result, err := s.detectors.Image.Predict(r.Context(), src)
	s.respond(w, r, "image", result, err)
}

func (s *Server) handleAnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	if !s.detectors.Video.Available() {
		s.respond(w, r, "video", nil, detections.ErrModelUnavailable)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxVideoUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.respond(w, r, "video", nil, requestError(err, detections.MsgNoVideo))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respond(w, r, "video", nil, detections.NewError(detections.KindInputMissing, detections.MsgNoVideo, nil))
		return
	}
	defer file.Close()

	path, cleanup, err := s.uploads.Save(header.Filename, file)
	if err != nil {
		s.respond(w, r, "video", nil, fmt.Errorf("store upload: %w", err))
		return
	}
	defer cleanup()

	result, err := s.detectors.Video.Process(r.Context(), path)
	s.respond(w, r, "video", result, err)
}

func (s *Server) handleAnalyzeText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxTextBody)

	text, err := readText(r)
	if err != nil {
		s.respond(w, r, "text", nil, err)
		return
	}

	result, err := s.detectors.Text.Predict(r.Context(), text)
	s.respond(w, r, "text", result, err)
}

// imageSource extracts the image from a JSON, multipart/form or raw body.
// A url field wins over an uploaded file.
func (s *Server) imageSource(r *http.Request) (detections.Source, error) {
	switch mediaType(r) {
	case "application/json":
		var req struct {
			URL   string `json:"url"`
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return detections.Source{}, requestError(err, msgInvalidJSON)
		}
		if req.URL != "" {
			return detections.Source{URL: req.URL}, nil
		}
		if req.Image == "" {
			return detections.Source{}, missingImage()
		}
		data, err := base64.StdEncoding.DecodeString(req.Image)
		if err != nil {
			return detections.Source{}, detections.NewError(detections.KindSourceUnreadable, "invalid base64 image", err)
		}
		return detections.FromBytes(data), nil

	case "multipart/form-data", "application/x-www-form-urlencoded":
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return detections.Source{}, requestError(err, msgInvalidForm)
		}
		if url := strings.TrimSpace(r.FormValue("url")); url != "" {
			return detections.Source{URL: url}, nil
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return detections.Source{}, missingImage()
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return detections.Source{}, requestError(err, msgInvalidForm)
		}
		if len(data) == 0 {
			return detections.Source{}, missingImage()
		}
		return detections.FromBytes(data), nil

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return detections.Source{}, requestError(err, "failed to read body")
		}
		if len(data) == 0 {
			return detections.Source{}, missingImage()
		}
		return detections.FromBytes(data), nil
	}
}

// readText takes the text query parameter first, then the body.
func readText(r *http.Request) (string, error) {
	if text := r.URL.Query().Get("text"); text != "" {
		return text, nil
	}

	switch mediaType(r) {
	case "application/json":
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			return "", requestError(err, msgInvalidJSON)
		}
		return req.Text, nil

	case "multipart/form-data", "application/x-www-form-urlencoded":
		if err := r.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return "", requestError(err, msgInvalidForm)
		}
		return r.FormValue("text"), nil

	default:
		data, err := io.ReadAll(r.Body)
		if err != nil {
			return "", requestError(err, "failed to read body")
		}
		return string(data), nil
	}
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

func missingImage() error {
	return detections.NewError(detections.KindInputMissing, detections.MsgNoFileOrURL, nil)
}

// requestError reports an oversized body as InputTooLarge and anything else
// as a missing or malformed input.
func requestError(err error, message string) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		return detections.NewError(detections.KindInputTooLarge, msgTooLarge, err)
	}
	return detections.NewError(detections.KindInputMissing, message, err)
}
