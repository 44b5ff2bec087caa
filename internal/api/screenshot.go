package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/capture"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
)

type screenshotResponse struct {
	Success     bool   `json:"success"`
	Screenshot  string `json:"screenshot,omitempty"`
	ContentType string `json:"contentType,omitempty"`
	Limited     bool   `json:"limited,omitempty"`
	Error       string `json:"error,omitempty"`
}

// handleScreenshot translates query parameters into a capture invocation and
// serializes the result as a base64 envelope or raw image bytes.
func handleScreenshot(svc Service, cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		req := capture.Request{
			URL:      q.Get("url"),
			Width:    intParam(q.Get("width"), cfg.DefaultWidth),
			Height:   intParam(q.Get("height"), cfg.DefaultHeight),
			FullPage: boolParam(q.Get("fullPage")),
		}
		format := q.Get("format")
		if format == "" {
			format = "base64"
		}
		if format != "base64" && format != "binary-image" {
			writeCaptureError(w, capture.NewError(capture.CodeValidation, "format must be base64 or binary-image", nil))
			return
		}

		res, err := svc.Capture(r.Context(), req)
		if err != nil {
			writeCaptureError(w, err)
			return
		}

		if format == "binary-image" {
			w.Header().Set("Content-Type", res.ContentType)
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(res.Bytes); err != nil {
				slog.Debug("screenshot response write failed", "error", err)
			}
			return
		}

		writeJSON(w, http.StatusOK, screenshotResponse{
			Success:     true,
			Screenshot:  base64.StdEncoding.EncodeToString(res.Bytes),
			ContentType: res.ContentType,
			Limited:     res.Limited,
		})
	}
}

func writeCaptureError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var coded *capture.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case capture.CodeValidation:
			status = http.StatusBadRequest
		case capture.CodeNavigationFailed:
			status = http.StatusBadGateway
		case capture.CodeSessionUnavailable:
			status = http.StatusServiceUnavailable
		case capture.CodeEvalTimeout:
			status = http.StatusGatewayTimeout
		}
	}
	writeJSON(w, status, screenshotResponse{Success: false, Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body screenshotResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("screenshot response encode failed", "error", err)
	}
}

func intParam(raw string, defaultVal int) int {
	if raw == "" {
		return defaultVal
	}
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	return -1
}

func boolParam(raw string) bool {
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	return err == nil && b
}
