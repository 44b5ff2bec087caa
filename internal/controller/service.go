package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/66mmakid99/puppeteer-screenshot-api/internal/capture"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/config"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/notify"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/session"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/snapshot"
	"github.com/66mmakid99/puppeteer-screenshot-api/internal/suppress"
)

const notifyTimeout = 5 * time.Second

// HealthStatus is the deep health probe result.
type HealthStatus struct {
	Session string `json:"session"`
	Detail  string `json:"detail,omitempty"`
}

// Service wires the capture pipeline, the shared session, and optional
// snapshot persistence behind the API surface.
type Service struct {
	captures       *capture.Controller
	sessions       *session.Manager
	snaps          *snapshot.Store
	navTimeout     time.Duration
	notifyEndpoint string
	httpClient     *http.Client
}

// NewService builds the facade. snaps may be nil (persistence disabled);
// notifyEndpoint may be empty (ops notifications disabled).
func NewService(captures *capture.Controller, sessions *session.Manager, snaps *snapshot.Store, cfg *config.Config) *Service {
	return &Service{
		captures:       captures,
		sessions:       sessions,
		snaps:          snaps,
		navTimeout:     time.Duration(cfg.NavTimeoutMS) * time.Millisecond,
		notifyEndpoint: cfg.NotifyEndpoint,
		httpClient:     &http.Client{Timeout: notifyTimeout},
	}
}

// Capture runs one capture and persists the artifact when a snapshot store
// is configured. Persistence is best effort and never fails the capture.
func (s *Service) Capture(ctx context.Context, req capture.Request) (*capture.Result, error) {
	if req.Timeout <= 0 {
		req.Timeout = s.navTimeout
	}
	res, err := s.captures.Capture(ctx, req)
	if err != nil {
		var coded *capture.CodedError
		if errors.As(err, &coded) && coded.Code == capture.CodeSessionUnavailable {
			s.notifySessionFault(coded)
		}
		return nil, err
	}

	if s.snaps != nil {
		meta := snapshot.Meta{
			ID:           uuid.NewString(),
			URL:          req.URL,
			Width:        req.Width,
			Height:       req.Height,
			FullPage:     req.FullPage,
			Limited:      res.Limited,
			RulesVersion: suppress.RulesVersion,
			ContentType:  res.ContentType,
			SizeBytes:    len(res.Bytes),
			CreatedAt:    time.Now().UTC(),
		}
		if saveErr := s.snaps.Save(meta, res.Bytes); saveErr != nil {
			slog.Warn("snapshot persistence failed", "url", req.URL, "error", saveErr)
		}
	}

	return res, nil
}

// notifySessionFault dispatches a best-effort ops notification when the
// browser could not be launched.
func (s *Service) notifySessionFault(cause error) {
	if s.notifyEndpoint == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := notify.SendSessionFault(ctx, s.httpClient, s.notifyEndpoint, cause); err != nil {
			slog.Debug("session fault notification failed", "error", err)
		}
	}()
}

// DeepHealth reports session reachability without triggering a launch.
func (s *Service) DeepHealth(ctx context.Context) HealthStatus {
	if !s.sessions.Launched() {
		return HealthStatus{Session: "unlaunched"}
	}
	if err := s.sessions.Healthy(ctx); err != nil {
		return HealthStatus{Session: "down", Detail: err.Error()}
	}
	return HealthStatus{Session: "ok"}
}

func (s *Service) ListSnapshots(ctx context.Context) ([]snapshot.Meta, error) {
	if s.snaps == nil {
		return []snapshot.Meta{}, nil
	}
	return s.snaps.List()
}

func (s *Service) GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error) {
	if s.snaps == nil {
		return snapshot.Meta{}, capture.NewError(capture.CodeSnapshotNotFound, "snapshot persistence disabled", nil)
	}
	meta, err := s.snaps.Get(id)
	if err != nil {
		return snapshot.Meta{}, mapStoreErr(err)
	}
	return meta, nil
}

func (s *Service) ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error) {
	if s.snaps == nil {
		return nil, "", capture.NewError(capture.CodeSnapshotNotFound, "snapshot persistence disabled", nil)
	}
	data, ct, err := s.snaps.ReadImage(id)
	if err != nil {
		return nil, "", mapStoreErr(err)
	}
	return data, ct, nil
}

func (s *Service) DeleteSnapshot(ctx context.Context, id string) error {
	if s.snaps == nil {
		return capture.NewError(capture.CodeSnapshotNotFound, "snapshot persistence disabled", nil)
	}
	if err := s.snaps.Delete(id); err != nil {
		return mapStoreErr(err)
	}
	return nil
}

func mapStoreErr(err error) error {
	var notFound *snapshot.ErrNotFound
	if errors.As(err, &notFound) {
		return capture.NewError(capture.CodeSnapshotNotFound, notFound.Error(), nil)
	}
	if strings.Contains(err.Error(), "invalid snapshot id") {
		return capture.NewError(capture.CodeValidation, err.Error(), nil)
	}
	return err
}
