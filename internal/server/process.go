package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/models"
)

func (s *Server) handleProcess(c echo.Context) error {
	var req assist.Request
	if err := decodeRequestBody(c, &req, s.cfg.MaxBodyBytes); err != nil {
		return err
	}

	job, err := s.service.Prepare(req)
	if err != nil {
		return toHTTPError(err)
	}

	stream, err := startEventStream(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	userID := c.Request().Header.Get(UserHeader)
	res, err := s.service.Run(ctx, job, userID, stream.event)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			slog.Info("client disconnected", "feature", job.Spec.Feature, "user", userID)
			return nil
		}
		slog.Error("process request", "feature", job.Spec.Feature, "err", err)
		return nil
	}
	if !res.Succeeded {
		if err := stream.send(models.TerminalError()); err != nil {
			slog.Warn("write terminal error", "err", err)
		}
	}
	return nil
}

// eventStream writes one JSON object per line and flushes after each.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func startEventStream(c echo.Context) (*eventStream, error) {
	writer := c.Response().Writer
	flusher, ok := writer.(http.Flusher)
	if !ok {
		slog.Error("http writer does not support flushing")
		return nil, requestError{
			Status:  http.StatusInternalServerError,
			Message: "server does not support streaming responses",
			Type:    "server_error",
		}
	}

	header := c.Response().Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")

	c.Response().WriteHeader(http.StatusOK)
	flusher.Flush()

	return &eventStream{w: c.Response(), flusher: flusher}, nil
}

func (e *eventStream) event(ev models.OutputEvent) error {
	return e.send(ev)
}

func (e *eventStream) send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal stream event: %w", err)
	}
	data = append(data, '\n')
	if _, err := e.w.Write(data); err != nil {
		return fmt.Errorf("write stream event: %w", err)
	}
	e.flusher.Flush()
	return nil
}
