package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"manuscript-assist/internal/assist"
	"manuscript-assist/internal/models"
)

const socketWriteWait = 10 * time.Second

// userQueryParam identifies the caller on WebSocket connections, where
// browsers cannot set custom headers.
const userQueryParam = "user"

// handleSocket serves one request per inbound text message, sequentially.
// A read failure cancels the run in progress.
func (s *Server) handleSocket(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		slog.Warn("websocket upgrade failed", "err", err)
		return nil
	}
	defer conn.Close()
	conn.SetReadLimit(s.cfg.MaxBodyBytes)

	userID := c.Request().Header.Get(UserHeader)
	if userID == "" {
		userID = c.QueryParam(userQueryParam)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages := make(chan []byte)
	go func() {
		defer cancel()
		defer close(messages)
		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					slog.Warn("websocket read", "err", err)
				}
				return
			}
			if kind != websocket.TextMessage {
				continue
			}
			select {
			case messages <- data:
			case <-ctx.Done():
				return
			}
		}
	}()

	sock := &socket{conn: conn}
	for data := range messages {
		if err := s.serveSocketMessage(ctx, sock, data, userID); err != nil {
			slog.Info("websocket closed", "user", userID, "err", err)
			return nil
		}
	}
	return nil
}

// serveSocketMessage runs one request. Only connection-level failures are returned.
func (s *Server) serveSocketMessage(ctx context.Context, sock *socket, data []byte, userID string) error {
	var req assist.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return sock.write(newErrorBody(fmt.Sprintf("invalid JSON payload: %v", err), "invalid_request_error"))
	}

	job, err := s.service.Prepare(req)
	if err != nil {
		if assist.IsClientError(err) {
			return sock.write(newErrorBody(err.Error(), "invalid_request_error"))
		}
		return sock.write(newErrorBody("internal server error", "server_error"))
	}

	res, err := s.service.Run(ctx, job, userID, sock.event)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		slog.Error("process socket request", "feature", job.Spec.Feature, "err", err)
		return sock.write(newErrorBody("internal server error", "server_error"))
	}
	if !res.Succeeded {
		return sock.write(models.TerminalError())
	}
	return nil
}

type socket struct {
	conn *websocket.Conn
}

func (s *socket) event(ev models.OutputEvent) error {
	return s.write(ev)
}

func (s *socket) write(payload any) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(socketWriteWait)); err != nil {
		return fmt.Errorf("set websocket write deadline: %w", err)
	}
	if err := s.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("write websocket message: %w", err)
	}
	return nil
}
