// Copyright (C) 2025 Pixel-Groove Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/themariolinml/Pixel-Groove/services/engine/runs"
	"github.com/themariolinml/Pixel-Groove/services/orchestrator/observability"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPongTimeout  = 60 * time.Second
	wsPingPeriod   = 15 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// StreamExecutionEventsWS handles GET /executions/:execution_id/events/ws,
// a WebSocket mirror of the SSE stream. Each event goes out as one JSON
// text frame; the connection closes normally after the terminal event.
// The subscription is the same one SSE uses, so a dropped socket leaves
// the run registered for reconnects.
func StreamExecutionEventsWS(registry *runs.Executions, metrics *observability.ExecutionMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()

		stream, err := registry.Stream(ctx, c.Param("execution_id"))
		if err != nil {
			respondError(c, err)
			return
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			slog.Error("websocket upgrade failed", "error", err)
			return
		}
		defer ws.Close()

		if metrics != nil {
			metrics.StreamOpened(observability.TransportWebSocket)
			defer metrics.StreamClosed(observability.TransportWebSocket)
		}

		// The client never sends data frames, but a read pump is how
		// gorilla surfaces close frames and pong replies.
		ws.SetReadLimit(512)
		_ = ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
		})
		go func() {
			defer cancel()
			for {
				if _, _, err := ws.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-stream:
				if !ok {
					deadline := time.Now().Add(wsWriteTimeout)
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
					return
				}
				_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := ws.WriteJSON(ev); err != nil {
					slog.Debug("websocket write failed, dropping client", "error", err)
					return
				}
				if metrics != nil {
					metrics.RecordEvent(string(ev.Type))
				}
			case <-ticker.C:
				if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
