package rest

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Request is a client message on the realtime socket.
type Request struct {
	Type     string   `json:"type"`
	Entities []string `json:"entities"`
}

func (h *Handler) handleRealtime(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error().Err(err).Str("module", "socket").Msg("failed to upgrade websocket")
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	input := make(chan []string)
	events := h.signal.Realtime(ctx, input)

	go func() {
		defer cancel()
		for {
			var req Request
			err := ws.ReadJSON(&req)
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					h.logger.Debug().Err(err).Str("module", "socket").Msg("websocket closed")
				}
				return
			}

			switch req.Type {
			case "listen":
				select {
				case input <- req.Entities:
					h.logger.Debug().Strs("entities", req.Entities).Str("module", "socket").Msg("socket subscribe")
				case <-ctx.Done():
					return
				}
			case "h": // heartbeat
			default:
				h.logger.Info().Str("type", req.Type).Str("module", "socket").Msg("unknown request type")
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if err := ws.WriteJSON(event); err != nil {
				h.logger.Error().Err(err).Str("module", "socket").Msg("error writing message")
				return nil
			}
		}
	}
}
