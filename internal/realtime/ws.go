package realtime

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const writeTimeout = 10 * time.Second

// WSHandler upgrades /ws/chats/:user_id requests and streams that user's
// notifications until the client disconnects.
type WSHandler struct {
	hub *Hub
}

func NewWSHandler(hub *Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

func (h *WSHandler) Serve(c echo.Context) error {
	userID, err := strconv.ParseInt(c.Param("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user id")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx := c.Request().Context()
	notifications, cancel := h.hub.Subscribe(userID)
	defer cancel()

	log.WithField("user_id", userID).Debug("Websocket subscriber connected")

	// Reads are only consumed to detect the client going away.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return nil
		case <-readDone:
			return nil
		case n, ok := <-notifications:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return nil
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, n)
			cancelWrite()
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Debug("Websocket write failed, closing")
				return nil
			}
		}
	}
}
