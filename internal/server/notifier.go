package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/realtime"
)

// NotifierServer is the notifier binary's surface: websocket subscriptions
// only.
type NotifierServer struct {
	echo *echo.Echo
}

func NewNotifierServer(hub *realtime.Hub) *NotifierServer {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &NotifierServer{echo: e}

	wsHandler := realtime.NewWSHandler(hub)

	e.GET("/health", server.healthCheck)
	e.GET("/ws/chats/:user_id", wsHandler.Serve)

	return server
}

func (s *NotifierServer) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "notifier",
	})
}

func (s *NotifierServer) Start(address string) error {
	log.Infof("Starting notifier server on %s", address)
	return s.echo.Start(address)
}

func (s *NotifierServer) Shutdown(ctx context.Context) error {
	log.Info("Shutting down notifier server")
	return s.echo.Shutdown(ctx)
}
