package server

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/port"
	"craftedge.io/chatsync/internal/handler"
)

// HTTPServer is the API binary's surface: webhook ingress, sync control
// and the deals read API.
type HTTPServer struct {
	echo *echo.Echo
}

type Config struct {
	WebhookSecret string
}

func NewHTTPServer(
	syncService port.SyncService,
	webhookService port.WebhookService,
	deals port.DealsStorage,
	messages port.MessageStore,
	cfg Config,
) *HTTPServer {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	server := &HTTPServer{echo: e}

	// Initialize handlers
	webhookHandler := handler.NewWebhookHTTPHandler(webhookService, cfg.WebhookSecret)
	syncHandler := handler.NewSyncHTTPHandler(syncService)
	dealsHandler := handler.NewDealsHTTPHandler(deals, messages)

	// Routes
	e.GET("/health", server.healthCheck)
	e.POST("/api/v1/telegram/webhook", webhookHandler.Handle())
	e.POST("/api/v1/sync", syncHandler.Trigger())
	e.GET("/api/v1/sync/:job_id", syncHandler.Status())
	e.GET("/api/v1/deals", dealsHandler.List())
	e.GET("/api/v1/deals/:external_id/messages", dealsHandler.Messages())

	return server
}

func (s *HTTPServer) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "chatsync",
	})
}

func (s *HTTPServer) Start(address string) error {
	log.Infof("Starting HTTP server on %s", address)
	return s.echo.Start(address)
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	log.Info("Shutting down HTTP server")
	return s.echo.Shutdown(ctx)
}
