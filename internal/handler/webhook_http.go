package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// WebhookHTTPHandler receives platform callbacks, authenticates them via
// the shared secret header and hands the parsed update to the webhook
// service. The platform retries non-2xx responses, so only genuinely
// retryable failures return errors.
type WebhookHTTPHandler struct {
	webhookService port.WebhookService
	secretToken    string
}

func NewWebhookHTTPHandler(webhookService port.WebhookService, secretToken string) *WebhookHTTPHandler {
	return &WebhookHTTPHandler{
		webhookService: webhookService,
		secretToken:    secretToken,
	}
}

func (h *WebhookHTTPHandler) Handle() echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.secretToken != "" && c.Request().Header.Get(secretTokenHeader) != h.secretToken {
			log.Warn("Webhook request with missing or wrong secret token")
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": "invalid secret token",
			})
		}

		body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "unreadable body",
			})
		}

		update, err := domain.ParseUpdate(body)
		if err != nil {
			if errors.Is(err, domain.ErrMalformedEvent) {
				log.WithError(err).Warn("Dropping malformed webhook payload")
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "malformed payload",
				})
			}
			return err
		}

		if err := h.webhookService.Handle(c.Request().Context(), update); err != nil {
			log.WithError(err).WithField("update_id", update.UpdateID).Error("Webhook processing failed")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "processing failed",
			})
		}

		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
