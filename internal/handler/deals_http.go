package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

// DealsHTTPHandler serves the read side: visible deals and their message
// history. Deals still inside the two-phase sync gate never appear here.
type DealsHTTPHandler struct {
	deals    port.DealsStorage
	messages port.MessageStore
}

func NewDealsHTTPHandler(deals port.DealsStorage, messages port.MessageStore) *DealsHTTPHandler {
	return &DealsHTTPHandler{
		deals:    deals,
		messages: messages,
	}
}

func (h *DealsHTTPHandler) List() echo.HandlerFunc {
	return func(c echo.Context) error {
		var ownerID int64
		if raw := c.QueryParam("owner_user_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "owner_user_id must be numeric",
				})
			}
			ownerID = id
		}

		deals, err := h.deals.ListVisibleDeals(c.Request().Context())
		if err != nil {
			log.WithError(err).Error("Failed to list deals")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to list deals",
			})
		}

		if ownerID != 0 {
			filtered := deals[:0]
			for _, d := range deals {
				if d.OwnerUserID == ownerID {
					filtered = append(filtered, d)
				}
			}
			deals = filtered
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"items": deals,
			"count": len(deals),
		})
	}
}

func (h *DealsHTTPHandler) Messages() echo.HandlerFunc {
	return func(c echo.Context) error {
		externalID := c.Param("external_id")

		ctx := c.Request().Context()
		deal, err := h.deals.GetDealByExternalID(ctx, externalID)
		if err != nil {
			if errors.Is(err, domain.ErrDealNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": "deal not found",
				})
			}
			return err
		}
		if !deal.Visible() {
			// Still syncing; hide it exactly like the listing does.
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "deal not found",
			})
		}

		messages, err := h.messages.ListMessages(ctx, externalID)
		if err != nil {
			log.WithError(err).WithField("deal", externalID).Error("Failed to list messages")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to list messages",
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"deal":  deal,
			"items": messages,
			"count": len(messages),
		})
	}
}
