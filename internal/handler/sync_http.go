package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/core/port"
)

type SyncHTTPHandler struct {
	syncService port.SyncService
}

type TriggerSyncRequest struct {
	Scope   string `json:"scope"`
	MaxDate string `json:"max_date"`
}

type TriggerSyncResponse struct {
	Message string `json:"message"`
	JobID   string `json:"job_id"`
}

func NewSyncHTTPHandler(syncService port.SyncService) *SyncHTTPHandler {
	return &SyncHTTPHandler{syncService: syncService}
}

// Trigger starts a background sync run and returns its job id. A run
// already holding the scope answers 409 so schedulers can tell overlap
// from failure.
func (h *SyncHTTPHandler) Trigger() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req TriggerSyncRequest
		if err := c.Bind(&req); err != nil {
			log.WithError(err).Error("Failed to bind request")
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": "Invalid request payload",
			})
		}

		var maxDate *time.Time
		if req.MaxDate != "" {
			t, err := time.Parse(time.RFC3339, req.MaxDate)
			if err != nil {
				return c.JSON(http.StatusBadRequest, map[string]string{
					"error": "max_date must be RFC3339",
				})
			}
			maxDate = &t
		}

		jobID, err := h.syncService.Launch(c.Request().Context(), req.Scope, maxDate)
		if err != nil {
			if errors.Is(err, domain.ErrLockContended) || errors.Is(err, domain.ErrAlreadyRunning) {
				return c.JSON(http.StatusConflict, map[string]string{
					"error": "a sync run is already in progress",
				})
			}
			log.WithError(err).Error("Failed to launch sync")
			return c.JSON(http.StatusInternalServerError, map[string]string{
				"error": "failed to launch sync",
			})
		}

		return c.JSON(http.StatusAccepted, TriggerSyncResponse{
			Message: "Sync started",
			JobID:   jobID,
		})
	}
}

// Status reports the cursor of a sync job by id.
func (h *SyncHTTPHandler) Status() echo.HandlerFunc {
	return func(c echo.Context) error {
		cursor, err := h.syncService.Status(c.Request().Context(), c.Param("job_id"))
		if err != nil {
			if errors.Is(err, domain.ErrSyncJobNotFound) {
				return c.JSON(http.StatusNotFound, map[string]string{
					"error": "sync job not found",
				})
			}
			return err
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"job_id":     cursor.TaskID,
			"status":     cursor.Status,
			"processed":  cursor.Processed,
			"pages":      cursor.Pages,
			"error":      cursor.ErrorMessage,
			"started_at": cursor.StartedAt,
			"updated_at": cursor.UpdatedAt,
		})
	}
}
