package cleanups

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shishobooks/readtrack/pkg/auth"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/models"
)

type handler struct {
	cleanupService *Service
	maxAttempts    int
}

func (h *handler) list(c echo.Context) error {
	ctx := c.Request().Context()

	params := ListCleanupsQuery{}
	if err := c.Bind(&params); err != nil {
		return errors.WithStack(err)
	}

	ownerID, err := auth.OwnerID(c)
	if err != nil {
		return errors.WithStack(err)
	}

	cleanups, total, err := h.cleanupService.ListCleanupsWithTotal(ctx, ListCleanupsOptions{
		Limit:    &params.Limit,
		Offset:   &params.Offset,
		OwnerID:  &ownerID,
		Statuses: params.Status,
	})
	if err != nil {
		return errors.WithStack(err)
	}

	resp := struct {
		Cleanups []*models.Cleanup `json:"cleanups"`
		Total    int               `json:"total"`
	}{cleanups, total}

	return errors.WithStack(c.JSON(http.StatusOK, resp))
}

func (h *handler) retry(c echo.Context) error {
	ctx := c.Request().Context()

	cleanup, err := h.retrieveOwned(c)
	if err != nil {
		return errors.WithStack(err)
	}

	client, err := auth.Client(c)
	if err != nil {
		return errors.WithStack(err)
	}

	// A manual retry always gets one more attempt, even on a failed row.
	max := h.maxAttempts
	if cleanup.Attempts >= max {
		max = cleanup.Attempts + 1
	}
	if err := h.cleanupService.Retry(ctx, cleanup, client, max); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, cleanup))
}

func (h *handler) dismiss(c echo.Context) error {
	ctx := c.Request().Context()

	cleanup, err := h.retrieveOwned(c)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := h.cleanupService.Dismiss(ctx, cleanup); err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(c.JSON(http.StatusOK, cleanup))
}

func (h *handler) retrieveOwned(c echo.Context) (*models.Cleanup, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		return nil, errcodes.NotFound("Cleanup")
	}

	ownerID, err := auth.OwnerID(c)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return h.cleanupService.RetrieveCleanup(c.Request().Context(), RetrieveCleanupOptions{
		ID:      &id,
		OwnerID: &ownerID,
	})
}
