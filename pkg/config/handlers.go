package config

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type handler struct {
	cfg *Config
}

// retrieve returns the non-secret settings the client uses to explain
// transition behavior, e.g. how many delete retries happen before a cleanup
// is recorded.
func (h *handler) retrieve(c echo.Context) error {
	return errors.WithStack(c.JSON(http.StatusOK, h.cfg))
}
