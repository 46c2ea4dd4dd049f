package cleanups

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/uptrace/bun"
)

// RegisterRoutesWithGroup registers cleanup routes on a group that already
// runs the auth middleware.
func RegisterRoutesWithGroup(g *echo.Group, db *bun.DB, cfg *config.Config) {
	h := &handler{
		cleanupService: NewService(db),
		maxAttempts:    cfg.CleanupMaxAttempts,
	}

	g.GET("", h.list)
	g.POST("/:id/retry", h.retry)
	g.DELETE("/:id", h.dismiss)
}
