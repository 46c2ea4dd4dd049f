package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/echo/v4/health"
	"github.com/robinjoseph08/golib/echo/v4/middleware/logger"
	"github.com/robinjoseph08/golib/echo/v4/middleware/recovery"
	"github.com/shishobooks/readtrack/pkg/auth"
	"github.com/shishobooks/readtrack/pkg/binder"
	"github.com/shishobooks/readtrack/pkg/cleanups"
	"github.com/shishobooks/readtrack/pkg/config"
	"github.com/shishobooks/readtrack/pkg/entries"
	"github.com/shishobooks/readtrack/pkg/errcodes"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/testutils"
	"github.com/uptrace/bun"
)

func New(cfg *config.Config, db *bun.DB) (*http.Server, error) {
	e := echo.New()

	b, err := binder.New()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	e.Binder = b

	e.Use(logger.Middleware())
	e.Use(recovery.Middleware())
	e.Use(middleware.CORS())

	health.RegisterRoutes(e)

	client, err := gateway.NewFromConfig(cfg)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	authMiddleware := auth.NewMiddleware(client)

	// One orchestrator for the whole process so the in-flight guard covers
	// every request. Handlers scope it to the caller's token.
	orchestrator := lifecycle.New(client, lifecycle.Options{
		DeleteRetryAttempts: cfg.DeleteRetryAttempts,
		DeleteRetryDelay:    cfg.DeleteRetryDelay,
		Journal:             cleanups.NewService(db),
	})

	entries.RegisterRoutes(e, orchestrator, authMiddleware)

	cleanupsGroup := e.Group("/cleanups")
	cleanupsGroup.Use(authMiddleware.Authenticate)
	cleanups.RegisterRoutesWithGroup(cleanupsGroup, db, cfg)

	configGroup := e.Group("/config")
	configGroup.Use(authMiddleware.Authenticate)
	config.RegisterRoutesWithGroup(configGroup, cfg)

	// The fake backend lets end-to-end runs point api_base_url back at this
	// server.
	if cfg.Environment == "test" {
		testutils.RegisterRoutes(e, testutils.NewFakeBackend())
	}

	echo.NotFoundHandler = notFoundHandler
	e.HTTPErrorHandler = errcodes.NewHandler().Handle

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
		Handler:           e,
		ReadHeaderTimeout: 3 * time.Second,
	}
	srv.RegisterOnShutdown(orchestrator.Close)

	return srv, nil
}

func notFoundHandler(c echo.Context) error {
	c.SetPath("/:path")
	return errcodes.NotFound("Page")
}
