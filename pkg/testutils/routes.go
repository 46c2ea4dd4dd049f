// Package testutils provides an in-memory reading backend for tests and
// test-only API endpoints.
// These routes are only registered when ENVIRONMENT=test.
package testutils

import (
	"github.com/labstack/echo/v4"
)

const routePrefix = "/test/backend"

// RegisterRoutes mounts the fake backend under /test/backend so end-to-end
// runs can point api_base_url at the server itself.
// These endpoints should ONLY be registered in test environments.
func RegisterRoutes(e *echo.Echo, b *FakeBackend) {
	e.POST("/test/reset", b.reset)
	b.mount(e.Group(routePrefix), routePrefix)
}
