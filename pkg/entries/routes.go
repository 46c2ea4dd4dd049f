package entries

import (
	"github.com/labstack/echo/v4"
	"github.com/shishobooks/readtrack/pkg/auth"
	"github.com/shishobooks/readtrack/pkg/gateway"
	"github.com/shishobooks/readtrack/pkg/lifecycle"
	"github.com/shishobooks/readtrack/pkg/models"
)

// RegisterRoutes mounts the four collections. Every route requires a bearer
// token.
func RegisterRoutes(e *echo.Echo, orchestrator *lifecycle.Orchestrator, authMiddleware *auth.Middleware) {
	h := &handler{orchestrator: orchestrator}

	wishlists := collection[models.WishlistEntry, models.WishlistInput, WishlistPayload]{
		h:    h,
		kind: models.KindWishlist,
		resource: func(c *gateway.Client) gateway.Resource[models.WishlistEntry, models.WishlistInput] {
			return c.Wishlists()
		},
		input: WishlistPayload.input,
	}
	w := e.Group("/wishlists")
	w.Use(authMiddleware.Authenticate)
	w.GET("", wishlists.list)
	w.POST("", h.createWishlist)
	w.GET("/check-duplicate", wishlists.checkDuplicate)
	w.POST("/start-reading", h.startReading)
	w.GET("/:id", wishlists.retrieve)
	w.PUT("/:id", wishlists.update)
	w.DELETE("/:id", wishlists.delete)

	reading := collection[models.CurrentlyReadingEntry, models.CurrentlyReadingInput, CurrentlyReadingPayload]{
		h:        h,
		kind:     models.KindCurrentlyReading,
		resource: currentlyReading,
		input:    CurrentlyReadingPayload.input,
	}
	cr := e.Group("/currently-reading")
	cr.Use(authMiddleware.Authenticate)
	cr.GET("", reading.list)
	cr.POST("", h.createCurrentlyReading)
	cr.GET("/check-duplicate", reading.checkDuplicate)
	cr.GET("/overdue", h.listOverdue)
	cr.POST("/mark-as-read", h.markAsRead)
	cr.POST("/drop", h.drop)
	cr.GET("/:id", reading.retrieve)
	cr.PUT("/:id", reading.update)
	cr.PUT("/:id/progress", h.updateProgress)
	cr.DELETE("/:id", reading.delete)

	completed := collection[models.CompletedBookEntry, models.CompletedBookInput, CompletedPayload]{
		h:    h,
		kind: models.KindCompleted,
		resource: func(c *gateway.Client) gateway.Resource[models.CompletedBookEntry, models.CompletedBookInput] {
			return c.Completed()
		},
		input: CompletedPayload.input,
	}
	b := e.Group("/books")
	b.Use(authMiddleware.Authenticate)
	b.GET("", completed.list)
	b.POST("", h.createCompleted)
	b.GET("/check-duplicate", completed.checkDuplicate)
	b.GET("/:id", completed.retrieve)
	b.PUT("/:id", completed.update)
	b.DELETE("/:id", completed.delete)

	dropped := collection[models.DroppedBookEntry, models.DroppedBookInput, DroppedPayload]{
		h:    h,
		kind: models.KindDropped,
		resource: func(c *gateway.Client) gateway.Resource[models.DroppedBookEntry, models.DroppedBookInput] {
			return c.Dropped()
		},
		input: DroppedPayload.input,
	}
	d := e.Group("/dropped-books")
	d.Use(authMiddleware.Authenticate)
	d.GET("", dropped.list)
	d.POST("", h.createDropped)
	d.GET("/check-duplicate", dropped.checkDuplicate)
	d.POST("/resume-reading", h.resumeReading)
	d.GET("/:id", dropped.retrieve)
	d.PUT("/:id", dropped.update)
	d.DELETE("/:id", dropped.delete)
}
