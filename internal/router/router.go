package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/noseryoung/course-rating/internal/handler"    // HTTP handlers
	"github.com/noseryoung/course-rating/internal/middleware" // JWT authentication and role enforcement
	"github.com/noseryoung/course-rating/internal/model"      // role names
)

// RegisterRoutes registers routes that do not require authentication.
// Currently it exposes only a health check that pings db.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the token endpoints under /v1/auth.  Neither
// requires an existing session.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
}

// RegisterRatings registers rating endpoints.  Any authenticated user may
// submit a rating (subject to limiter) and read or edit it by token; the
// id-based and bulk endpoints are ADMIN only.
func RegisterRatings(e *echo.Echo, h *handler.RatingHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	auth := middleware.JWTAuth(jwtSecret)

	g := e.Group("/v1", auth)
	g.POST("/ratings", h.Create, limiter)
	g.GET("/ratings/:token", h.GetByToken)
	g.PUT("/ratings/:token", h.UpdateByToken)
	g.GET("/me/ratings", h.Mine)

	admin := e.Group("/v1/ratings", auth, middleware.RequireRole(model.RoleAdmin))
	admin.GET("", h.List)
	admin.POST("/bulk", h.Bulk)
	admin.GET("/id/:id", h.GetByID)
	admin.PUT("/id/:id", h.UpdateByID)
	admin.DELETE("/id/:id", h.Delete)
}

// RegisterUsers registers the ADMIN-only user administration endpoints.
func RegisterUsers(e *echo.Echo, h *handler.UserHandler, jwtSecret string) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.GET("/users", h.List)
	g.GET("/users/:id", h.Get)
	g.POST("/users", h.Create)
	g.POST("/users/bulk", h.Import)
	g.PUT("/users/:id", h.Update)
	g.DELETE("/users/:id", h.Delete)
	g.DELETE("/users/by-username/:username", h.DeleteByUsername)
	g.DELETE("/admin/users/stale", h.DeleteStale)
}

// RegisterCatalogue registers the course catalogue.  Reads are public and
// go through cache; writes are ADMIN only.
func RegisterCatalogue(e *echo.Echo, h *handler.CourseHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	pub := e.Group("/v1", cache)
	pub.GET("/courses", h.ListCourses)
	pub.GET("/courses/search", h.SearchCourses)
	pub.GET("/courses/:id", h.GetCourse)
	pub.GET("/locations", h.ListLocations)

	admin := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	admin.POST("/courses", h.CreateCourse)
	admin.POST("/locations", h.CreateLocation)
}
