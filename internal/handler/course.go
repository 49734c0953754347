// This file holds the course catalogue endpoints.  Listing is public and
// served through the response cache; creating courses and locations is
// admin-only and clears the cache.

package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/repository"
)

// CourseStore is implemented by *repository.CourseRepo.
type CourseStore interface {
	Create(ctx context.Context, c *model.Course) error
	FindByID(ctx context.Context, id uint64) (*model.Course, error)
	FindAll(ctx context.Context) ([]model.Course, error)
	Search(ctx context.Context, q repository.CourseSearchQuery) ([]model.Course, int64, error)
}

// LocationStore is implemented by *repository.LocationRepo.
type LocationStore interface {
	Create(ctx context.Context, l *model.Location) error
	FindAll(ctx context.Context) ([]model.Location, error)
}

// Invalidator drops cached listings.  *middleware.ResponseCache implements it.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

type CourseHandler struct {
	Courses   CourseStore
	Locations LocationStore
	Cache     Invalidator
	Log       logging.Logger
}

func NewCourseHandler(courses CourseStore, locations LocationStore, cache Invalidator, log logging.Logger) *CourseHandler {
	return &CourseHandler{Courses: courses, Locations: locations, Cache: cache, Log: log}
}

type locationResp struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type courseResp struct {
	ID           uint64       `json:"id"`
	CourseNumber string       `json:"course_number"`
	Location     locationResp `json:"location"`
	CourseLead   userRef      `json:"course_lead"`
}

func toCourseResp(c model.Course) courseResp {
	return courseResp{
		ID:           c.ID,
		CourseNumber: c.CourseNumber,
		Location:     locationResp{ID: c.Location.ID, Name: c.Location.Name},
		CourseLead:   userRef{ID: c.CourseLead.ID, FirstName: c.CourseLead.FirstName, LastName: c.CourseLead.LastName},
	}
}

// ListCourses: GET /v1/courses.
func (h *CourseHandler) ListCourses(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	courses, err := h.Courses.FindAll(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]courseResp, 0, len(courses))
	for _, co := range courses {
		out = append(out, toCourseResp(co))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// SearchCourses: GET /v1/courses/search?number=&location=&lead=&page=&page_size=
func (h *CourseHandler) SearchCourses(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	page = min(max(page, 1), repository.MaxSearchPage)
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	ps = min(ps, repository.MaxSearchPageSize)
	q := repository.CourseSearchQuery{
		Number:   strings.TrimSpace(c.QueryParam("number")),
		Location: strings.TrimSpace(c.QueryParam("location")),
		Lead:     strings.TrimSpace(c.QueryParam("lead")),
		Page:     page,
		PageSize: ps,
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	courses, total, err := h.Courses.Search(ctx, q)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]courseResp, 0, len(courses))
	for _, co := range courses {
		out = append(out, toCourseResp(co))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      out,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}

// GetCourse: GET /v1/courses/:id.
func (h *CourseHandler) GetCourse(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	co, err := h.Courses.FindByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toCourseResp(*co))
}

// ListLocations: GET /v1/locations.
func (h *CourseHandler) ListLocations(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	locs, err := h.Locations.FindAll(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]locationResp, 0, len(locs))
	for _, l := range locs {
		out = append(out, locationResp{ID: l.ID, Name: l.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// CreateCourse: POST /v1/courses (admin).
func (h *CourseHandler) CreateCourse(c echo.Context) error {
	var req struct {
		CourseNumber string `json:"course_number"`
		LocationID   uint64 `json:"location_id"`
		CourseLeadID uint64 `json:"course_lead_id"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.CourseNumber = strings.TrimSpace(req.CourseNumber)
	if req.CourseNumber == "" {
		return badRequest(c, "course_number required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	co := &model.Course{
		CourseNumber: req.CourseNumber,
		Location:     model.Location{Entity: model.Entity{ID: req.LocationID}},
		CourseLead:   model.User{Entity: model.Entity{ID: req.CourseLeadID}},
	}
	if err := h.Courses.Create(ctx, co); err != nil {
		return fail(c, h.Log, err)
	}
	h.invalidate(ctx)

	// reload so the response carries names
	if full, err := h.Courses.FindByID(ctx, co.ID); err == nil {
		co = full
	}
	return c.JSON(http.StatusCreated, toCourseResp(*co))
}

// CreateLocation: POST /v1/locations (admin).
func (h *CourseHandler) CreateLocation(c echo.Context) error {
	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return badRequest(c, "name required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	l := &model.Location{Name: req.Name}
	if err := h.Locations.Create(ctx, l); err != nil {
		return fail(c, h.Log, err)
	}
	h.invalidate(ctx)
	return c.JSON(http.StatusCreated, locationResp{ID: l.ID, Name: l.Name})
}

func (h *CourseHandler) invalidate(ctx context.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Invalidate(ctx); err != nil {
		h.Log.Warn(ctx, "course cache not cleared", "err", err)
	}
}
