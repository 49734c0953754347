package handler

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/middleware"
	"github.com/noseryoung/course-rating/internal/model"
)

// RatingService is what the rating endpoints need.  *service.RatingService
// implements it.
type RatingService interface {
	FindByID(ctx context.Context, id uint64) (*model.Rating, error)
	FindByToken(ctx context.Context, token string) (*model.Rating, error)
	FindByUser(ctx context.Context, userID uint64) ([]model.Rating, error)
	FindAll(ctx context.Context) ([]model.Rating, error)
	FindAllOrdered(ctx context.Context) ([]model.Rating, error)
	Save(ctx context.Context, r *model.Rating) (bool, error)
	SaveAll(ctx context.Context, ratings []*model.Rating) error
	Update(ctx context.Context, newRating *model.Rating, id uint64) error
	UpdateByToken(ctx context.Context, newRating *model.Rating, token string) error
	DeleteByID(ctx context.Context, id uint64) error
}

// UserLookup resolves rating authors.
type UserLookup interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
}

// CourseLookup resolves rated courses.  *repository.CourseRepo implements it.
type CourseLookup interface {
	FindByID(ctx context.Context, id uint64) (*model.Course, error)
}

// RatingHandler serves /v1/ratings.  Authenticated users submit and edit
// their own ratings by token; admins manage all ratings by id.
type RatingHandler struct {
	Ratings RatingService
	Users   UserLookup
	Courses CourseLookup
	Log     logging.Logger
}

func NewRatingHandler(ratings RatingService, users UserLookup, courses CourseLookup, log logging.Logger) *RatingHandler {
	return &RatingHandler{Ratings: ratings, Users: users, Courses: courses, Log: log}
}

// ----- DTOs -----

type ratingReq struct {
	CourseID uint64 `json:"course_id"`
	Score    int    `json:"score"`
	Comment  string `json:"comment"`
}

// adminRatingReq also names the author.
type adminRatingReq struct {
	ratingReq
	UserID uint64 `json:"user_id"`
}

type userRef struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}
type courseRef struct {
	ID           uint64 `json:"id"`
	CourseNumber string `json:"course_number"`
	LeadID       uint64 `json:"course_lead_id"`
}
type ratingResp struct {
	ID        uint64    `json:"id"`
	Token     string    `json:"token"`
	User      userRef   `json:"user"`
	Course    courseRef `json:"course"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func toRatingResp(r model.Rating) ratingResp {
	return ratingResp{
		ID:        r.ID,
		Token:     r.Token,
		User:      userRef{ID: r.User.ID, FirstName: r.User.FirstName, LastName: r.User.LastName},
		Course:    courseRef{ID: r.Course.ID, CourseNumber: r.Course.CourseNumber, LeadID: r.Course.CourseLead.ID},
		Score:     r.Score,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
	}
}

func toRatingList(rs []model.Rating) []ratingResp {
	out := make([]ratingResp, 0, len(rs))
	for _, r := range rs {
		out = append(out, toRatingResp(r))
	}
	return out
}

// build validates req and resolves the author and the course into a new
// Rating.  A non-empty message means the request is invalid.
func (h *RatingHandler) build(ctx context.Context, req ratingReq, userID uint64) (*model.Rating, string, error) {
	r := &model.Rating{Score: req.Score, Comment: strings.TrimSpace(req.Comment)}
	if req.CourseID == 0 {
		return nil, "course_id required", nil
	}
	if !r.ValidScore() {
		return nil, "score must be between 1 and 5", nil
	}
	u, err := h.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	course, err := h.Courses.FindByID(ctx, req.CourseID)
	if err != nil {
		return nil, "", err
	}
	r.User = *u
	r.Course = *course
	return r, "", nil
}

// Create: POST /v1/ratings.  The author is the caller.
func (h *RatingHandler) Create(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req ratingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	r, msg, err := h.build(ctx, req, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if msg != "" {
		return badRequest(c, msg)
	}

	created, err := h.Ratings.Save(ctx, r)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if !created {
		return c.JSON(http.StatusConflict, echo.Map{"created": false, "error": "course already rated"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"created": true, "id": r.ID, "token": r.Token})
}

// Mine: GET /v1/me/ratings.
func (h *RatingHandler) Mine(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	rs, err := h.Ratings.FindByUser(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toRatingList(rs)})
}

// GetByToken: GET /v1/ratings/:token.
func (h *RatingHandler) GetByToken(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Ratings.FindByToken(ctx, c.Param("token"))
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toRatingResp(*r))
}

// UpdateByToken: PUT /v1/ratings/:token.  Only the author or an admin may
// replace a rating; the author stays the same.
func (h *RatingHandler) UpdateByToken(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req ratingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	token := c.Param("token")

	ctx, cancel := requestCtx(c)
	defer cancel()

	current, err := h.Ratings.FindByToken(ctx, token)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if current.User.ID != uid && !slices.Contains(middleware.Roles(c), model.RoleAdmin) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}

	r, msg, err := h.build(ctx, req, current.User.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Ratings.UpdateByToken(ctx, r, token); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toRatingResp(*r))
}

// List: GET /v1/ratings[?ordered=true].
func (h *RatingHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	find := h.Ratings.FindAll
	if c.QueryParam("ordered") == "true" {
		find = h.Ratings.FindAllOrdered
	}
	rs, err := find(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": toRatingList(rs)})
}

// GetByID: GET /v1/ratings/id/:id.
func (h *RatingHandler) GetByID(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Ratings.FindByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toRatingResp(*r))
}

// UpdateByID: PUT /v1/ratings/id/:id.
func (h *RatingHandler) UpdateByID(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req adminRatingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if req.UserID == 0 {
		return badRequest(c, "user_id required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	r, msg, err := h.build(ctx, req.ratingReq, req.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if msg != "" {
		return badRequest(c, msg)
	}
	if err := h.Ratings.Update(ctx, r, id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toRatingResp(*r))
}

// Delete: DELETE /v1/ratings/id/:id.  Deleting a missing rating succeeds.
func (h *RatingHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Ratings.DeleteByID(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Bulk: POST /v1/ratings/bulk.  The batch is stored as a whole without
// duplicate checks.
func (h *RatingHandler) Bulk(c echo.Context) error {
	var reqs []adminRatingReq
	if err := c.Bind(&reqs); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(reqs) == 0 {
		return badRequest(c, "empty batch")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	batch := make([]*model.Rating, 0, len(reqs))
	for _, req := range reqs {
		if req.UserID == 0 {
			return badRequest(c, "user_id required")
		}
		r, msg, err := h.build(ctx, req.ratingReq, req.UserID)
		if err != nil {
			return fail(c, h.Log, err)
		}
		if msg != "" {
			return badRequest(c, msg)
		}
		batch = append(batch, r)
	}
	if err := h.Ratings.SaveAll(ctx, batch); err != nil {
		return fail(c, h.Log, err)
	}

	tokens := make([]string, 0, len(batch))
	for _, r := range batch {
		tokens = append(tokens, r.Token)
	}
	return c.JSON(http.StatusCreated, echo.Map{"count": len(batch), "tokens": tokens})
}
