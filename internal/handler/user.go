package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/model"
)

// UserService is what the user administration endpoints need.
// *service.UserService implements it.
type UserService interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	FindAll(ctx context.Context) ([]model.User, error)
	FindAllByOrderByJoinYear(ctx context.Context) ([]model.User, error)
	FindAllApprentices(ctx context.Context) ([]model.User, error)
	FindAllCourseLeaders(ctx context.Context) ([]model.User, error)
	Save(ctx context.Context, u *model.User) error
	SaveAll(ctx context.Context, users []*model.User) error
	Update(ctx context.Context, newUser *model.User, id uint64) error
	DeleteByID(ctx context.Context, id uint64) error
	DeleteByUsername(ctx context.Context, username string) error
	DeleteOldUsers(ctx context.Context, cutoff time.Time) (int, error)
}

// UserHandler serves the admin-only /v1/users endpoints.
type UserHandler struct {
	Users UserService
	Log   logging.Logger
}

func NewUserHandler(users UserService, log logging.Logger) *UserHandler {
	return &UserHandler{Users: users, Log: log}
}

// ----- DTOs -----

type userReq struct {
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Password  string   `json:"password"`
	Email     *string  `json:"email"`
	JoinYear  int      `json:"join_year"`
	Roles     []string `json:"roles"`
}

// importUserReq is one record of a bulk import.  Password is stored as
// sent, so it is expected to be a hash already.
type importUserReq struct {
	userReq
	CreationDate *time.Time `json:"creation_date"`
}

type userResp struct {
	ID           uint64     `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        *string    `json:"email,omitempty"`
	JoinYear     int        `json:"join_year"`
	CreationDate *time.Time `json:"creation_date,omitempty"`
	Roles        []string   `json:"roles"`
}

func toUserResp(u model.User) userResp {
	return userResp{
		ID:           u.ID,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		Email:        u.Email,
		JoinYear:     u.JoinYear,
		CreationDate: u.CreationDate,
		Roles:        u.RoleNames(),
	}
}

func (req userReq) validate() string {
	if strings.TrimSpace(req.LastName) == "" {
		return "last_name required"
	}
	if req.Password == "" {
		return "password required"
	}
	return ""
}

func (req userReq) toModel() *model.User {
	u := &model.User{
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Password:  req.Password,
		Email:     req.Email,
		JoinYear:  req.JoinYear,
	}
	for _, name := range req.Roles {
		if name = strings.TrimSpace(name); name != "" {
			u.Roles = append(u.Roles, model.Role{Name: name})
		}
	}
	return u
}

// List: GET /v1/users[?order=join_year|role=apprentices|course_leaders].
func (h *UserHandler) List(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	find := h.Users.FindAll
	switch {
	case c.QueryParam("order") == "join_year":
		find = h.Users.FindAllByOrderByJoinYear
	case c.QueryParam("role") == "apprentices":
		find = h.Users.FindAllApprentices
	case c.QueryParam("role") == "course_leaders":
		find = h.Users.FindAllCourseLeaders
	case c.QueryParam("role") != "" || (c.QueryParam("order") != ""):
		return badRequest(c, "unknown filter")
	}

	users, err := find(ctx)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := make([]userResp, 0, len(users))
	for _, u := range users {
		out = append(out, toUserResp(u))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get: GET /v1/users/:id.
func (h *UserHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.FindByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(*u))
}

// Create: POST /v1/users.
func (h *UserHandler) Create(c echo.Context) error {
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if msg := req.validate(); msg != "" {
		return badRequest(c, msg)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u := req.toModel()
	if err := h.Users.Save(ctx, u); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, toUserResp(*u))
}

// Import: POST /v1/users/bulk.
func (h *UserHandler) Import(c echo.Context) error {
	var reqs []importUserReq
	if err := c.Bind(&reqs); err != nil {
		return badRequest(c, "invalid body")
	}
	if len(reqs) == 0 {
		return badRequest(c, "empty batch")
	}
	users := make([]*model.User, 0, len(reqs))
	for _, req := range reqs {
		if msg := req.validate(); msg != "" {
			return badRequest(c, msg)
		}
		u := req.toModel()
		u.CreationDate = req.CreationDate
		users = append(users, u)
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Users.SaveAll(ctx, users); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"count": len(users)})
}

// Update: PUT /v1/users/:id.
func (h *UserHandler) Update(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req userReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if msg := req.validate(); msg != "" {
		return badRequest(c, msg)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u := req.toModel()
	if err := h.Users.Update(ctx, u, id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, toUserResp(*u))
}

// Delete: DELETE /v1/users/:id.
func (h *UserHandler) Delete(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Users.DeleteByID(ctx, id); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteByUsername: DELETE /v1/users/by-username/:username.
func (h *UserHandler) DeleteByUsername(c echo.Context) error {
	name := strings.TrimSpace(c.Param("username"))
	if name == "" {
		return badRequest(c, "username required")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	if err := h.Users.DeleteByUsername(ctx, name); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// DeleteStale: DELETE /v1/admin/users/stale?before=RFC3339.
func (h *UserHandler) DeleteStale(c echo.Context) error {
	before, err := time.Parse(time.RFC3339, c.QueryParam("before"))
	if err != nil {
		return badRequest(c, "before must be an RFC3339 timestamp")
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	n, err := h.Users.DeleteOldUsers(ctx, before)
	if err != nil {
		// partial sweeps still report what was removed
		h.Log.Error(ctx, "stale user sweep incomplete", "deleted", n, "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sweep incomplete", "deleted": n})
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}
