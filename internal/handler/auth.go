package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/noseryoung/course-rating/internal/config"
	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/repository"
	"github.com/noseryoung/course-rating/internal/utils"
)

// Authenticator checks credentials.  *service.UserService implements it.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*model.User, error)
	FindByID(ctx context.Context, id uint64) (*model.User, error)
}

// RefreshStore keeps hashed refresh tokens.  *repository.RefreshTokenRepo
// implements it.
type RefreshStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Validate(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	Revoke(ctx context.Context, tokenHash string) error
}

// AuthHandler issues access and refresh tokens.
type AuthHandler struct {
	Cfg    config.AuthConfig
	Users  Authenticator
	Tokens RefreshStore
	Log    logging.Logger
}

func NewAuthHandler(cfg config.AuthConfig, users Authenticator, tokens RefreshStore, log logging.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Tokens: tokens, Log: log}
}

// ----- DTOs -----

type loginReq struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type principal struct {
	ID       uint64   `json:"id"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}
type authResp struct {
	User    principal `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Login: verify the last name/password pair and return a token pair.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		return badRequest(c, "username/password required")
	}

	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Users.Authenticate(ctx, req.Username, req.Password)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

// Refresh: validate by hash, revoke the old token, issue a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(strings.TrimSpace(req.RefreshToken))

	ctx, cancel := requestCtx(c)
	defer cancel()

	userID, err := h.Tokens.Validate(ctx, hash, time.Now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
		}
		return fail(c, h.Log, err)
	}
	if err := h.Tokens.Revoke(ctx, hash); err != nil {
		return fail(c, h.Log, err)
	}

	u, err := h.Users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		// the account was deleted after the token was issued
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return fail(c, h.Log, err)
	}
	return h.issue(ctx, c, http.StatusOK, u)
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, status int, u *model.User) error {
	roles := u.RoleNames()
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, roles, h.Cfg.AccessTTLMin)
	if err != nil {
		return fail(c, h.Log, err)
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(status, authResp{
		User:    principal{ID: u.ID, Username: u.LastName, Roles: roles},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
	})
}
