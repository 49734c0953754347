package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noseryoung/course-rating/internal/fixture"
	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/middleware"
	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/config"
	"github.com/noseryoung/course-rating/internal/repository"
	"github.com/noseryoung/course-rating/internal/service"
	"github.com/noseryoung/course-rating/internal/utils"
)

const secret = "handler-secret"

var nop = logging.NewNop()

func do(t *testing.T, e *echo.Echo, method, target, body string, uid uint64, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if uid != 0 {
		tok, err := utils.NewAccessToken(secret, uid, roles, 5)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func testConfig() config.AuthConfig {
	return config.AuthConfig{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1}
}

// ----- fakes -----

type fakeUsers struct {
	byID map[uint64]model.User
}

func newFakeUsers(users ...model.User) *fakeUsers {
	f := &fakeUsers{byID: map[uint64]model.User{}}
	for _, u := range users {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) FindByID(_ context.Context, id uint64) (*model.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUsers) Authenticate(_ context.Context, username, password string) (*model.User, error) {
	for _, u := range f.byID {
		if u.LastName == username && u.Password == password {
			return &u, nil
		}
	}
	return nil, service.ErrBadCredentials
}

type fakeCourses struct {
	byID       map[uint64]model.Course
	created    []model.Course
	lastSearch repository.CourseSearchQuery
}

func newFakeCourses(courses ...model.Course) *fakeCourses {
	f := &fakeCourses{byID: map[uint64]model.Course{}}
	for _, c := range courses {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeCourses) FindByID(_ context.Context, id uint64) (*model.Course, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (f *fakeCourses) FindAll(_ context.Context) ([]model.Course, error) {
	out := make([]model.Course, 0, len(f.byID))
	for id := uint64(1); id <= uint64(len(f.byID)); id++ {
		out = append(out, f.byID[id])
	}
	return out, nil
}

func (f *fakeCourses) Search(_ context.Context, q repository.CourseSearchQuery) ([]model.Course, int64, error) {
	f.lastSearch = q
	all, _ := f.FindAll(context.Background())
	return all[:1], int64(len(all)), nil
}

func (f *fakeCourses) Create(_ context.Context, c *model.Course) error {
	c.ID = uint64(len(f.byID) + 1)
	f.byID[c.ID] = *c
	f.created = append(f.created, *c)
	return nil
}

type fakeRatings struct {
	rows          map[string]model.Rating
	duplicate     bool
	orderedCalled bool
	updatedToken  string
	updatedID     uint64
	batch         []*model.Rating
	deleted       []uint64
}

func newFakeRatings() *fakeRatings { return &fakeRatings{rows: map[string]model.Rating{}} }

func (f *fakeRatings) FindByID(_ context.Context, id uint64) (*model.Rating, error) {
	for _, r := range f.rows {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRatings) FindByToken(_ context.Context, token string) (*model.Rating, error) {
	r, ok := f.rows[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRatings) FindByUser(_ context.Context, userID uint64) ([]model.Rating, error) {
	out := []model.Rating{}
	for _, r := range f.rows {
		if r.User.ID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRatings) FindAll(_ context.Context) ([]model.Rating, error) { return nil, nil }

func (f *fakeRatings) FindAllOrdered(_ context.Context) ([]model.Rating, error) {
	f.orderedCalled = true
	return nil, nil
}

func (f *fakeRatings) Save(_ context.Context, r *model.Rating) (bool, error) {
	if f.duplicate {
		return false, nil
	}
	r.ID = uint64(len(f.rows) + 1)
	r.Token = "tok-new"
	f.rows[r.Token] = *r
	return true, nil
}

func (f *fakeRatings) SaveAll(_ context.Context, ratings []*model.Rating) error {
	for i, r := range ratings {
		r.Token = "bulk-" + string(rune('a'+i))
	}
	f.batch = ratings
	return nil
}

func (f *fakeRatings) Update(_ context.Context, r *model.Rating, id uint64) error {
	if _, err := f.FindByID(context.Background(), id); err != nil {
		return err
	}
	f.updatedID = id
	r.ID = id
	return nil
}

func (f *fakeRatings) UpdateByToken(_ context.Context, r *model.Rating, token string) error {
	cur, err := f.FindByToken(context.Background(), token)
	if err != nil {
		return err
	}
	f.updatedToken = token
	r.ID, r.Token = cur.ID, token
	return nil
}

func (f *fakeRatings) DeleteByID(_ context.Context, id uint64) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeRefresh struct {
	stored  map[string]uint64
	revoked []string
}

func (f *fakeRefresh) Store(_ context.Context, userID uint64, hash string, _ time.Time) error {
	f.stored[hash] = userID
	return nil
}

func (f *fakeRefresh) Validate(_ context.Context, hash string, _ time.Time) (uint64, error) {
	id, ok := f.stored[hash]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return id, nil
}

func (f *fakeRefresh) Revoke(_ context.Context, hash string) error {
	f.revoked = append(f.revoked, hash)
	delete(f.stored, hash)
	return nil
}

type pingerFunc func(ctx context.Context) error

func (p pingerFunc) PingContext(ctx context.Context) error { return p(ctx) }

type countingInvalidator struct{ n int }

func (c *countingInvalidator) Invalidate(context.Context) error { c.n++; return nil }

// ----- tests -----

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/up", Health(nil))
	e.GET("/db", Health(pingerFunc(func(context.Context) error { return errors.New("down") })))

	assert.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/up", "", 0).Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, e, http.MethodGet, "/db", "", 0).Code)
}

func TestFailMapping(t *testing.T) {
	e := echo.New()
	cases := []struct {
		err  error
		want int
	}{
		{repository.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("insert: %w", repository.ErrDuplicate), http.StatusConflict},
		{service.ErrBadCredentials, http.StatusUnauthorized},
		{service.ErrUserNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: %q", service.ErrUnknownRole, "PILOT"), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, fail(c, nop, tc.err))
		assert.Equal(t, tc.want, rec.Code, tc.err.Error())
	}
}

func authEcho(users *fakeUsers, tokens *fakeRefresh) *echo.Echo {
	h := NewAuthHandler(testConfig(), users, tokens, nop)
	e := echo.New()
	e.POST("/login", h.Login)
	e.POST("/refresh", h.Refresh)
	return e
}

func TestLogin(t *testing.T) {
	u := model.User{Entity: model.Entity{ID: 4}, LastName: "Keller", Password: "pw",
		Roles: []model.Role{{Name: model.RoleAdmin}}}
	tokens := &fakeRefresh{stored: map[string]uint64{}}
	e := authEcho(newFakeUsers(u), tokens)

	rec := do(t, e, http.MethodPost, "/login", `{"username":"Keller","password":"pw"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"roles":["ADMIN"]`)
	assert.Len(t, tokens.stored, 1)

	rec = do(t, e, http.MethodPost, "/login", `{"username":"Keller","password":"nope"}`, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, e, http.MethodPost, "/login", `{"username":""}`, 0)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefresh(t *testing.T) {
	u := model.User{Entity: model.Entity{ID: 4}, LastName: "Keller"}
	raw := "raw-refresh"
	tokens := &fakeRefresh{stored: map[string]uint64{utils.HashRefreshRaw(raw): 4}}
	e := authEcho(newFakeUsers(u), tokens)

	rec := do(t, e, http.MethodPost, "/refresh", `{"refresh_token":"raw-refresh"}`, 0)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{utils.HashRefreshRaw(raw)}, tokens.revoked)
	assert.Len(t, tokens.stored, 1)

	// the old token is gone now
	rec = do(t, e, http.MethodPost, "/refresh", `{"refresh_token":"raw-refresh"}`, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func ratingEcho(h *RatingHandler) *echo.Echo {
	e := echo.New()
	auth := middleware.JWTAuth(secret)
	admin := middleware.RequireRole(model.RoleAdmin)
	e.POST("/v1/ratings", h.Create, auth)
	e.GET("/v1/me/ratings", h.Mine, auth)
	e.GET("/v1/ratings/:token", h.GetByToken, auth)
	e.PUT("/v1/ratings/:token", h.UpdateByToken, auth)
	e.GET("/v1/ratings", h.List, auth, admin)
	e.GET("/v1/ratings/id/:id", h.GetByID, auth, admin)
	e.PUT("/v1/ratings/id/:id", h.UpdateByID, auth, admin)
	e.DELETE("/v1/ratings/id/:id", h.Delete, auth, admin)
	e.POST("/v1/ratings/bulk", h.Bulk, auth, admin)
	return e
}

func ratingFixture() (*fakeRatings, *RatingHandler) {
	courses := fixture.Courses()
	users := fixture.UserGenerator{}.Generate()
	ratings := newFakeRatings()
	h := NewRatingHandler(ratings, newFakeUsers(users.All()...), newFakeCourses(courses.All()...), nop)
	return ratings, h
}

func TestRatingCreate(t *testing.T) {
	ratings, h := ratingFixture()
	e := ratingEcho(h)

	rec := do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":4,"comment":"good"}`, 2, model.RoleUser)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"created":true,"id":1,"token":"tok-new"}`, rec.Body.String())
	assert.Equal(t, uint64(2), ratings.rows["tok-new"].User.ID)

	ratings.duplicate = true
	rec = do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":4}`, 2, model.RoleUser)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRatingCreateValidation(t *testing.T) {
	_, h := ratingFixture()
	e := ratingEcho(h)

	assert.Equal(t, http.StatusUnauthorized, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":4}`, 0).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":9}`, 2).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, "/v1/ratings", `{"score":3}`, 2).Code)
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":99,"score":3}`, 2).Code)
	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":3}`, 77).Code)
}

func TestRatingUpdateByToken(t *testing.T) {
	ratings, h := ratingFixture()
	e := ratingEcho(h)
	require.Equal(t, http.StatusCreated, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":1,"score":4}`, 2).Code)

	rec := do(t, e, http.MethodPut, "/v1/ratings/tok-new", `{"course_id":1,"score":2}`, 3, model.RoleUser)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ratings.updatedToken)

	rec = do(t, e, http.MethodPut, "/v1/ratings/tok-new", `{"course_id":1,"score":2}`, 2, model.RoleUser)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "tok-new", ratings.updatedToken)
	assert.Contains(t, rec.Body.String(), `"score":2`)

	// admins may edit anyone's rating; the author is kept
	rec = do(t, e, http.MethodPut, "/v1/ratings/tok-new", `{"course_id":1,"score":5}`, 1, model.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user":{"id":2`)

	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodPut, "/v1/ratings/missing", `{"course_id":1,"score":2}`, 2).Code)
}

func TestRatingAdminRoutes(t *testing.T) {
	ratings, h := ratingFixture()
	e := ratingEcho(h)
	require.Equal(t, http.StatusCreated, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":2,"score":4}`, 3).Code)

	assert.Equal(t, http.StatusForbidden, do(t, e, http.MethodGet, "/v1/ratings", "", 3, model.RoleUser).Code)

	rec := do(t, e, http.MethodGet, "/v1/ratings?ordered=true", "", 1, model.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ratings.orderedCalled)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	rec = do(t, e, http.MethodGet, "/v1/ratings/id/1", "", 1, model.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"token":"tok-new"`)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodGet, "/v1/ratings/id/abc", "", 1, model.RoleAdmin).Code)

	rec = do(t, e, http.MethodPut, "/v1/ratings/id/1", `{"user_id":3,"course_id":2,"score":1}`, 1, model.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(1), ratings.updatedID)

	assert.Equal(t, http.StatusNotFound,
		do(t, e, http.MethodPut, "/v1/ratings/id/9", `{"user_id":3,"course_id":2,"score":1}`, 1, model.RoleAdmin).Code)

	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodDelete, "/v1/ratings/id/1", "", 1, model.RoleAdmin).Code)
	assert.Equal(t, http.StatusNoContent, do(t, e, http.MethodDelete, "/v1/ratings/id/55", "", 1, model.RoleAdmin).Code)
	assert.Equal(t, []uint64{1, 55}, ratings.deleted)
}

func TestRatingBulk(t *testing.T) {
	ratings, h := ratingFixture()
	e := ratingEcho(h)

	rec := do(t, e, http.MethodPost, "/v1/ratings/bulk",
		`[{"user_id":1,"course_id":2,"score":3},{"user_id":2,"course_id":3,"score":5}]`, 1, model.RoleAdmin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"count":2,"tokens":["bulk-a","bulk-b"]}`, rec.Body.String())
	require.Len(t, ratings.batch, 2)
	assert.Equal(t, "326", ratings.batch[0].Course.CourseNumber)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, "/v1/ratings/bulk", `[]`, 1, model.RoleAdmin).Code)
	assert.Equal(t, http.StatusBadRequest,
		do(t, e, http.MethodPost, "/v1/ratings/bulk", `[{"course_id":2,"score":3}]`, 1, model.RoleAdmin).Code)
}

func TestRatingMine(t *testing.T) {
	_, h := ratingFixture()
	e := ratingEcho(h)
	require.Equal(t, http.StatusCreated, do(t, e, http.MethodPost, "/v1/ratings", `{"course_id":3,"score":4}`, 2).Code)

	rec := do(t, e, http.MethodGet, "/v1/me/ratings", "", 2)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"course_number":"121"`)

	rec = do(t, e, http.MethodGet, "/v1/me/ratings", "", 3)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())
}

func TestCourseCatalogue(t *testing.T) {
	courses := newFakeCourses(fixture.Courses().All()...)
	cache := &countingInvalidator{}
	h := NewCourseHandler(courses, nil, cache, nop)
	e := echo.New()
	e.GET("/v1/courses", h.ListCourses)
	e.GET("/v1/courses/:id", h.GetCourse)
	e.GET("/v1/courses/search", h.SearchCourses)
	e.POST("/v1/courses", h.CreateCourse)

	rec := do(t, e, http.MethodGet, "/v1/courses", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"course_number":"232"`)
	assert.Contains(t, rec.Body.String(), `"name":"Zürich"`)

	assert.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/v1/courses/42", "", 0).Code)

	rec = do(t, e, http.MethodPost, "/v1/courses", `{"course_number":"450","location_id":1,"course_lead_id":2}`, 0)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, 1, cache.n)
	require.Len(t, courses.created, 1)
	assert.Equal(t, uint64(2), courses.created[0].CourseLead.ID)

	assert.Equal(t, http.StatusBadRequest, do(t, e, http.MethodPost, "/v1/courses", `{"course_number":" "}`, 0).Code)
	assert.Equal(t, 1, cache.n)

	rec = do(t, e, http.MethodGet, "/v1/courses/search?lead=+kel+&page=0&page_size=500", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.CourseSearchQuery{Lead: "kel", Page: 1, PageSize: 100}, courses.lastSearch)
	assert.Contains(t, rec.Body.String(), `"total":4`)
	assert.Contains(t, rec.Body.String(), `"page_size":100`)

	rec = do(t, e, http.MethodGet, "/v1/courses/search?page=9223372036854775807", "", 0)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, repository.MaxSearchPage, courses.lastSearch.Page)
	assert.Equal(t, 20, courses.lastSearch.PageSize)
}
