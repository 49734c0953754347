package service

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/repository"
)

// fakeRatingRepo keeps ratings in memory and enforces the (course, user)
// unique key on Save the way the MySQL schema does.
type fakeRatingRepo struct {
	mu        sync.Mutex
	rows      []*model.Rating
	nextID    uint64
	saves     int
	batches   int
	saveErr   error
	findErr   error
	deletedID []uint64
}

func (f *fakeRatingRepo) FindByID(_ context.Context, id uint64) (*model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.ID == id {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRatingRepo) FindByToken(_ context.Context, token string) (*model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Token == token {
			cp := *r
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeRatingRepo) FindByUser(_ context.Context, userID uint64) ([]model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []model.Rating{}
	for _, r := range f.rows {
		if r.User.ID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRatingRepo) FindByCourseAndUser(_ context.Context, courseID, userID uint64) ([]model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	var out []model.Rating
	for _, r := range f.rows {
		if r.Course.ID == courseID && r.User.ID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRatingRepo) FindAll(_ context.Context) ([]model.Rating, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Rating, 0, len(f.rows))
	for _, r := range f.rows {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeRatingRepo) FindAllOrdered(ctx context.Context) ([]model.Rating, error) {
	return f.FindAll(ctx)
}

func (f *fakeRatingRepo) Save(_ context.Context, r *model.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if r.ID != 0 {
		for i, cur := range f.rows {
			if cur.ID == r.ID {
				cp := *r
				f.rows[i] = &cp
				return nil
			}
		}
		return repository.ErrNotFound
	}
	for _, cur := range f.rows {
		if cur.Course.ID == r.Course.ID && cur.User.ID == r.User.ID {
			return fmt.Errorf("insert rating: %w", repository.ErrDuplicate)
		}
	}
	f.insert(r)
	return nil
}

// SaveAll stores the batch without looking at the unique key.
func (f *fakeRatingRepo) SaveAll(_ context.Context, ratings []*model.Rating) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, r := range ratings {
		f.insert(r)
	}
	return nil
}

func (f *fakeRatingRepo) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedID = append(f.deletedID, id)
	f.rows = slices.DeleteFunc(f.rows, func(r *model.Rating) bool { return r.ID == id })
	return nil
}

func (f *fakeRatingRepo) insert(r *model.Rating) {
	f.nextID++
	r.ID = f.nextID
	cp := *r
	f.rows = append(f.rows, &cp)
}

func (f *fakeRatingRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type sent struct {
	address string
	token   string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (s *recordingSender) Send(_ context.Context, address, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{address: address, token: token})
	return s.err
}

func (s *recordingSender) calls() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.sent)
}

// sequentialTokens returns tok-1, tok-2, ... and is safe for concurrent use.
func sequentialTokens() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("tok-%d", n.Add(1)) }
}

type fakeUserRepo struct {
	mu        sync.Mutex
	rows      map[uint64]model.User
	nextID    uint64
	saves     int
	batches   int
	deleteErr map[uint64]error
	deleted   []uint64
	roleQuery []string
}

func newFakeUserRepo(users ...model.User) *fakeUserRepo {
	f := &fakeUserRepo{rows: map[uint64]model.User{}}
	for _, u := range users {
		f.rows[u.ID] = u
		f.nextID = max(f.nextID, u.ID)
	}
	return f
}

func (f *fakeUserRepo) FindByID(_ context.Context, id uint64) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &u, nil
}

func (f *fakeUserRepo) FindByLastName(_ context.Context, lastName string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.rows {
		if u.LastName == lastName {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUserRepo) FindAll(_ context.Context) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.User, 0, len(f.rows))
	for _, u := range f.rows {
		out = append(out, u)
	}
	slices.SortFunc(out, func(a, b model.User) int { return int(a.ID) - int(b.ID) })
	return out, nil
}

func (f *fakeUserRepo) FindAllByOrderByJoinYearDesc(ctx context.Context) ([]model.User, error) {
	out, _ := f.FindAll(ctx)
	slices.SortStableFunc(out, func(a, b model.User) int { return b.JoinYear - a.JoinYear })
	return out, nil
}

func (f *fakeUserRepo) FindAllByRoleName(ctx context.Context, role string) ([]model.User, error) {
	f.mu.Lock()
	f.roleQuery = append(f.roleQuery, role)
	f.mu.Unlock()
	all, _ := f.FindAll(ctx)
	return slices.DeleteFunc(all, func(u model.User) bool { return !u.HasRole(role) }), nil
}

func (f *fakeUserRepo) Save(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if u.ID == 0 {
		f.nextID++
		u.ID = f.nextID
	}
	f.rows[u.ID] = *u
	return nil
}

func (f *fakeUserRepo) SaveAll(_ context.Context, users []*model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++
	for _, u := range users {
		if u.ID == 0 {
			f.nextID++
			u.ID = f.nextID
		}
		f.rows[u.ID] = *u
	}
	return nil
}

func (f *fakeUserRepo) DeleteByID(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	f.deleted = append(f.deleted, id)
	delete(f.rows, id)
	return nil
}

func (f *fakeUserRepo) DeleteByLastName(_ context.Context, lastName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.rows {
		if u.LastName == lastName {
			delete(f.rows, id)
		}
	}
	return nil
}

type prefixHasher struct{}

func (prefixHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }
func (prefixHasher) Verify(hash, plain string) bool     { return hash == "hashed:"+plain }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func strptr(s string) *string { return &s }

// fakeRoleRepo knows the roles the migrations seed.
type fakeRoleRepo struct{}

func (fakeRoleRepo) FindByName(_ context.Context, name string) (*model.Role, error) {
	for i, n := range []string{model.RoleAdmin, model.RoleUser, model.RoleTrainer} {
		if n == name {
			return &model.Role{Entity: model.Entity{ID: uint64(i + 1)}, Name: n}, nil
		}
	}
	return nil, repository.ErrNotFound
}
