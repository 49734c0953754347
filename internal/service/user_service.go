package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/repository"
)

// UserRepository is the persistence the UserService needs.
// *repository.UserRepo implements it.
type UserRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.User, error)
	FindByLastName(ctx context.Context, lastName string) (*model.User, error)
	FindAll(ctx context.Context) ([]model.User, error)
	FindAllByOrderByJoinYearDesc(ctx context.Context) ([]model.User, error)
	FindAllByRoleName(ctx context.Context, role string) ([]model.User, error)
	Save(ctx context.Context, u *model.User) error
	SaveAll(ctx context.Context, users []*model.User) error
	DeleteByID(ctx context.Context, id uint64) error
	DeleteByLastName(ctx context.Context, lastName string) error
}

// RoleRepository resolves role names to stored roles.  *repository.RoleRepo
// implements it.
type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*model.Role, error)
}

// PasswordHasher hashes and checks passwords. utils.BcryptHasher is the
// production implementation.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) bool
}

// UserDetails is the credential view of a user handed to the login path.
type UserDetails struct {
	user model.User
}

func (d *UserDetails) Username() string      { return d.user.LastName }
func (d *UserDetails) PasswordHash() string  { return d.user.Password }
func (d *UserDetails) Authorities() []string { return d.user.RoleNames() }
func (d *UserDetails) User() model.User      { return d.user }

type UserService struct {
	users  UserRepository
	roles  RoleRepository
	hasher PasswordHasher
	now    func() time.Time
	log    logging.Logger
}

func NewUserService(users UserRepository, roles RoleRepository, hasher PasswordHasher, now func() time.Time, log logging.Logger) *UserService {
	return &UserService{users: users, roles: roles, hasher: hasher, now: now, log: log.With("component", "user-service")}
}

// LoadUserByUsername resolves a login name (the last name) to its
// credentials.
func (s *UserService) LoadUserByUsername(ctx context.Context, username string) (*UserDetails, error) {
	u, err := s.users.FindByLastName(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &UserDetails{user: *u}, nil
}

// Authenticate checks a username/password pair and returns the user.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*model.User, error) {
	d, err := s.LoadUserByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(d.PasswordHash(), password) {
		return nil, ErrBadCredentials
	}
	u := d.User()
	return &u, nil
}

func (s *UserService) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return s.users.FindByLastName(ctx, username)
}

func (s *UserService) FindAll(ctx context.Context) ([]model.User, error) {
	return s.users.FindAll(ctx)
}

// FindAllByOrderByJoinYear lists users newest join year first.
func (s *UserService) FindAllByOrderByJoinYear(ctx context.Context) ([]model.User, error) {
	return s.users.FindAllByOrderByJoinYearDesc(ctx)
}

func (s *UserService) FindAllApprentices(ctx context.Context) ([]model.User, error) {
	return s.users.FindAllByRoleName(ctx, model.RoleUser)
}

func (s *UserService) FindAllCourseLeaders(ctx context.Context) ([]model.User, error) {
	return s.users.FindAllByRoleName(ctx, model.RoleAdmin)
}

// Save hashes the password, stamps the creation date and stores the user.
func (s *UserService) Save(ctx context.Context, u *model.User) error {
	if err := s.resolveRoles(ctx, u); err != nil {
		return err
	}
	if err := s.hashPassword(u); err != nil {
		return err
	}
	now := s.now()
	u.CreationDate = &now
	u.ID = 0
	if err := s.users.Save(ctx, u); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	s.log.Info(ctx, "user created", "user_id", u.ID)
	return nil
}

// SaveAll stores the users exactly as given: passwords are not hashed and
// creation dates are not stamped.  It is meant for imports of records that
// already carry both.  Role names are still checked.
func (s *UserService) SaveAll(ctx context.Context, users []*model.User) error {
	for _, u := range users {
		if err := s.resolveRoles(ctx, u); err != nil {
			return err
		}
	}
	if err := s.users.SaveAll(ctx, users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// Update replaces the user with the given id.  The password of newUser is
// hashed before it is stored.  A replacement without a creation date keeps
// the stored one so the user stays subject to retention.
func (s *UserService) Update(ctx context.Context, newUser *model.User, id uint64) error {
	current, err := s.users.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("user", "id", id)
	}
	if err != nil {
		return err
	}
	if err := s.resolveRoles(ctx, newUser); err != nil {
		return err
	}
	newUser.ID = id
	if newUser.CreationDate == nil {
		newUser.CreationDate = current.CreationDate
	}
	if err := s.hashPassword(newUser); err != nil {
		return err
	}
	if err := s.users.Save(ctx, newUser); err != nil {
		return fmt.Errorf("update user %d: %w", id, err)
	}
	return nil
}

func (s *UserService) DeleteByID(ctx context.Context, id uint64) error {
	return s.users.DeleteByID(ctx, id)
}

func (s *UserService) DeleteByUsername(ctx context.Context, username string) error {
	return s.users.DeleteByLastName(ctx, username)
}

// DeleteOldUsers removes every user created strictly before cutoff, except
// trainers and users without a creation date.  A failed deletion does not
// stop the sweep; the failures are joined into the returned error.
func (s *UserService) DeleteOldUsers(ctx context.Context, cutoff time.Time) (int, error) {
	users, err := s.users.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, u := range users {
		if u.HasRole(model.RoleTrainer) {
			continue
		}
		if u.CreationDate == nil || !u.CreationDate.Before(cutoff) {
			continue
		}
		if err := s.users.DeleteByID(ctx, u.ID); err != nil {
			errs = append(errs, fmt.Errorf("delete user %d: %w", u.ID, err))
			continue
		}
		deleted++
		s.log.Info(ctx, "stale user deleted", "user_id", u.ID, "created", *u.CreationDate)
	}
	return deleted, errors.Join(errs...)
}

func (s *UserService) hashPassword(u *model.User) error {
	hash, err := s.hasher.Hash(u.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.Password = hash
	return nil
}

// resolveRoles replaces the user's roles with the stored ones of the same
// name.  Duplicate names collapse into one membership.
func (s *UserService) resolveRoles(ctx context.Context, u *model.User) error {
	if len(u.Roles) == 0 {
		return nil
	}
	resolved := make([]model.Role, 0, len(u.Roles))
	for _, r := range u.Roles {
		if slices.ContainsFunc(resolved, func(have model.Role) bool { return have.Name == r.Name }) {
			continue
		}
		role, err := s.roles.FindByName(ctx, r.Name)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrUnknownRole, r.Name)
		}
		if err != nil {
			return fmt.Errorf("resolve role %q: %w", r.Name, err)
		}
		resolved = append(resolved, *role)
	}
	u.Roles = resolved
	return nil
}
