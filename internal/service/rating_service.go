// Package service holds the application logic between the HTTP handlers and
// the repositories: rating submission with confirmation mail, user
// lifecycle and the retention sweep.
package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/noseryoung/course-rating/internal/logging"
	"github.com/noseryoung/course-rating/internal/model"
	"github.com/noseryoung/course-rating/internal/notify"
	"github.com/noseryoung/course-rating/internal/repository"
)

// RatingRepository is the persistence the RatingService needs.
// *repository.RatingRepo implements it.
type RatingRepository interface {
	FindByID(ctx context.Context, id uint64) (*model.Rating, error)
	FindByToken(ctx context.Context, token string) (*model.Rating, error)
	FindByUser(ctx context.Context, userID uint64) ([]model.Rating, error)
	FindByCourseAndUser(ctx context.Context, courseID, userID uint64) ([]model.Rating, error)
	FindAll(ctx context.Context) ([]model.Rating, error)
	FindAllOrdered(ctx context.Context) ([]model.Rating, error)
	Save(ctx context.Context, r *model.Rating) error
	SaveAll(ctx context.Context, ratings []*model.Rating) error
	DeleteByID(ctx context.Context, id uint64) error
}

// RatingService creates, reads, replaces and deletes ratings.  A new
// rating gets a fresh token and, when the author has a usable address, a
// confirmation mail.  Mail failures are logged and never undo the write.
type RatingService struct {
	repo     RatingRepository
	sender   notify.Sender
	newToken func() string
	log      logging.Logger
}

func NewRatingService(repo RatingRepository, sender notify.Sender, newToken func() string, log logging.Logger) *RatingService {
	return &RatingService{repo: repo, sender: sender, newToken: newToken, log: log.With("component", "rating-service")}
}

func (s *RatingService) FindByID(ctx context.Context, id uint64) (*model.Rating, error) {
	return s.repo.FindByID(ctx, id)
}

func (s *RatingService) FindByToken(ctx context.Context, token string) (*model.Rating, error) {
	return s.repo.FindByToken(ctx, token)
}

func (s *RatingService) FindByUser(ctx context.Context, userID uint64) ([]model.Rating, error) {
	return s.repo.FindByUser(ctx, userID)
}

func (s *RatingService) FindAll(ctx context.Context) ([]model.Rating, error) {
	return s.repo.FindAll(ctx)
}

// FindAllOrdered returns all ratings ascending by course number, then
// course lead.  The sort is redone here with byte order so the result does
// not depend on the column collation; it is stable, so equal keys keep the
// id order the store returned.
func (s *RatingService) FindAllOrdered(ctx context.Context) ([]model.Rating, error) {
	ratings, err := s.repo.FindAllOrdered(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(ratings, func(a, b model.Rating) int {
		return cmp.Or(
			cmp.Compare(a.Course.CourseNumber, b.Course.CourseNumber),
			cmp.Compare(a.Course.CourseLead.ID, b.Course.CourseLead.ID),
		)
	})
	return ratings, nil
}

// Save stores r unless the same user already rated the same course.  It
// reports whether a rating was written; a duplicate is (false, nil).
func (s *RatingService) Save(ctx context.Context, r *model.Rating) (bool, error) {
	existing, err := s.repo.FindByCourseAndUser(ctx, r.Course.ID, r.User.ID)
	if err != nil {
		return false, fmt.Errorf("look up existing rating: %w", err)
	}
	if len(existing) > 0 {
		s.log.Info(ctx, "duplicate rating ignored", "course_id", r.Course.ID, "user_id", r.User.ID)
		return false, nil
	}

	r.ID = 0
	r.Token = s.newToken()
	if err := s.repo.Save(ctx, r); err != nil {
		// the unique key caught a concurrent submission for the same pair
		if errors.Is(err, repository.ErrDuplicate) {
			s.log.Info(ctx, "duplicate rating rejected by store", "course_id", r.Course.ID, "user_id", r.User.ID)
			return false, nil
		}
		return false, fmt.Errorf("save rating: %w", err)
	}
	s.log.Info(ctx, "rating saved", "rating_id", r.ID, "course_id", r.Course.ID, "user_id", r.User.ID)

	s.confirm(ctx, r)
	return true, nil
}

// SaveAll gives every rating a fresh token and stores the batch in one
// call.  Unlike Save it does not look for existing ratings; a batch that
// hits the unique key fails as a whole.  Confirmations go out after the
// batch is stored.
func (s *RatingService) SaveAll(ctx context.Context, ratings []*model.Rating) error {
	for _, r := range ratings {
		r.ID = 0
		r.Token = s.newToken()
	}
	if err := s.repo.SaveAll(ctx, ratings); err != nil {
		return fmt.Errorf("save ratings: %w", err)
	}
	for _, r := range ratings {
		s.confirm(ctx, r)
	}
	return nil
}

// Update replaces the rating with the given id.  The id and the original
// token are carried onto newRating.
func (s *RatingService) Update(ctx context.Context, newRating *model.Rating, id uint64) error {
	current, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("rating", "id", id)
	}
	if err != nil {
		return err
	}
	newRating.ID = id
	newRating.Token = current.Token
	return s.replace(ctx, newRating)
}

// UpdateByToken replaces the rating with the given token.
func (s *RatingService) UpdateByToken(ctx context.Context, newRating *model.Rating, token string) error {
	current, err := s.repo.FindByToken(ctx, token)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("rating", "token", token)
	}
	if err != nil {
		return err
	}
	newRating.ID = current.ID
	newRating.Token = token
	return s.replace(ctx, newRating)
}

// DeleteByID removes a rating; a missing id is not an error.
func (s *RatingService) DeleteByID(ctx context.Context, id uint64) error {
	return s.repo.DeleteByID(ctx, id)
}

func (s *RatingService) replace(ctx context.Context, r *model.Rating) error {
	if err := s.repo.Save(ctx, r); err != nil {
		return fmt.Errorf("update rating %d: %w", r.ID, err)
	}
	return nil
}

// confirm sends the confirmation mail if the author has a usable address.
func (s *RatingService) confirm(ctx context.Context, r *model.Rating) {
	addr, ok := r.User.DeliverableEmail()
	if !ok {
		return
	}
	if err := s.sender.Send(ctx, addr, r.Token); err != nil {
		s.log.Warn(ctx, "rating confirmation not delivered", "rating_id", r.ID, "to", addr, "err", err)
	}
}
