package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noseryoung/course-rating/internal/dbx"
	"github.com/noseryoung/course-rating/internal/model"
)

// ratingSelect joins the author and the course so callers get the email
// address and the ordering keys without further lookups.
const ratingSelect = `SELECT r.id, r.token, r.score, r.comment, r.created_at,
	       u.id, u.first_name, u.last_name, u.email,
	       c.id, c.course_number, c.location_id, c.course_lead_id
	FROM ratings r
	JOIN users u ON u.id = r.user_id
	JOIN courses c ON c.id = r.course_id`

// RatingRepo encapsulates all queries on `ratings`.  The (course_id,
// user_id) pair is unique in the schema; violating it yields ErrDuplicate.
type RatingRepo struct{ db *sql.DB }

func NewRatingRepo(db *sql.DB) *RatingRepo { return &RatingRepo{db: db} }

// FindByID fetches a rating by id or returns ErrNotFound.
func (r *RatingRepo) FindByID(ctx context.Context, id uint64) (*model.Rating, error) {
	return r.findOne(ctx, " WHERE r.id = ?", id)
}

// FindByToken fetches a rating by its public token or returns ErrNotFound.
func (r *RatingRepo) FindByToken(ctx context.Context, token string) (*model.Rating, error) {
	return r.findOne(ctx, " WHERE r.token = ?", token)
}

// FindByUser lists the ratings written by a user.
func (r *RatingRepo) FindByUser(ctx context.Context, userID uint64) ([]model.Rating, error) {
	return r.query(ctx, " WHERE r.user_id = ? ORDER BY r.id", userID)
}

// FindByCourseAndUser lists ratings for the exact pair; at most one row
// exists while the unique key is in place.
func (r *RatingRepo) FindByCourseAndUser(ctx context.Context, courseID, userID uint64) ([]model.Rating, error) {
	return r.query(ctx, " WHERE r.course_id = ? AND r.user_id = ? ORDER BY r.id", courseID, userID)
}

// FindAll lists every rating by id.
func (r *RatingRepo) FindAll(ctx context.Context) ([]model.Rating, error) {
	return r.query(ctx, " ORDER BY r.id")
}

// FindAllOrdered lists every rating by course number, then course lead;
// the id makes the order total.
func (r *RatingRepo) FindAllOrdered(ctx context.Context) ([]model.Rating, error) {
	return r.query(ctx, " ORDER BY c.course_number ASC, c.course_lead_id ASC, r.id ASC")
}

// Save inserts a new rating (ID == 0) and writes the generated id back, or
// replaces all columns of an existing one.
func (r *RatingRepo) Save(ctx context.Context, rt *model.Rating) error {
	return saveRating(ctx, r.db, rt)
}

// SaveAll saves the batch in a single transaction.
func (r *RatingRepo) SaveAll(ctx context.Context, ratings []*model.Rating) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, rt := range ratings {
			if err := saveRating(ctx, tx, rt); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByID removes a rating.  A missing id is not an error.
func (r *RatingRepo) DeleteByID(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM ratings WHERE id = ?", id)
	return err
}

func saveRating(ctx context.Context, db dbx.DBTX, rt *model.Rating) error {
	if !rt.IsNew() {
		_, err := db.ExecContext(ctx,
			"UPDATE ratings SET token = ?, user_id = ?, course_id = ?, score = ?, comment = ? WHERE id = ?",
			rt.Token, rt.User.ID, rt.Course.ID, rt.Score, rt.Comment, rt.ID)
		return mapWriteErr(err)
	}
	res, err := db.ExecContext(ctx,
		"INSERT INTO ratings (token, user_id, course_id, score, comment) VALUES (?,?,?,?,?)",
		rt.Token, rt.User.ID, rt.Course.ID, rt.Score, rt.Comment)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rt.ID = uint64(id)
	return nil
}

func (r *RatingRepo) findOne(ctx context.Context, tail string, args ...any) (*model.Rating, error) {
	rt, err := scanRating(r.db.QueryRowContext(ctx, ratingSelect+tail+" LIMIT 1", args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (r *RatingRepo) query(ctx context.Context, tail string, args ...any) ([]model.Rating, error) {
	rows, err := r.db.QueryContext(ctx, ratingSelect+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Rating{}
	for rows.Next() {
		rt, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rt)
	}
	return out, rows.Err()
}

func scanRating(s rowScanner) (*model.Rating, error) {
	var rt model.Rating
	var email sql.NullString
	var locID, leadID sql.NullInt64
	if err := s.Scan(&rt.ID, &rt.Token, &rt.Score, &rt.Comment, &rt.CreatedAt,
		&rt.User.ID, &rt.User.FirstName, &rt.User.LastName, &email,
		&rt.Course.ID, &rt.Course.CourseNumber, &locID, &leadID); err != nil {
		return nil, err
	}
	rt.User.Email = stringPtr(email)
	rt.Course.Location.ID = idOf(locID)
	rt.Course.CourseLead.ID = idOf(leadID)
	return &rt, nil
}
