package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noseryoung/course-rating/internal/model"
)

const courseSelect = `SELECT c.id, c.course_number, c.location_id, COALESCE(l.name, ''),
	       c.course_lead_id, COALESCE(u.first_name, ''), COALESCE(u.last_name, '')
	FROM courses c
	LEFT JOIN locations l ON l.id = c.location_id
	LEFT JOIN users u ON u.id = c.course_lead_id`

// CourseRepo encapsulates queries on `courses`.  Reads include the location
// name and the lead's name so the catalogue can be listed in one query.
type CourseRepo struct{ db *sql.DB }

func NewCourseRepo(db *sql.DB) *CourseRepo { return &CourseRepo{db: db} }

// Create inserts a course and fills in its id.  Location and lead are
// referenced by id only.
func (r *CourseRepo) Create(ctx context.Context, c *model.Course) error {
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO courses (course_number, location_id, course_lead_id) VALUES (?,?,?)",
		c.CourseNumber, nullID(c.Location.ID), nullID(c.CourseLead.ID))
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	c.ID = uint64(id)
	return nil
}

// FindByID fetches one course or ErrNotFound.
func (r *CourseRepo) FindByID(ctx context.Context, id uint64) (*model.Course, error) {
	c, err := scanCourse(r.db.QueryRowContext(ctx, courseSelect+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// FindAll lists courses ordered by course number, then lead.
func (r *CourseRepo) FindAll(ctx context.Context) ([]model.Course, error) {
	rows, err := r.db.QueryContext(ctx, courseSelect+" ORDER BY c.course_number, c.course_lead_id, c.id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCourse(s rowScanner) (*model.Course, error) {
	var c model.Course
	var locID, leadID sql.NullInt64
	if err := s.Scan(&c.ID, &c.CourseNumber, &locID, &c.Location.Name,
		&leadID, &c.CourseLead.FirstName, &c.CourseLead.LastName); err != nil {
		return nil, err
	}
	c.Location.ID = idOf(locID)
	c.CourseLead.ID = idOf(leadID)
	return &c, nil
}

// LocationRepo encapsulates queries on `locations`.
type LocationRepo struct{ db *sql.DB }

func NewLocationRepo(db *sql.DB) *LocationRepo { return &LocationRepo{db: db} }

// Create inserts a location and fills in its id.
func (r *LocationRepo) Create(ctx context.Context, l *model.Location) error {
	res, err := r.db.ExecContext(ctx, "INSERT INTO locations (name) VALUES (?)", l.Name)
	if err != nil {
		return mapWriteErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.ID = uint64(id)
	return nil
}

// FindAll lists locations by id.
func (r *LocationRepo) FindAll(ctx context.Context) ([]model.Location, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, name FROM locations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Location
	for rows.Next() {
		var l model.Location
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
