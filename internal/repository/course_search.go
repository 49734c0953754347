package repository

import (
	"context"
	"strings"

	"github.com/noseryoung/course-rating/internal/model"
)

// CourseSearchQuery defines filters & pagination for searching courses.
// Empty filters match everything; text filters are case-insensitive
// substring matches.
type CourseSearchQuery struct {
	Number   string
	Location string
	Lead     string // first or last name of the course lead
	Page     int
	PageSize int
}

// Pagination bounds.  Larger values are clamped so the offset stays small.
const (
	MaxSearchPage     = 10000
	MaxSearchPageSize = 100
)

const courseFrom = `
	FROM courses c
	LEFT JOIN locations l ON l.id = c.location_id
	LEFT JOIN users u ON u.id = c.course_lead_id`

// Search returns one page of matching courses and the total match count.
func (r *CourseRepo) Search(ctx context.Context, q CourseSearchQuery) ([]model.Course, int64, error) {
	where := []string{}
	args := []any{}

	if q.Number != "" {
		where = append(where, "c.course_number LIKE ?")
		args = append(args, "%"+q.Number+"%")
	}
	if q.Location != "" {
		where = append(where, "LOWER(l.name) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Location)+"%")
	}
	if q.Lead != "" {
		where = append(where, "(LOWER(u.first_name) LIKE ? OR LOWER(u.last_name) LIKE ?)")
		lead := "%" + strings.ToLower(q.Lead) + "%"
		args = append(args, lead, lead)
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*)"+courseFrom+" WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if q.PageSize < 1 {
		q.PageSize = 20
	}
	if q.Page < 1 {
		q.Page = 1
	}
	q.PageSize = min(q.PageSize, MaxSearchPageSize)
	q.Page = min(q.Page, MaxSearchPage)
	dataSQL := courseSelect + " WHERE " + cond +
		" ORDER BY c.course_number, c.course_lead_id, c.id LIMIT ? OFFSET ?"
	dataArgs := append(append([]any{}, args...), q.PageSize, (q.Page-1)*q.PageSize)

	rows, err := r.db.QueryContext(ctx, dataSQL, dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]model.Course, 0, q.PageSize)
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
