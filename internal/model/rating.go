package model

import "time"

// Rating is one user's evaluation of one course (`ratings` table).  Token
// is the opaque handle handed out in the confirmation mail; it is assigned
// once when the rating is first saved and never changes afterwards.
type Rating struct {
	Entity
	Token     string    `json:"token"`      // ratings.token
	User      User      `json:"user"`       // ratings.user_id
	Course    Course    `json:"course"`     // ratings.course_id
	Score     int       `json:"score"`      // ratings.score
	Comment   string    `json:"comment"`    // ratings.comment
	CreatedAt time.Time `json:"created_at"` // ratings.created_at
}

// MinScore and MaxScore bound Rating.Score.
const (
	MinScore = 1
	MaxScore = 5
)

// ValidScore reports whether Score lies within bounds.
func (r Rating) ValidScore() bool { return r.Score >= MinScore && r.Score <= MaxScore }
