package model

// Location is a training site where courses take place (`locations` table).
type Location struct {
	Entity
	Name string `json:"name"` // locations.name
}

// Course is a course offering (`courses` table).  A course is identified by
// its course number together with the lead, so the same number may be run
// by several leads.
type Course struct {
	Entity
	CourseNumber string   `json:"course_number"` // courses.course_number
	Location     Location `json:"location"`
	CourseLead   User     `json:"course_lead"`
}
