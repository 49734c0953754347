package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCourseGenerator_Wiring(t *testing.T) {
	courses := Courses()
	locs := LocationGenerator{}.Generate()

	assert.Equal(t, "232", courses.First().CourseNumber)
	assert.Equal(t, "326", courses.Second().CourseNumber)
	assert.Equal(t, "121", courses.Third().CourseNumber)

	assert.Equal(t, locs.Second(), courses.Second().Location)
	assert.Equal(t, "Meier", courses.Third().CourseLead.LastName)
	assert.Len(t, courses.All(), 3)
}

func TestUserGenerator_IndependentPointers(t *testing.T) {
	users := UserGenerator{}.Generate()
	*users.First().Email = "changed@example.ch"
	assert.Equal(t, "marco.brunner@example.ch", *users.Second().Email)
}
