// Package fixture builds small, deterministic object graphs for tests:
// three locations, three users and three courses wired to them.
package fixture

import (
	"time"

	"github.com/noseryoung/course-rating/internal/model"
)

// Holder keeps exactly three generated values in a fixed order.
type Holder[T any] struct {
	first, second, third T
}

// Of builds a Holder.
func Of[T any](first, second, third T) Holder[T] {
	return Holder[T]{first: first, second: second, third: third}
}

func (h Holder[T]) First() T  { return h.first }
func (h Holder[T]) Second() T { return h.second }
func (h Holder[T]) Third() T  { return h.third }

// All returns the three values in order.
func (h Holder[T]) All() []T { return []T{h.first, h.second, h.third} }

// Generator produces a Holder of T.
type Generator[T any] interface {
	Generate() Holder[T]
}

// LocationGenerator yields three training sites.
type LocationGenerator struct{}

func (LocationGenerator) Generate() Holder[model.Location] {
	return Of(
		model.Location{Entity: model.Entity{ID: 1}, Name: "Zürich"},
		model.Location{Entity: model.Entity{ID: 2}, Name: "Bern"},
		model.Location{Entity: model.Entity{ID: 3}, Name: "Basel"},
	)
}

// UserGenerator yields three course leads.  Created is used as their
// creation date.
type UserGenerator struct {
	Created time.Time
}

func (g UserGenerator) Generate() Holder[model.User] {
	created := g.Created
	admin := []model.Role{{Entity: model.Entity{ID: 1}, Name: model.RoleAdmin}}
	mk := func(id uint64, first, last, email string, year int) model.User {
		e := email
		c := created
		return model.User{
			Entity:       model.Entity{ID: id},
			FirstName:    first,
			LastName:     last,
			Email:        &e,
			JoinYear:     year,
			CreationDate: &c,
			Roles:        admin,
		}
	}
	return Of(
		mk(1, "Lea", "Keller", "lea.keller@example.ch", 2015),
		mk(2, "Marco", "Brunner", "marco.brunner@example.ch", 2017),
		mk(3, "Sara", "Meier", "sara.meier@example.ch", 2019),
	)
}

// CourseGenerator wires the n-th location and user into the n-th course.
type CourseGenerator struct {
	locations Generator[model.Location]
	users     Generator[model.User]
}

func NewCourseGenerator(locations Generator[model.Location], users Generator[model.User]) CourseGenerator {
	return CourseGenerator{locations: locations, users: users}
}

func (g CourseGenerator) Generate() Holder[model.Course] {
	location := g.locations.Generate()
	user := g.users.Generate()

	return Of(
		model.Course{Entity: model.Entity{ID: 1}, CourseNumber: "232", Location: location.First(), CourseLead: user.First()},
		model.Course{Entity: model.Entity{ID: 2}, CourseNumber: "326", Location: location.Second(), CourseLead: user.Second()},
		model.Course{Entity: model.Entity{ID: 3}, CourseNumber: "121", Location: location.Third(), CourseLead: user.Third()},
	)
}

// Courses is the default course triple.
func Courses() Holder[model.Course] {
	return NewCourseGenerator(LocationGenerator{}, UserGenerator{Created: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)}).Generate()
}
