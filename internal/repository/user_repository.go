package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/noseryoung/course-rating/internal/dbx"
	"github.com/noseryoung/course-rating/internal/model"
)

const userColumns = "u.id, u.first_name, u.last_name, u.password_hash, u.email, u.join_year, u.creation_date"

// UserRepo persists users and their role memberships (`users`,
// `user_roles`).  Reads always return users with Roles populated.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// FindByID fetches a user by id.
func (r *UserRepo) FindByID(ctx context.Context, id uint64) (*model.User, error) {
	return r.findOne(ctx, "WHERE u.id = ?", id)
}

// FindByLastName fetches a user by the login name.
func (r *UserRepo) FindByLastName(ctx context.Context, lastName string) (*model.User, error) {
	return r.findOne(ctx, "WHERE u.last_name = ?", lastName)
}

// FindAll returns every user ordered by id.
func (r *UserRepo) FindAll(ctx context.Context) ([]model.User, error) {
	return r.query(ctx, r.db, "ORDER BY u.id")
}

// FindAllByOrderByJoinYearDesc returns every user, most recent join year
// first; ties keep id order.
func (r *UserRepo) FindAllByOrderByJoinYearDesc(ctx context.Context) ([]model.User, error) {
	return r.query(ctx, r.db, "ORDER BY u.join_year DESC, u.id")
}

// FindAllByRoleName returns the users holding the named role.
func (r *UserRepo) FindAllByRoleName(ctx context.Context, role string) ([]model.User, error) {
	return r.query(ctx, r.db, `WHERE u.id IN (
	        SELECT ur.user_id FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id WHERE ro.name = ?)
	    ORDER BY u.id`, role)
}

// Save inserts the user when it has no id yet, otherwise replaces every
// column of the existing row.  Role memberships are replaced as well.  On
// insert the generated id is written back into u.
func (r *UserRepo) Save(ctx context.Context, u *model.User) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return saveUser(ctx, tx, u)
	})
}

// SaveAll saves the users in one transaction.
func (r *UserRepo) SaveAll(ctx context.Context, users []*model.User) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, u := range users {
			if err := saveUser(ctx, tx, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteByID removes a user.  Deleting a missing id is not an error.
func (r *UserRepo) DeleteByID(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	return err
}

// DeleteByLastName removes the user with the given login name, if any.
func (r *UserRepo) DeleteByLastName(ctx context.Context, lastName string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM users WHERE last_name = ?", lastName)
	return err
}

func saveUser(ctx context.Context, tx dbx.DBTX, u *model.User) error {
	if u.IsNew() {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (first_name, last_name, password_hash, email, join_year, creation_date)
			 VALUES (?,?,?,?,?,?)`,
			u.FirstName, u.LastName, u.Password, nullString(u.Email), u.JoinYear, nullTime(u.CreationDate))
		if err != nil {
			return mapWriteErr(err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		u.ID = uint64(id)
	} else {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET first_name = ?, last_name = ?, password_hash = ?, email = ?, join_year = ?, creation_date = ?
			 WHERE id = ?`,
			u.FirstName, u.LastName, u.Password, nullString(u.Email), u.JoinYear, nullTime(u.CreationDate), u.ID); err != nil {
			return mapWriteErr(err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id = ?", u.ID); err != nil {
			return err
		}
	}
	for _, role := range u.Roles {
		var err error
		if role.ID != 0 {
			_, err = tx.ExecContext(ctx, "INSERT INTO user_roles (user_id, role_id) VALUES (?,?)", u.ID, role.ID)
		} else {
			var res sql.Result
			res, err = tx.ExecContext(ctx,
				"INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE name = ?", u.ID, role.Name)
			if err == nil {
				if n, _ := res.RowsAffected(); n == 0 {
					return fmt.Errorf("role %q: %w", role.Name, ErrNotFound)
				}
			}
		}
		if err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

func (r *UserRepo) findOne(ctx context.Context, where string, args ...any) (*model.User, error) {
	users, err := r.query(ctx, r.db, where+" LIMIT 1", args...)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrNotFound
	}
	return &users[0], nil
}

// query selects users with the given tail clause and attaches their roles
// with one extra round trip.
func (r *UserRepo) query(ctx context.Context, db dbx.DBTX, tail string, args ...any) ([]model.User, error) {
	rows, err := db.QueryContext(ctx, "SELECT "+userColumns+" FROM users u "+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u       model.User
			email   sql.NullString
			created sql.NullTime
		)
		if err := rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Password, &email, &u.JoinYear, &created); err != nil {
			return nil, err
		}
		u.Email = stringPtr(email)
		u.CreationDate = timePtr(created)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachRoles(ctx, db, out); err != nil {
		return nil, err
	}
	return out, nil
}

// roleBatch caps the user ids per role query.  MySQL rejects prepared
// statements with more than 65,535 placeholders.
var roleBatch = 1000

func attachRoles(ctx context.Context, db dbx.DBTX, users []model.User) error {
	idx := make(map[uint64]int, len(users))
	ids := make([]any, 0, len(users))
	for i, u := range users {
		idx[u.ID] = i
		ids = append(ids, u.ID)
		users[i].Roles = []model.Role{}
	}
	for chunk := range slices.Chunk(ids, roleBatch) {
		if err := loadRoles(ctx, db, chunk, users, idx); err != nil {
			return err
		}
	}
	return nil
}

func loadRoles(ctx context.Context, db dbx.DBTX, ids []any, users []model.User, idx map[uint64]int) error {
	rows, err := db.QueryContext(ctx,
		`SELECT ur.user_id, ro.id, ro.name FROM user_roles ur JOIN roles ro ON ro.id = ur.role_id
		 WHERE ur.user_id IN (`+placeholders(len(ids))+`) ORDER BY ro.id`, ids...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			userID uint64
			role   model.Role
		)
		if err := rows.Scan(&userID, &role.ID, &role.Name); err != nil {
			return err
		}
		if i, ok := idx[userID]; ok {
			users[i].Roles = append(users[i].Roles, role)
		}
	}
	return rows.Err()
}

// RoleRepo reads the `roles` table.
type RoleRepo struct{ db *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{db: db} }

// FindByName fetches a role by its unique name.
func (r *RoleRepo) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	err := r.db.QueryRowContext(ctx, "SELECT id, name FROM roles WHERE name = ? LIMIT 1", name).
		Scan(&role.ID, &role.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}
