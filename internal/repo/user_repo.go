package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	"github.com/xxxsen/docvault/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
)

var userColumns = []string{"id", "username", "password_hash", "role", "max_level", "ctime", "mtime"}

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

func (r *UserRepo) Create(ctx context.Context, user *model.User) error {
	data := map[string]interface{}{
		"id":            user.ID,
		"username":      user.Username,
		"password_hash": user.PasswordHash,
		"role":          user.Role.String(),
		"max_level":     user.MaxLevel.String(),
		"ctime":         user.Ctime,
		"mtime":         user.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("users", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.Conflict("username already exists")
		}
		return err
	}
	return nil
}

func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	return r.getOne(ctx, map[string]interface{}{"username": username})
}

func (r *UserRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.User, error) {
	sqlStr, args, err := builder.BuildSelect("users", where, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	if !rows.Next() {
		return nil, appErr.NotFound("user not found")
	}
	return scanUser(rows)
}

func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	sqlStr, args, err := builder.BuildSelect("users", map[string]interface{}{"_orderby": "username asc"}, userColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	users := make([]model.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *user)
	}
	return users, rows.Err()
}

func (r *UserRepo) Update(ctx context.Context, user *model.User) error {
	where := map[string]interface{}{"id": user.ID}
	update := map[string]interface{}{
		"password_hash": user.PasswordHash,
		"role":          user.Role.String(),
		"max_level":     user.MaxLevel.String(),
		"mtime":         user.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("users", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectOne(ctx, r.db, sqlStr, args, "user not found")
}

func (r *UserRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("users", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	return execAffectOne(ctx, r.db, sqlStr, args, "user not found")
}

func (r *UserRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM users`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var user model.User
	var role, level string
	if err := s.Scan(&user.ID, &user.Username, &user.PasswordHash, &role, &level, &user.Ctime, &user.Mtime); err != nil {
		return nil, err
	}
	var err error
	if user.Role, err = access.ParseRole(role); err != nil {
		return nil, err
	}
	if user.MaxLevel, err = access.ParseLevel(level); err != nil {
		return nil, err
	}
	return &user, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func execAffectOne(ctx context.Context, db execer, sqlStr string, args []interface{}, notFound string) error {
	res, err := db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.NotFound(notFound)
	}
	return nil
}
