package service

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/password"
	"github.com/xxxsen/docvault/internal/pkg/timeutil"
	"github.com/xxxsen/docvault/internal/repo"
)

const minPasswordLen = 8

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

type UserService struct {
	users repo.UserRepository
}

func NewUserService(users repo.UserRepository) *UserService {
	return &UserService{users: users}
}

type CreateUserInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	MaxLevel string `json:"max_level"`
}

// UpdateUserInput leaves nil fields unchanged.
type UpdateUserInput struct {
	Role     *string `json:"role"`
	MaxLevel *string `json:"max_level"`
	Password *string `json:"password"`
}

func requireAdmin(subject access.Subject) error {
	if !access.CanAdminister(subject.Role) {
		return appErr.Forbidden("administrator role required")
	}
	return nil
}

func (s *UserService) List(ctx context.Context, subject access.Subject) ([]model.User, error) {
	if err := requireAdmin(subject); err != nil {
		return nil, err
	}
	return s.users.List(ctx)
}

func (s *UserService) Create(ctx context.Context, subject access.Subject, in CreateUserInput) (*model.User, error) {
	if err := requireAdmin(subject); err != nil {
		return nil, err
	}
	user, err := s.Provision(ctx, in)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("user created",
		zap.String("by", subject.UserID),
		zap.String("user_id", user.ID),
		zap.String("role", user.Role.String()),
		zap.String("max_level", user.MaxLevel.String()))
	return user, nil
}

// Provision creates a user without an acting subject. The CLI uses it.
func (s *UserService) Provision(ctx context.Context, in CreateUserInput) (*model.User, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, appErr.Invalid("username must be 1-64 characters of letters, digits, _ . @ -")
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	role, err := access.ParseRole(in.Role)
	if err != nil {
		return nil, appErr.Invalid(err.Error())
	}
	level, err := access.ParseLevel(in.MaxLevel)
	if err != nil {
		return nil, appErr.Invalid(err.Error())
	}
	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, appErr.Internal("hash password", err)
	}
	now := timeutil.NowUnix()
	user := &model.User{
		ID:           newID(),
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		MaxLevel:     level,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if appErr.IsConflict(err) {
			return nil, appErr.Conflict("username already exists")
		}
		return nil, err
	}
	return user, nil
}

func (s *UserService) Update(ctx context.Context, subject access.Subject, id string, in UpdateUserInput) (*model.User, error) {
	if err := requireAdmin(subject); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Role != nil {
		role, err := access.ParseRole(*in.Role)
		if err != nil {
			return nil, appErr.Invalid(err.Error())
		}
		if user.ID == subject.UserID && role != access.RoleAdmin {
			return nil, appErr.Invalid("administrators cannot remove their own admin role")
		}
		user.Role = role
	}
	if in.MaxLevel != nil {
		level, err := access.ParseLevel(*in.MaxLevel)
		if err != nil {
			return nil, appErr.Invalid(err.Error())
		}
		user.MaxLevel = level
	}
	if in.Password != nil {
		if err := checkPassword(*in.Password); err != nil {
			return nil, err
		}
		hash, err := password.Hash(*in.Password)
		if err != nil {
			return nil, appErr.Internal("hash password", err)
		}
		user.PasswordHash = hash
	}
	user.Mtime = timeutil.NowUnix()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("user updated", zap.String("by", subject.UserID), zap.String("user_id", user.ID))
	return user, nil
}

func (s *UserService) Delete(ctx context.Context, subject access.Subject, id string) error {
	if err := requireAdmin(subject); err != nil {
		return err
	}
	if id == subject.UserID {
		return appErr.Invalid("administrators cannot delete themselves")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("user deleted", zap.String("by", subject.UserID), zap.String("user_id", id))
	return nil
}

func checkPassword(p string) error {
	if utf8.RuneCountInString(p) < minPasswordLen {
		return appErr.Invalidf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}
