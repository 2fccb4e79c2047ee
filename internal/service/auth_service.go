package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docvault/internal/access"
	"github.com/xxxsen/docvault/internal/model"
	appErr "github.com/xxxsen/docvault/internal/pkg/errors"
	"github.com/xxxsen/docvault/internal/pkg/jwt"
	"github.com/xxxsen/docvault/internal/pkg/password"
	"github.com/xxxsen/docvault/internal/pkg/timeutil"
	"github.com/xxxsen/docvault/internal/repo"
)

type AuthService struct {
	users     repo.UserRepository
	jwtSecret []byte
	jwtTTL    time.Duration
}

func NewAuthService(users repo.UserRepository, secret []byte, ttl time.Duration) *AuthService {
	return &AuthService{users: users, jwtSecret: secret, jwtTTL: ttl}
}

type LoginResult struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	Username    string       `json:"username"`
	Role        access.Role  `json:"role"`
	MaxLevel    access.Level `json:"max_level"`
}

func (s *AuthService) Login(ctx context.Context, username, plainPassword string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || plainPassword == "" {
		return nil, appErr.Unauthorized("invalid username or password")
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.Unauthorized("invalid username or password")
		}
		return nil, err
	}
	if err := password.Compare(user.PasswordHash, plainPassword); err != nil {
		return nil, appErr.Unauthorized("invalid username or password")
	}
	token, err := jwt.GenerateToken(jwt.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role.String(),
		MaxLevel: user.MaxLevel.String(),
	}, s.jwtSecret, s.jwtTTL)
	if err != nil {
		return nil, appErr.Internal("issue token", err)
	}
	logutil.GetLogger(ctx).Info("user logged in", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return &LoginResult{
		AccessToken: token,
		TokenType:   "bearer",
		Username:    user.Username,
		Role:        user.Role,
		MaxLevel:    user.MaxLevel,
	}, nil
}

// Authenticate verifies a bearer token and resolves the subject from the
// current user record. Role and clearance claims inside the token are
// ignored.
func (s *AuthService) Authenticate(ctx context.Context, token string) (access.Subject, error) {
	if strings.TrimSpace(token) == "" {
		return access.Subject{}, appErr.Unauthorized("missing credential")
	}
	claims, err := jwt.ParseToken(token, s.jwtSecret)
	if err != nil {
		return access.Subject{}, appErr.Unauthorized("invalid or expired token")
	}
	return s.ResolveSubject(ctx, claims.UserID)
}

func (s *AuthService) ResolveSubject(ctx context.Context, userID string) (access.Subject, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if appErr.IsNotFound(err) {
			return access.Subject{}, appErr.Unauthorized("user no longer exists")
		}
		return access.Subject{}, err
	}
	return user.Subject(), nil
}

// EnsureBootstrapAdmin creates an ADMIN user cleared for SECRET when the
// user table is empty. It reports whether a user was created.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, username, plainPassword string) (bool, error) {
	if strings.TrimSpace(username) == "" || plainPassword == "" {
		return false, nil
	}
	count, err := s.users.Count(ctx)
	if err != nil {
		return false, err
	}
	if count > 0 {
		return false, nil
	}
	hash, err := password.Hash(plainPassword)
	if err != nil {
		return false, appErr.Internal("hash password", err)
	}
	now := timeutil.NowUnix()
	user := &model.User{
		ID:           newID(),
		Username:     strings.TrimSpace(username),
		PasswordHash: hash,
		Role:         access.RoleAdmin,
		MaxLevel:     access.LevelSecret,
		Ctime:        now,
		Mtime:        now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if appErr.IsConflict(err) {
			return false, nil
		}
		return false, err
	}
	logutil.GetLogger(ctx).Info("bootstrap admin created", zap.String("username", user.Username))
	return true, nil
}
