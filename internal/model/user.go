package model

import "github.com/xxxsen/docvault/internal/access"

type User struct {
	ID           string       `json:"id"`
	Username     string       `json:"username"`
	PasswordHash string       `json:"-"`
	Role         access.Role  `json:"role"`
	MaxLevel     access.Level `json:"max_level"`
	Ctime        int64        `json:"ctime"`
	Mtime        int64        `json:"mtime"`
}

func (u *User) Subject() access.Subject {
	return access.Subject{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		MaxLevel: u.MaxLevel,
	}
}
