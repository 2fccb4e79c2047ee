// Package access holds the single authorization policy for documents and
// templates. Every read or write path that touches a classified resource
// goes through CanAccess; nothing else compares levels.
package access

import (
	"fmt"
	"strings"
)

type Level int

const (
	LevelUnknown Level = iota
	LevelPublic
	LevelInternal
	LevelConfidential
	LevelSecret
)

var levelNames = map[Level]string{
	LevelPublic:       "PUBLIC",
	LevelInternal:     "INTERNAL",
	LevelConfidential: "CONFIDENTIAL",
	LevelSecret:       "SECRET",
}

// Levels lists every known level from least to most restricted.
var Levels = []Level{LevelPublic, LevelInternal, LevelConfidential, LevelSecret}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return "UNKNOWN"
}

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func ParseLevel(raw string) (Level, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	for level, name := range levelNames {
		if name == key {
			return level, nil
		}
	}
	return LevelUnknown, fmt.Errorf("unknown classification level: %q", raw)
}

type Role int

const (
	RoleUnknown Role = iota
	RoleUser
	RoleStaff
	RoleAnalyst
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleUser:    "USER",
	RoleStaff:   "STAFF",
	RoleAnalyst: "ANALYST",
	RoleAdmin:   "ADMIN",
}

var Roles = []Role{RoleUser, RoleStaff, RoleAnalyst, RoleAdmin}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "UNKNOWN"
}

func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

func ParseRole(raw string) (Role, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	for role, name := range roleNames {
		if name == key {
			return role, nil
		}
	}
	return RoleUnknown, fmt.Errorf("unknown role: %q", raw)
}

// Subject is the authenticated caller as resolved for the current request.
type Subject struct {
	UserID   string
	Username string
	Role     Role
	MaxLevel Level
}

// CanAccess reports whether a subject cleared to clearance may see a
// resource classified at classification. Unknown values deny.
func CanAccess(clearance, classification Level) bool {
	if !clearance.Valid() || !classification.Valid() {
		return false
	}
	return clearance >= classification
}

// CanUpload only admits subjects cleared to the top level. Role is not
// considered.
func CanUpload(role Role, clearance Level) bool {
	_ = role
	return clearance == LevelSecret
}

func CanAdminister(role Role) bool {
	return role == RoleAdmin
}

// AccessibleLevels returns the classifications a subject cleared to
// clearance may read, in ascending order. Storage layers filter with this
// list instead of comparing levels themselves.
func AccessibleLevels(clearance Level) []Level {
	out := make([]Level, 0, len(Levels))
	for _, level := range Levels {
		if CanAccess(clearance, level) {
			out = append(out, level)
		}
	}
	return out
}

func LevelNames(levels []Level) []string {
	out := make([]string, 0, len(levels))
	for _, level := range levels {
		out = append(out, level.String())
	}
	return out
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("invalid classification level: %d", int(l))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(data []byte) error {
	level, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = level
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role: %d", int(r))
	}
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(data []byte) error {
	role, err := ParseRole(string(data))
	if err != nil {
		return err
	}
	*r = role
	return nil
}
