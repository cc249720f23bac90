package models

import (
	"github.com/google/uuid"
)

// Role is the marketplace role of a user
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

// DisplayName maps the stored role to its presentation form
func (r Role) DisplayName() string {
	switch r {
	case RoleTeacher:
		return "Teacher"
	case RoleStudent:
		return "Student"
	default:
		return string(r)
	}
}

// User is the read-only profile owned by the user directory
type User struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
	Image string    `json:"image,omitempty"`
	Role  Role      `json:"role"`
}

// UserRef is a user reached through an enrollment or tutoring session
type UserRef = User

// UserResponse is what we return to the client
type UserResponse struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Email  string    `json:"email"`
	Avatar string    `json:"avatar,omitempty"`
	Role   string    `json:"role"`
}

// ToResponse converts a directory user to its client form
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:     u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Avatar: u.Image,
		Role:   u.Role.DisplayName(),
	}
}
