package models

import "time"

const (
	// RoleAdmin manages rooms and platform content.
	RoleAdmin = "admin"
	// RoleTeacher runs classes and their rooms.
	RoleTeacher = "teacher"
	// RoleStudent is an enrolled learner.
	RoleStudent = "student"
)

// User represents an account on the platform. Role is fixed after registration.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Role      string    `gorm:"size:32;not null;default:student" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStaff reports whether the user may manage rooms.
func (u User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleTeacher
}
