package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

// IsGradingStaff reports whether the role may view all attempts and record manual scores.
func (r UserRole) IsGradingStaff() bool {
	return r == RoleTeacher || r == RoleAdmin
}

// User is read from the identity provider; the engine never stores it.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`

	AvatarURL     *string `json:"avatar_url,omitempty"`
	EmailVerified bool    `json:"email_verified"`
}
