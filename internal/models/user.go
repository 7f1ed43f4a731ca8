package models

import "time"

// Roles recognised across the marketplace and the support tooling. The
// moderator and admin roles are staff roles carried in tokens, not user rows.
const (
	RoleClient       = "client"
	RoleProfessional = "professional"
	RoleModerator    = "moderator"
	RoleAdmin        = "admin"
)

// User represents a marketplace account, either a client or a professional.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex" json:"email"`
	FirstName string    `gorm:"size:128" json:"first_name"`
	LastName  string    `gorm:"size:128" json:"last_name"`
	Role      string    `gorm:"size:32;not null;default:client" json:"role"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Professional is the provider profile owned by a user with role professional.
type Professional struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User         User      `gorm:"foreignKey:UserID" json:"-"`
	BusinessName string    `gorm:"size:255" json:"business_name"`
	Category     string    `gorm:"size:128" json:"category"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Moderator lives in a separate identity space from marketplace users.
// Inactive moderators cannot authenticate or be assigned new chats.
type Moderator struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ModeratorID string    `gorm:"size:64;uniqueIndex;not null" json:"moderator_id"`
	DisplayName string    `gorm:"size:128" json:"display_name"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
