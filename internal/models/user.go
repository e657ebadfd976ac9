package models

import "time"

// UserRole distinguishes administrators from regular members.
type UserRole string

// UserRole values.
const (
	// UserRoleAdmin can manage automation rules and tenant settings.
	UserRoleAdmin UserRole = "admin"
	// UserRoleMember is a regular organization member.
	UserRoleMember UserRole = "member"
)

// User is an organization member scoped to a tenant.
//
// The automation engine treats "active user row in the tenant" as the
// membership directory: specific-assignee rules must reference one.
type User struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	TenantID uint64 `gorm:"not null;index"` // Owning tenant.

	Username string `gorm:"type:text;not null;uniqueIndex"` // Unique login name.
	Password string `gorm:"type:text;not null"`             // Hashed password.

	DisplayName string   `gorm:"type:text;not null"`                         // Name shown in task titles.
	Email       string   `gorm:"type:text;default:''"`                       // Contact email.
	Role        UserRole `gorm:"type:varchar(16);not null;default:'member'"` // Access role.

	IsActive bool `gorm:"not null"` // Whether the user is an active member.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
