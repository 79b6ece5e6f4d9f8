package users

import "time"

const (
	// RoleAdmin is assigned to the configured owner identity when no role is supplied.
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is a directory entry keyed by the external identity identifier.
type User struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OpenID       string    `gorm:"column:open_id;size:64;not null;uniqueIndex:idx_users_open_id" json:"open_id"`
	Name         *string   `gorm:"column:name;type:text" json:"name,omitempty"`
	Email        *string   `gorm:"column:email;size:320" json:"email,omitempty"`
	LoginMethod  *string   `gorm:"column:login_method;size:64" json:"login_method,omitempty"`
	Role         *string   `gorm:"column:role;size:32" json:"role,omitempty"`
	CreatedAt    time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
	LastSignedIn time.Time `gorm:"column:last_signed_in;not null" json:"last_signed_in"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the stored role is the administrative one.
func (u User) IsAdmin() bool {
	return u.Role != nil && *u.Role == RoleAdmin
}

// UserInput carries the fields of an upsert. Nil pointers mean "not supplied":
// the column keeps its stored value on update and stays unset on insert.
type UserInput struct {
	OpenID       string
	Name         *string
	Email        *string
	LoginMethod  *string
	Role         *string
	LastSignedIn *time.Time
}

// StringValue returns a pointer to value, for building UserInput literals.
func StringValue(value string) *string {
	return &value
}
