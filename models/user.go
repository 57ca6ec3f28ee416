package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole is the name of a persisted role
type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RoleMember UserRole = "member"
)

// User is an application user created on first sign-in from any trusted issuer
type User struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	Email        *string    `json:"email,omitempty" db:"email"`
	Name         *string    `json:"name,omitempty" db:"name"`
	AvatarURL    *string    `json:"avatar_url,omitempty" db:"avatar_url"`
	AvatarSource *string    `json:"avatar_source,omitempty" db:"avatar_source"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	LastSeenAt   *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// TableName returns the table name for the User model
func (User) TableName() string {
	return "users"
}

// NewUser creates a new User with the profile fields taken from the token
func NewUser(email, name *string) *User {
	now := time.Now().UTC()
	return &User{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ProfileUpdate holds profile fields to overwrite. Nil fields are left untouched.
type ProfileUpdate struct {
	Email *string
	Name  *string
}

// IsEmpty reports whether the update changes nothing
func (p ProfileUpdate) IsEmpty() bool {
	return p.Email == nil && p.Name == nil
}

// ProfileDrift returns the fields whose token value is defined and differs
// from the stored value. A missing claim never clears a stored field.
func (u *User) ProfileDrift(email, name *string) ProfileUpdate {
	var update ProfileUpdate
	if drifted(u.Email, email) {
		update.Email = email
	}
	if drifted(u.Name, name) {
		update.Name = name
	}
	return update
}

func drifted(stored, incoming *string) bool {
	if incoming == nil {
		return false
	}
	return stored == nil || *stored != *incoming
}

// ExternalIdentity links a user to a (issuer, subject) pair
type ExternalIdentity struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Issuer    string    `json:"issuer" db:"issuer"`
	Subject   string    `json:"subject" db:"subject"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the ExternalIdentity model
func (ExternalIdentity) TableName() string {
	return "external_identities"
}

// NewExternalIdentity creates the link for a freshly provisioned user
func NewExternalIdentity(userID uuid.UUID, issuer, subject string) *ExternalIdentity {
	return &ExternalIdentity{
		ID:        uuid.New(),
		UserID:    userID,
		Issuer:    issuer,
		Subject:   subject,
		CreatedAt: time.Now().UTC(),
	}
}
