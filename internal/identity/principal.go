package identity

import (
	"errors"
	"sort"

	"github.com/google/uuid"
)

// Principal is the normalized identity of an authenticated caller
type Principal struct {
	Subject     string
	Issuer      string
	Email       *string
	Name        *string
	OrgID       *string
	Roles       []string
	Permissions []string
	RawClaims   map[string]interface{}

	// UserID is set only after the caller was provisioned locally
	UserID *uuid.UUID
}

var (
	ErrMissingSubject = errors.New("principal has no subject")
	ErrMissingIssuer  = errors.New("principal has no issuer")
)

// Validate reports whether the principal identifies a caller
func (p *Principal) Validate() error {
	if p.Subject == "" {
		return ErrMissingSubject
	}
	if p.Issuer == "" {
		return ErrMissingIssuer
	}
	return nil
}

// HasRole reports whether the principal holds role
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsProvisioned reports whether the principal is bound to a local user
func (p *Principal) IsProvisioned() bool {
	return p != nil && p.UserID != nil && *p.UserID != uuid.Nil
}

// WithUser returns a copy of p bound to userID and carrying roles. Claim roles
// are kept when no roles were persisted for the user.
func (p *Principal) WithUser(userID uuid.UUID, roles []string) *Principal {
	out := *p
	out.UserID = &userID
	if len(roles) > 0 {
		out.Roles = normalizeSet(roles)
	}
	return &out
}

// normalizeSet drops empty and duplicate values and sorts the rest
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
