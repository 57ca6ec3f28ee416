package identity

import (
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/upb/tenantchat/backend/verifier"
)

const (
	defaultEmailClaim = "email"
	defaultNameClaim  = "name"
)

// MapPrincipal builds a Principal from a verified token using the claim
// names configured for its issuer. The result is not validated; callers
// reject it with Validate when subject or issuer came out empty.
func MapPrincipal(v *verifier.VerifiedJWT) *Principal {
	raw := v.Claims.Raw
	if raw == nil {
		raw = map[string]interface{}{}
	}

	mapping := v.Issuer.Claims
	emailClaim := mapping.Email
	if emailClaim == "" {
		emailClaim = defaultEmailClaim
	}
	nameClaim := mapping.Name
	if nameClaim == "" {
		nameClaim = defaultNameClaim
	}

	p := &Principal{
		Subject:     v.Claims.Subject,
		Issuer:      v.Claims.Issuer,
		Email:       stringClaim(raw, emailClaim),
		Name:        stringClaim(raw, nameClaim),
		Roles:       []string{},
		Permissions: []string{},
		RawClaims:   raw,
	}
	if mapping.OrgID != "" {
		p.OrgID = stringClaim(raw, mapping.OrgID)
	}
	if mapping.Roles != "" {
		p.Roles = setClaim(raw, mapping.Roles)
	}
	if mapping.Permissions != "" {
		p.Permissions = setClaim(raw, mapping.Permissions)
	}
	return p
}

// lookup resolves a claim by its literal name first, then as a dotted path
// into nested objects (realm_access.roles).
func lookup(raw map[string]interface{}, name string) (interface{}, bool) {
	if v, ok := raw[name]; ok {
		return v, true
	}
	if !strings.Contains(name, ".") {
		return nil, false
	}

	var current interface{} = raw
	for _, part := range strings.Split(name, ".") {
		obj, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringClaim(raw map[string]interface{}, name string) *string {
	v, ok := lookup(raw, name)
	if !ok {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// setClaim decodes a string or list claim into a sorted set. Values that
// cannot be read as strings yield an empty set.
func setClaim(raw map[string]interface{}, name string) []string {
	v, ok := lookup(raw, name)
	if !ok || v == nil {
		return []string{}
	}
	var values []string
	if err := mapstructure.WeakDecode(v, &values); err != nil {
		return []string{}
	}
	return normalizeSet(values)
}
