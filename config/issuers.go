package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/upb/tenantchat/backend/utils"
	"gopkg.in/yaml.v3"
)

// Token use restrictions for an issuer
const (
	TokenUseAccess = "access"
	TokenUseID     = "id"
	TokenUseAny    = "any"
)

// Login flow modes
const (
	ModeLogin    = "login"
	ModeRegister = "register"
)

// StringList decodes either a YAML scalar or a sequence of scalars
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		if value.Value == "" {
			*s = nil
			return nil
		}
		*s = StringList{value.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		*s = items
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", value.Line)
	}
}

// ClaimMapping names the token claims that carry profile and authorization data.
// Empty Email and Name fall back to "email" and "name"; the others stay unmapped.
type ClaimMapping struct {
	Email       string `yaml:"email"`
	Name        string `yaml:"name"`
	OrgID       string `yaml:"orgId"`
	Roles       string `yaml:"roles"`
	Permissions string `yaml:"permissions"`
}

// OIDCClientConfig enables the interactive login flow for an issuer
type OIDCClientConfig struct {
	ClientID              string                       `yaml:"clientId" validate:"required"`
	ClientSecret          string                       `yaml:"clientSecret"`
	RedirectURI           string                       `yaml:"redirectUri" validate:"required,url"`
	Scopes                []string                     `yaml:"scopes"`
	AuthorizationEndpoint string                       `yaml:"authorizationEndpoint" validate:"omitempty,url"`
	TokenEndpoint         string                       `yaml:"tokenEndpoint" validate:"omitempty,url"`
	ExtraAuthParams       map[string]map[string]string `yaml:"extraAuthParams"`
}

// AuthParams returns the extra authorization request parameters for a mode
func (c *OIDCClientConfig) AuthParams(mode string) map[string]string {
	if c == nil || c.ExtraAuthParams == nil {
		return nil
	}
	return c.ExtraAuthParams[mode]
}

// IssuerConfig describes one trusted identity provider
type IssuerConfig struct {
	Name           string            `yaml:"name" validate:"required"`
	Issuer         string            `yaml:"issuer" validate:"required,url"`
	Audience       StringList        `yaml:"audience" validate:"required,min=1,dive,required"`
	JWKSURI        string            `yaml:"jwksUri" validate:"required,url"`
	TokenUse       string            `yaml:"tokenUse" validate:"omitempty,oneof=access id any"`
	Algorithms     []string          `yaml:"algorithms" validate:"dive,oneof=RS256 RS384 RS512 PS256 PS384 PS512 ES256 ES384 ES512 EdDSA"`
	RequiredScopes []string          `yaml:"requiredScopes"`
	Claims         ClaimMapping      `yaml:"claims"`
	Client         *OIDCClientConfig `yaml:"client"`
}

// SupportsLogin reports whether the interactive flow can be started for this issuer
func (c *IssuerConfig) SupportsLogin() bool {
	return c.Client != nil
}

type issuersDocument struct {
	Issuers []IssuerConfig `yaml:"issuers"`
}

// ParseIssuers decodes a YAML (or JSON) issuer document, applies defaults
// and validates every entry. The document is either a list of issuers or a
// mapping with an "issuers" key.
func ParseIssuers(data []byte) ([]IssuerConfig, error) {
	if strings.TrimSpace(string(data)) == "" {
		return nil, nil
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse issuers: %w", err)
	}

	var issuers []IssuerConfig
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&issuers); err != nil {
			return nil, fmt.Errorf("failed to decode issuers: %w", err)
		}
	} else {
		var doc issuersDocument
		if err := root.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode issuers: %w", err)
		}
		issuers = doc.Issuers
	}

	names := make(map[string]bool, len(issuers))
	urls := make(map[string]bool, len(issuers))
	for i := range issuers {
		iss := &issuers[i]
		applyIssuerDefaults(iss)
		if err := utils.ValidateStruct(iss); err != nil {
			return nil, fmt.Errorf("issuer %q: %w: %v", iss.Name, err, utils.GetValidationFields(err))
		}
		if names[iss.Name] {
			return nil, fmt.Errorf("duplicate issuer name %q", iss.Name)
		}
		if urls[iss.Issuer] {
			return nil, fmt.Errorf("duplicate issuer url %q", iss.Issuer)
		}
		names[iss.Name] = true
		urls[iss.Issuer] = true
	}

	return issuers, nil
}

// LoadIssuersFile reads and parses the issuer document at path
func LoadIssuersFile(path string) ([]IssuerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read issuers file: %w", err)
	}
	return ParseIssuers(data)
}

func applyIssuerDefaults(iss *IssuerConfig) {
	if iss.TokenUse == "" {
		iss.TokenUse = TokenUseAny
	}
	if len(iss.Algorithms) == 0 {
		iss.Algorithms = []string{"RS256"}
	}
	if iss.Claims.Email == "" {
		iss.Claims.Email = "email"
	}
	if iss.Claims.Name == "" {
		iss.Claims.Name = "name"
	}
	if iss.Client != nil && len(iss.Client.Scopes) == 0 {
		iss.Client.Scopes = []string{"openid", "profile", "email"}
	}
}
