package identity

import (
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Role names known to the policy
const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	// roleAuthenticated is granted implicitly to every provisioned principal
	roleAuthenticated = "authenticated"
)

// Actions open to any provisioned principal
var authenticatedActions = []string{
	"user.read.self",
	"user.update.self",
	"chat.list",
	"chat.read",
	"chat.create",
	"chat.update",
	"chat.message.read",
	"chat.message.create",
}

// Actions that need the member role
var memberActions = []string{
	"project.list",
	"project.read",
	"project.create",
	"project.update",
	"project.delete",
	"chat.delete",
	"file.read",
	"file.upload",
	"model.list",
}

const policyModel = `
[request_definition]
r = sub, act

[policy_definition]
p = sub, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && (p.act == "*" || r.act == p.act)
`

// PermissionChecker evaluates the fixed role policy. Unknown actions are denied.
type PermissionChecker struct {
	enforcer *casbin.SyncedEnforcer
}

// NewPermissionChecker builds the enforcer and loads the role policy
func NewPermissionChecker() (*PermissionChecker, error) {
	m, err := model.NewModelFromString(policyModel)
	if err != nil {
		return nil, fmt.Errorf("parse permission model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create permission enforcer: %w", err)
	}

	policies := [][]string{{RoleAdmin, "*"}}
	for _, act := range authenticatedActions {
		policies = append(policies, []string{roleAuthenticated, act})
	}
	for _, act := range memberActions {
		policies = append(policies, []string{RoleMember, act})
	}
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return nil, fmt.Errorf("load permission policy: %w", err)
	}

	return &PermissionChecker{enforcer: enforcer}, nil
}

// Can reports whether p may perform action. Admins may perform any non-empty
// action. resource is reserved for resource-scoped rules and is not interpreted.
func (c *PermissionChecker) Can(p *Principal, action string, resource ...string) bool {
	if !p.IsProvisioned() || action == "" {
		return false
	}

	subjects := append([]string{roleAuthenticated}, p.Roles...)
	for _, sub := range subjects {
		ok, err := c.enforcer.Enforce(sub, action)
		if err == nil && ok {
			return true
		}
	}
	return false
}
