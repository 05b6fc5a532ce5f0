package auth

import (
	"context"
	"errors"
	"slices"
)

// Permission represents an access level
type Permission string

const (
	PermissionRead  Permission = "read"
	PermissionWrite Permission = "write"
)

// ResourceAdSets is the only resource guarded by the HTTP API.
const ResourceAdSets = "adsets"

// Principal represents an authenticated caller of the HTTP API
type Principal struct {
	PrincipalID string                  `json:"principal_id"`
	Permissions map[string][]Permission `json:"permissions"`
}

// HasPermission checks if a principal has a specific permission for a resource
func (p *Principal) HasPermission(resource string, permission Permission) bool {
	if p == nil || p.Permissions == nil {
		return false
	}
	return slices.Contains(p.Permissions[resource], permission)
}

// RequiredPermissions maps each tool to the permission it needs. update_adset
// only proposes a change, the write happens after a human confirms it.
var RequiredPermissions = map[string]map[string]Permission{
	"get_adsets":        {ResourceAdSets: PermissionRead},
	"get_adset_details": {ResourceAdSets: PermissionRead},
	"update_adset":      {ResourceAdSets: PermissionWrite},
}

// CheckOperationPermissions verifies if a principal has all required permissions for an operation
func CheckOperationPermissions(principal *Principal, operation string) error {
	requiredPerms, ok := RequiredPermissions[operation]
	if !ok {
		return nil
	}

	if principal == nil {
		return errors.New("authentication required")
	}

	for resource, requiredPerm := range requiredPerms {
		if !principal.HasPermission(resource, requiredPerm) {
			return &InsufficientPermissionsError{
				Resource:   resource,
				Permission: requiredPerm,
				Operation:  operation,
			}
		}
	}

	return nil
}

// InsufficientPermissionsError represents a permission denied error
type InsufficientPermissionsError struct {
	Resource   string
	Permission Permission
	Operation  string
}

func (e *InsufficientPermissionsError) Error() string {
	return "insufficient permissions for " + e.Operation
}

type contextKey string

const ContextKeyPrincipal contextKey = "principal"

// WithPrincipal returns ctx carrying principal.
func WithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, principal)
}

// GetPrincipalFromContext retrieves the principal from context
func GetPrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(ContextKeyPrincipal).(*Principal)
	return principal, ok && principal != nil
}
