package auth

import "strings"

// Role is a caller role carried in the token.
type Role string

const (
	// RoleViewer may read invoices, exports and allocations.
	RoleViewer Role = "viewer"
	// RoleOperator may generate, edit and finalize invoices and validate readings.
	RoleOperator Role = "operator"
	// RoleAdmin may additionally record payments.
	RoleAdmin Role = "admin"
)

// NormalizeRole validates a role string, ignoring case and surrounding space.
func NormalizeRole(value string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	switch role {
	case RoleViewer, RoleOperator, RoleAdmin:
		return role, true
	default:
		return "", false
	}
}

// RoleAtLeast reports whether role satisfies required.
func RoleAtLeast(role Role, required Role) bool {
	return roleRank(role) >= roleRank(required)
}

func roleRank(role Role) int {
	switch role {
	case RoleViewer:
		return 1
	case RoleOperator:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}
