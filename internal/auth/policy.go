package auth

import (
	"net/http"
	"strings"
)

// Policy maps requests to the minimum role they need.
type Policy struct {
	ExemptPaths    map[string]struct{}
	ExemptPrefixes []string
}

// NewDefaultPolicy builds a policy with the given exemptions.
func NewDefaultPolicy(exemptPaths []string, exemptPrefixes []string) Policy {
	set := make(map[string]struct{}, len(exemptPaths))
	for _, path := range exemptPaths {
		set[path] = struct{}{}
	}
	return Policy{ExemptPaths: set, ExemptPrefixes: exemptPrefixes}
}

// IsExempt returns true when a request should skip auth/RBAC.
func (p Policy) IsExempt(r *http.Request) bool {
	if r == nil {
		return true
	}
	if _, ok := p.ExemptPaths[r.URL.Path]; ok {
		return true
	}
	for _, prefix := range p.ExemptPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// RequiredRole resolves the role required for the request.
func (p Policy) RequiredRole(r *http.Request) (Role, bool) {
	if r == nil {
		return "", false
	}
	path := r.URL.Path
	read := r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions

	switch {
	case path == "/api/v1/invoices/generate":
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/invoices/") && strings.HasSuffix(path, "/pay"):
		return RoleAdmin, true
	case strings.HasPrefix(path, "/api/v1/invoices/"):
		if read {
			return RoleViewer, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/readings/"):
		if read {
			return RoleViewer, true
		}
		return RoleOperator, true
	case strings.HasPrefix(path, "/api/v1/circulation/"):
		if read {
			return RoleViewer, true
		}
		return RoleOperator, true
	}

	if strings.HasPrefix(path, "/api/") {
		if read {
			return RoleViewer, true
		}
		return RoleOperator, true
	}
	return "", false
}
