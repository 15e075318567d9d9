// Package authz decides whether a role may perform an operation. It is a
// pure function of the role and a static table; it never reads the store.
package authz

import (
	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

// Capability names a permission granted to a role.
type Capability string

const (
	Browse            Capability = "browse"
	Profile           Capability = "profile"
	Portfolio         Capability = "portfolio"
	ManageUsers       Capability = "manage_users"
	ManageProperties  Capability = "manage_properties"
	ManageInvestments Capability = "manage_investments"
	ManageUpdates     Capability = "manage_updates"
)

func set(caps ...Capability) map[Capability]bool {
	m := make(map[Capability]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}

// grants is the capability set of each role. PUBLIC ⊂ USER ⊂ INVESTOR.
// ADMIN has the USER set plus every management capability but not
// portfolio; admins read portfolios through manage_investments.
var grants = map[model.Role]map[Capability]bool{
	model.RolePublic:   set(Browse),
	model.RoleUser:     set(Browse, Profile),
	model.RoleInvestor: set(Browse, Profile, Portfolio),
	model.RoleAdmin:    set(Browse, Profile, ManageUsers, ManageProperties, ManageInvestments, ManageUpdates),
}

// Capabilities returns the capabilities of role, or nil for an unknown
// role.
func Capabilities(role model.Role) []Capability {
	g, ok := grants[role]
	if !ok {
		return nil
	}
	out := make([]Capability, 0, len(g))
	for _, c := range []Capability{Browse, Profile, Portfolio, ManageUsers, ManageProperties, ManageInvestments, ManageUpdates} {
		if g[c] {
			out = append(out, c)
		}
	}
	return out
}

// Decision is the outcome of Authorize. Err is nil when Allowed.
type Decision struct {
	Allowed bool
	Missing []Capability
	Err     error
}

// Authorize checks that role holds every required capability. A PUBLIC
// caller is denied with apperr.ErrUnauthenticated so that clients can
// prompt for login; an authenticated caller is denied with
// apperr.ErrForbidden. Unknown roles are treated as PUBLIC.
func Authorize(role model.Role, required ...Capability) Decision {
	g, ok := grants[role]
	if !ok {
		role, g = model.RolePublic, grants[model.RolePublic]
	}
	var missing []Capability
	for _, c := range required {
		if !g[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) == 0 {
		return Decision{Allowed: true}
	}
	if role == model.RolePublic {
		return Decision{Missing: missing, Err: apperr.ErrUnauthenticated}
	}
	return Decision{Missing: missing, Err: apperr.ErrForbidden}
}
