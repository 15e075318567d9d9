package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name    string
		role    model.Role
		caps    []Capability
		wantErr error
	}{
		{"public browses", model.RolePublic, []Capability{Browse}, nil},
		{"public needs login for profile", model.RolePublic, []Capability{Profile}, apperr.ErrUnauthenticated},
		{"public needs login for admin", model.RolePublic, []Capability{ManageUsers}, apperr.ErrUnauthenticated},
		{"user profile", model.RoleUser, []Capability{Profile}, nil},
		{"user has no portfolio", model.RoleUser, []Capability{Portfolio}, apperr.ErrForbidden},
		{"investor portfolio", model.RoleInvestor, []Capability{Browse, Profile, Portfolio}, nil},
		{"investor cannot manage", model.RoleInvestor, []Capability{ManageInvestments}, apperr.ErrForbidden},
		{"admin manages", model.RoleAdmin, []Capability{ManageUsers, ManageProperties, ManageInvestments, ManageUpdates}, nil},
		{"admin has no portfolio", model.RoleAdmin, []Capability{Portfolio}, apperr.ErrForbidden},
		{"unknown role is public", model.Role("ROOT"), []Capability{Profile}, apperr.ErrUnauthenticated},
		{"nothing required", model.RolePublic, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Authorize(tt.role, tt.caps...)
			if tt.wantErr == nil {
				assert.True(t, d.Allowed)
				assert.NoError(t, d.Err)
				return
			}
			assert.False(t, d.Allowed)
			assert.ErrorIs(t, d.Err, tt.wantErr)
			assert.NotEmpty(t, d.Missing)
		})
	}
}

func TestRoleSetsAreNested(t *testing.T) {
	order := []model.Role{model.RolePublic, model.RoleUser, model.RoleInvestor}
	for i := 1; i < len(order); i++ {
		for _, c := range Capabilities(order[i-1]) {
			assert.True(t, Authorize(order[i], c).Allowed, "%s should inherit %s", order[i], c)
		}
	}
	for _, c := range Capabilities(model.RoleUser) {
		assert.True(t, Authorize(model.RoleAdmin, c).Allowed, "admin should inherit %s", c)
	}
}

func TestEveryOperationIsReachable(t *testing.T) {
	for op, caps := range Requirements {
		assert.NotEmpty(t, caps, op)
		if Authorize(model.RolePublic, caps...).Allowed {
			continue
		}
		// Every protected operation is reachable by some authenticated role.
		reachable := false
		for _, r := range []model.Role{model.RoleUser, model.RoleInvestor, model.RoleAdmin} {
			reachable = reachable || Authorize(r, caps...).Allowed
		}
		assert.True(t, reachable, op)
	}
}

func TestAuthorizeOp(t *testing.T) {
	assert.True(t, AuthorizeOp(model.RoleAdmin, OpUpdateValuation).Allowed)
	assert.ErrorIs(t, AuthorizeOp(model.RoleInvestor, OpUpdateValuation).Err, apperr.ErrForbidden)
	assert.ErrorIs(t, AuthorizeOp(model.RolePublic, OpMyPortfolio).Err, apperr.ErrUnauthenticated)
	assert.True(t, AuthorizeOp(model.RolePublic, OpListProperties).Allowed)
	assert.ErrorIs(t, AuthorizeOp(model.RoleAdmin, "no.such.op").Err, apperr.ErrForbidden)
}
