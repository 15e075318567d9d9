package authz

import (
	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

// Operation names, one per HTTP route.
const (
	OpHealth           = "health"
	OpSignup           = "auth.signup"
	OpLogin            = "auth.login"
	OpRefresh          = "auth.refresh"
	OpLogout           = "auth.logout"
	OpMe               = "me"
	OpUpdateMe         = "me.update"
	OpLogoutAll        = "me.logout_all"
	OpApply            = "me.applications.create"
	OpMyApplications   = "me.applications.list"
	OpEditApplication  = "me.applications.update"
	OpListProperties   = "properties.list"
	OpGetProperty      = "properties.get"
	OpListUpdates      = "updates.list"
	OpMyInvestments    = "investor.investments.list"
	OpMyInvestment     = "investor.investments.get"
	OpMyPortfolio      = "investor.portfolio"
	OpMyUpdates        = "investor.updates"
	OpListUsers        = "admin.users.list"
	OpPromoteUser      = "admin.users.promote"
	OpDemoteUser       = "admin.users.demote"
	OpDisableUser      = "admin.users.disable"
	OpEnableUser       = "admin.users.enable"
	OpUserPortfolio    = "admin.users.portfolio"
	OpCreateProperty   = "admin.properties.create"
	OpAdminProperties  = "admin.properties.list"
	OpEditProperty     = "admin.properties.update"
	OpDeleteProperty   = "admin.properties.delete"
	OpArchiveProperty  = "admin.properties.archive"
	OpRestoreProperty  = "admin.properties.restore"
	OpMarkSold         = "admin.properties.sold"
	OpAssignInvestment = "admin.investments.assign"
	OpListInvestments  = "admin.investments.list"
	OpUpdateValuation  = "admin.investments.valuation"
	OpCreateUpdate     = "admin.updates.create"
	OpEditUpdate       = "admin.updates.update"
	OpDeleteUpdate     = "admin.updates.delete"
	OpListApplications = "admin.applications.list"
	OpGetApplication   = "admin.applications.get"
	OpReviewApp        = "admin.applications.review"
)

// Requirements is the static operation table. Every route is registered
// under one of these names; an operation missing from the table is
// refused.
var Requirements = map[string][]Capability{
	OpHealth:           {Browse},
	OpSignup:           {Browse},
	OpLogin:            {Browse},
	OpRefresh:          {Browse},
	OpLogout:           {Browse},
	OpMe:               {Profile},
	OpUpdateMe:         {Profile},
	OpLogoutAll:        {Profile},
	OpApply:            {Profile},
	OpMyApplications:   {Profile},
	OpEditApplication:  {Profile},
	OpListProperties:   {Browse},
	OpGetProperty:      {Browse},
	OpListUpdates:      {Browse},
	OpMyInvestments:    {Portfolio},
	OpMyInvestment:     {Portfolio},
	OpMyPortfolio:      {Portfolio},
	OpMyUpdates:        {Portfolio},
	OpListUsers:        {ManageUsers},
	OpPromoteUser:      {ManageUsers},
	OpDemoteUser:       {ManageUsers},
	OpDisableUser:      {ManageUsers},
	OpEnableUser:       {ManageUsers},
	OpUserPortfolio:    {ManageUsers, ManageInvestments},
	OpCreateProperty:   {ManageProperties},
	OpAdminProperties:  {ManageProperties},
	OpEditProperty:     {ManageProperties},
	OpDeleteProperty:   {ManageProperties},
	OpArchiveProperty:  {ManageProperties},
	OpRestoreProperty:  {ManageProperties},
	OpMarkSold:         {ManageProperties},
	OpAssignInvestment: {ManageInvestments},
	OpListInvestments:  {ManageInvestments},
	OpUpdateValuation:  {ManageInvestments},
	OpCreateUpdate:     {ManageUpdates},
	OpEditUpdate:       {ManageUpdates},
	OpDeleteUpdate:     {ManageUpdates},
	OpListApplications: {ManageUsers},
	OpGetApplication:   {ManageUsers},
	OpReviewApp:        {ManageUsers},
}

// AuthorizeOp looks op up in Requirements and authorizes role against
// it. Unknown operations are forbidden for everyone.
func AuthorizeOp(role model.Role, op string) Decision {
	req, ok := Requirements[op]
	if !ok {
		return Decision{Err: apperr.ErrForbidden}
	}
	return Authorize(role, req...)
}
