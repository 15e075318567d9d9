package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationStatus is the review state of an investment application.
// APPROVED and REJECTED are final.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "PENDING"
	ApplicationUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationApproved    ApplicationStatus = "APPROVED"
	ApplicationRejected    ApplicationStatus = "REJECTED"
)

// ParseApplicationStatus normalizes s and reports whether it names a
// status.
func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	st := ApplicationStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case ApplicationPending, ApplicationUnderReview, ApplicationApproved, ApplicationRejected:
		return st, true
	}
	return "", false
}

// Final reports whether no further review is possible.
func (s ApplicationStatus) Final() bool {
	return s == ApplicationApproved || s == ApplicationRejected
}

// Application is a request by a USER to become an INVESTOR, stored in
// `investment_applications`. The applicant may edit it while it is
// PENDING; an admin approval promotes the applicant.
type Application struct {
	ID               uint64            // investment_applications.id
	UserID           uint64            // investment_applications.user_id
	Motivation       string            // investment_applications.motivation
	InvestmentAmount *decimal.Decimal  // investment_applications.investment_amount (nullable)
	Experience       *string           // investment_applications.experience (nullable)
	Status           ApplicationStatus // investment_applications.status
	ReviewedBy       *uint64           // investment_applications.reviewed_by (nullable)
	ReviewedAt       *time.Time        // investment_applications.reviewed_at (nullable)
	AdminNotes       *string           // investment_applications.admin_notes (nullable)
	RejectionReason  *string           // investment_applications.rejection_reason (nullable)
	CreatedAt        time.Time         // investment_applications.created_at
	UpdatedAt        time.Time         // investment_applications.updated_at
}

// ApplicationDetail is an application joined with the applicant and
// reviewer names shown in listings.
type ApplicationDetail struct {
	Application
	UserName     string
	UserEmail    string
	ReviewerName *string
}

// ApplicationFilter narrows an application listing. Zero UserID and nil
// Status match everything. Results are newest first.
type ApplicationFilter struct {
	UserID uint64
	Status *ApplicationStatus
	Page   Page
}
