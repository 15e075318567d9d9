package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/queue"
)

const (
	minMotivation = 50
	maxMotivation = 2000
	maxExperience = 2000
)

// ApplicationInput carries a new investment application.
type ApplicationInput struct {
	Motivation       string
	InvestmentAmount *decimal.Decimal
	Experience       *string
}

// ApplicationPatch carries the applicant's edits; nil fields are left
// alone.
type ApplicationPatch struct {
	Motivation       *string
	InvestmentAmount *decimal.Decimal
	Experience       *string
}

// ApplicationReview is an admin decision. Status is UNDER_REVIEW,
// APPROVED or REJECTED.
type ApplicationReview struct {
	Status          model.ApplicationStatus
	AdminNotes      *string
	RejectionReason *string
}

// ReviewResult is returned by ReviewApplication. Transition is set when
// an approval changed the applicant's role.
type ReviewResult struct {
	Application model.Application
	Transition  RoleTransition
}

func checkMotivation(s string) (string, error) {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n < minMotivation || n > maxMotivation {
		return "", fmt.Errorf("%w: motivation must be %d to %d characters", apperr.ErrInvalidInput, minMotivation, maxMotivation)
	}
	return s, nil
}

func checkAmount(v *decimal.Decimal) error {
	if v == nil {
		return nil
	}
	if !v.IsPositive() {
		return fmt.Errorf("%w: investment_amount must be greater than zero", apperr.ErrInvalidValue)
	}
	return model.CheckMoney("investment_amount", *v)
}

func cleanText(field string, s *string, limit int) (*string, error) {
	if s == nil {
		return nil, nil
	}
	t := strings.TrimSpace(*s)
	if utf8.RuneCountInString(t) > limit {
		return nil, fmt.Errorf("%w: %s is longer than %d characters", apperr.ErrInvalidInput, field, limit)
	}
	if t == "" {
		return nil, nil
	}
	return &t, nil
}

func trimmed(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}

// Apply records a request by a USER to become an INVESTOR. A user with a
// higher role, or with an application still PENDING or UNDER_REVIEW,
// fails with apperr.ErrConflict.
func (m *Roles) Apply(ctx context.Context, userID uint64, in ApplicationInput) (model.Application, error) {
	motivation, err := checkMotivation(in.Motivation)
	if err != nil {
		return model.Application{}, err
	}
	if err := checkAmount(in.InvestmentAmount); err != nil {
		return model.Application{}, err
	}
	experience, err := cleanText("experience", in.Experience, maxExperience)
	if err != nil {
		return model.Application{}, err
	}
	app := model.Application{
		UserID:           userID,
		Motivation:       motivation,
		InvestmentAmount: in.InvestmentAmount,
		Experience:       experience,
		Status:           model.ApplicationPending,
	}
	check := func(u model.User, open int) error {
		if u.Role != model.RoleUser {
			return fmt.Errorf("%w: user %d already has role %s", apperr.ErrConflict, u.ID, u.Role)
		}
		if open > 0 {
			return fmt.Errorf("%w: user %d already has an open application", apperr.ErrConflict, u.ID)
		}
		return nil
	}
	if err := exec(ctx, m.policy, func(ctx context.Context) error {
		return m.applications.Create(ctx, &app, check)
	}); err != nil {
		return model.Application{}, err
	}
	m.log.Infof("roles: application %d submitted by user %d", app.ID, userID)
	publish(ctx, m.events, m.log, queue.LedgerEvent{
		Type:              queue.ApplicationSubmitted,
		UserID:            userID,
		ApplicationID:     app.ID,
		ApplicationStatus: string(app.Status),
	})
	return app, nil
}

// MyApplications lists the caller's own applications, newest first.
func (m *Roles) MyApplications(ctx context.Context, userID uint64, page model.Page) ([]model.ApplicationDetail, int, error) {
	return m.ListApplications(ctx, model.ApplicationFilter{UserID: userID, Page: page})
}

// EditApplication applies the applicant's edits while the application is
// PENDING. Another user's application is reported as not found; one that
// is already under review or decided fails with apperr.ErrConflict.
func (m *Roles) EditApplication(ctx context.Context, userID, appID uint64, patch ApplicationPatch) (model.Application, error) {
	var motivation string
	if patch.Motivation != nil {
		var err error
		if motivation, err = checkMotivation(*patch.Motivation); err != nil {
			return model.Application{}, err
		}
	}
	if err := checkAmount(patch.InvestmentAmount); err != nil {
		return model.Application{}, err
	}
	experience, err := cleanText("experience", patch.Experience, maxExperience)
	if err != nil {
		return model.Application{}, err
	}
	return write(ctx, m.policy, func(ctx context.Context) (model.Application, error) {
		return m.applications.Edit(ctx, appID, func(a *model.Application) error {
			if a.UserID != userID {
				return fmt.Errorf("application %d: %w", appID, apperr.ErrNotFound)
			}
			if a.Status != model.ApplicationPending {
				return fmt.Errorf("%w: application %d is %s", apperr.ErrConflict, appID, a.Status)
			}
			if patch.Motivation != nil {
				a.Motivation = motivation
			}
			if patch.InvestmentAmount != nil {
				a.InvestmentAmount = patch.InvestmentAmount
			}
			if patch.Experience != nil {
				a.Experience = experience
			}
			return nil
		})
	})
}

// ListApplications returns one page of applications and the total count.
func (m *Roles) ListApplications(ctx context.Context, f model.ApplicationFilter) ([]model.ApplicationDetail, int, error) {
	type page struct {
		items []model.ApplicationDetail
		total int
	}
	p, err := read(ctx, m.policy, func(ctx context.Context) (page, error) {
		items, total, err := m.applications.List(ctx, f)
		return page{items, total}, err
	})
	return p.items, p.total, err
}

// GetApplication returns one application.
func (m *Roles) GetApplication(ctx context.Context, id uint64) (model.ApplicationDetail, error) {
	return read(ctx, m.policy, func(ctx context.Context) (model.ApplicationDetail, error) {
		return m.applications.GetByID(ctx, id)
	})
}

// ReviewApplication records an admin decision. Approving promotes a USER
// applicant to INVESTOR under the Promote rules in the same transaction
// as the status change; an applicant who already ranks at or above
// INVESTOR keeps their role. APPROVED and REJECTED are final: reviewing
// such an application again fails with apperr.ErrConflict.
func (m *Roles) ReviewApplication(ctx context.Context, reviewerID, appID uint64, r ApplicationReview) (ReviewResult, error) {
	switch r.Status {
	case model.ApplicationUnderReview, model.ApplicationApproved, model.ApplicationRejected:
	default:
		return ReviewResult{}, fmt.Errorf("%w: review status must be UNDER_REVIEW, APPROVED or REJECTED", apperr.ErrInvalidInput)
	}
	notes, reason := trimmed(r.AdminNotes), trimmed(r.RejectionReason)
	promote := changeRole(model.RoleInvestor, up)
	type outcome struct {
		app           model.Application
		before, after model.User
	}
	res, err := write(ctx, m.policy, func(ctx context.Context) (outcome, error) {
		app, before, after, err := m.applications.Review(ctx, appID, func(a *model.Application, u *model.User, admins int) error {
			if a.Status.Final() {
				return fmt.Errorf("%w: application %d is already %s", apperr.ErrConflict, a.ID, a.Status)
			}
			now := time.Now().UTC()
			a.Status = r.Status
			a.ReviewedBy = &reviewerID
			a.ReviewedAt = &now
			a.AdminNotes = notes
			a.RejectionReason = reason
			if r.Status == model.ApplicationApproved && u.Role.Rank() < model.RoleInvestor.Rank() {
				return promote(u, admins)
			}
			return nil
		})
		return outcome{app, before, after}, err
	})
	if err != nil {
		return ReviewResult{}, err
	}
	m.log.Infof("roles: application %d %s by user %d", res.app.ID, res.app.Status, reviewerID)
	out := ReviewResult{Application: res.app, Transition: m.announce(ctx, res.before, res.after)}
	publish(ctx, m.events, m.log, queue.LedgerEvent{
		Type:              queue.ApplicationReviewed,
		UserID:            res.app.UserID,
		ApplicationID:     res.app.ID,
		ApplicationStatus: string(res.app.Status),
		ReviewerID:        reviewerID,
	})
	return out, nil
}
