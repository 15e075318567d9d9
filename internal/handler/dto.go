package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/estate-ledger/internal/auth"
	"github.com/iliyamo/estate-ledger/internal/model"
	"github.com/iliyamo/estate-ledger/internal/service"
)

// Decimal amounts are rendered as JSON strings so clients never see a
// rounded float.

type userDTO struct {
	ID        uint64     `json:"id"`
	Email     string     `json:"email"`
	FullName  string     `json:"full_name"`
	Phone     *string    `json:"phone,omitempty"`
	Role      model.Role `json:"role"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
}

func toUser(u model.User) userDTO {
	return userDTO{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		Phone:     u.Phone,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CreatedAt: u.CreatedAt,
	}
}

func toUsers(us []model.User) []userDTO {
	out := make([]userDTO, len(us))
	for i, u := range us {
		out[i] = toUser(u)
	}
	return out
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type sessionResp struct {
	User    userDTO   `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func toSession(u model.User, p auth.TokenPair) sessionResp {
	return sessionResp{
		User:    toUser(u),
		Access:  tokenPart{Token: p.AccessToken, Expires: p.AccessExpiresAt},
		Refresh: tokenPart{Token: p.RefreshToken, Expires: p.RefreshExpiresAt},
	}
}

type propertyDTO struct {
	ID           uint64               `json:"id"`
	Title        string               `json:"title"`
	Location     string               `json:"location"`
	Description  string               `json:"description,omitempty"`
	Status       model.PropertyStatus `json:"status"`
	PrimaryImage string               `json:"primary_image,omitempty"`
	ImageURLs    []string             `json:"image_urls"`
	Archived     bool                 `json:"archived,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

func toProperty(p model.Property) propertyDTO {
	imgs := p.ImageURLs
	if imgs == nil {
		imgs = []string{}
	}
	return propertyDTO{
		ID:           p.ID,
		Title:        p.Title,
		Location:     p.Location,
		Description:  p.Description,
		Status:       p.Status,
		PrimaryImage: p.PrimaryImage(),
		ImageURLs:    imgs,
		Archived:     p.Archived(),
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func toProperties(ps []model.Property) []propertyDTO {
	out := make([]propertyDTO, len(ps))
	for i, p := range ps {
		out[i] = toProperty(p)
	}
	return out
}

type positionDTO struct {
	ID               uint64               `json:"id"`
	UserID           uint64               `json:"user_id"`
	PropertyID       uint64               `json:"property_id"`
	PropertyTitle    string               `json:"property_title"`
	PropertyLocation string               `json:"property_location"`
	PropertyStatus   model.PropertyStatus `json:"property_status"`
	InitialValue     decimal.Decimal      `json:"initial_value"`
	CurrentValue     decimal.Decimal      `json:"current_value"`
	GrowthAmount     decimal.Decimal      `json:"growth_amount"`
	GrowthPercent    decimal.Decimal      `json:"growth_percent"`
	CreatedAt        time.Time            `json:"created_at"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

func toPosition(p service.Position) positionDTO {
	return positionDTO{
		ID:               p.ID,
		UserID:           p.UserID,
		PropertyID:       p.PropertyID,
		PropertyTitle:    p.PropertyTitle,
		PropertyLocation: p.PropertyLocation,
		PropertyStatus:   p.PropertyStatus,
		InitialValue:     p.InitialValue,
		CurrentValue:     p.CurrentValue,
		GrowthAmount:     p.Growth.Amount,
		GrowthPercent:    p.Growth.Percent,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toPositions(ps []service.Position) []positionDTO {
	out := make([]positionDTO, len(ps))
	for i, p := range ps {
		out[i] = toPosition(p)
	}
	return out
}

type totalsDTO struct {
	Investments   int             `json:"investments"`
	Properties    int             `json:"properties"`
	InitialValue  decimal.Decimal `json:"initial_value"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	GrowthAmount  decimal.Decimal `json:"growth_amount"`
	GrowthPercent decimal.Decimal `json:"growth_percent"`
}

type portfolioResp struct {
	UserID      uint64        `json:"user_id"`
	Totals      totalsDTO     `json:"totals"`
	Investments []positionDTO `json:"investments"`
}

func toPortfolio(p service.Portfolio) portfolioResp {
	t := p.Totals
	return portfolioResp{
		UserID: p.UserID,
		Totals: totalsDTO{
			Investments:   t.Count,
			Properties:    t.Properties,
			InitialValue:  t.InitialValue,
			CurrentValue:  t.CurrentValue,
			GrowthAmount:  t.GrowthAmount,
			GrowthPercent: t.GrowthPercent,
		},
		Investments: toPositions(p.Positions),
	}
}

type updateDTO struct {
	ID         uint64    `json:"id"`
	PropertyID *uint64   `json:"property_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func toUpdate(u model.Update) updateDTO {
	return updateDTO{
		ID:         u.ID,
		PropertyID: u.PropertyID,
		Title:      u.Title,
		Content:    u.Content,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

func toUpdates(us []model.Update) []updateDTO {
	out := make([]updateDTO, len(us))
	for i, u := range us {
		out[i] = toUpdate(u)
	}
	return out
}

type applicationDTO struct {
	ID               uint64                  `json:"id"`
	UserID           uint64                  `json:"user_id"`
	UserName         string                  `json:"user_name,omitempty"`
	UserEmail        string                  `json:"user_email,omitempty"`
	Motivation       string                  `json:"motivation"`
	InvestmentAmount *decimal.Decimal        `json:"investment_amount"`
	Experience       *string                 `json:"experience"`
	Status           model.ApplicationStatus `json:"status"`
	ReviewedBy       *uint64                 `json:"reviewed_by"`
	ReviewerName     *string                 `json:"reviewer_name,omitempty"`
	ReviewedAt       *time.Time              `json:"reviewed_at"`
	AdminNotes       *string                 `json:"admin_notes"`
	RejectionReason  *string                 `json:"rejection_reason"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`
}

func toApplication(a model.Application) applicationDTO {
	return applicationDTO{
		ID:               a.ID,
		UserID:           a.UserID,
		Motivation:       a.Motivation,
		InvestmentAmount: a.InvestmentAmount,
		Experience:       a.Experience,
		Status:           a.Status,
		ReviewedBy:       a.ReviewedBy,
		ReviewedAt:       a.ReviewedAt,
		AdminNotes:       a.AdminNotes,
		RejectionReason:  a.RejectionReason,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

func toApplicationDetail(d model.ApplicationDetail) applicationDTO {
	out := toApplication(d.Application)
	out.UserName, out.UserEmail, out.ReviewerName = d.UserName, d.UserEmail, d.ReviewerName
	return out
}

func toApplicationDetails(ds []model.ApplicationDetail) []applicationDTO {
	out := make([]applicationDTO, len(ds))
	for i, d := range ds {
		out[i] = toApplicationDetail(d)
	}
	return out
}
