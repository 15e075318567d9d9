package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/estate-ledger/internal/apperr"
	"github.com/iliyamo/estate-ledger/internal/model"
)

// News manages property updates and general announcements.
type News struct {
	updates     UpdateStore
	properties  PropertyStore
	investments InvestmentStore
	policy      Policy
	log         Logger
}

// NewNews wires a News service.
func NewNews(updates UpdateStore, properties PropertyStore, investments InvestmentStore, policy Policy, log Logger) *News {
	return &News{updates: updates, properties: properties, investments: investments, policy: policy.normalize(), log: log}
}

// UpdateInput carries a new news item. A nil PropertyID makes it general
// news.
type UpdateInput struct {
	PropertyID *uint64
	Title      string
	Content    string
}

// UpdatePatch carries the fields to change. Setting ClearProperty turns
// the item into general news; PropertyID moves it to another property.
type UpdatePatch struct {
	Title         *string
	Content       *string
	PropertyID    *uint64
	ClearProperty bool
}

func (n *News) requireProperty(ctx context.Context, id *uint64) error {
	if id == nil {
		return nil
	}
	_, err := read(ctx, n.policy, func(ctx context.Context) (model.Property, error) {
		return n.properties.GetByID(ctx, *id)
	})
	return err
}

// CreateUpdate publishes a news item.
func (n *News) CreateUpdate(ctx context.Context, in UpdateInput) (model.Update, error) {
	u := model.Update{
		PropertyID: in.PropertyID,
		Title:      strings.TrimSpace(in.Title),
		Content:    strings.TrimSpace(in.Content),
	}
	if u.Title == "" || u.Content == "" {
		return model.Update{}, fmt.Errorf("%w: title and content are required", apperr.ErrInvalidInput)
	}
	if err := n.requireProperty(ctx, u.PropertyID); err != nil {
		return model.Update{}, err
	}
	if err := exec(ctx, n.policy, func(ctx context.Context) error { return n.updates.Create(ctx, &u) }); err != nil {
		return model.Update{}, err
	}
	return u, nil
}

// EditUpdate applies a partial edit to a news item.
func (n *News) EditUpdate(ctx context.Context, id uint64, patch UpdatePatch) (model.Update, error) {
	if patch.ClearProperty && patch.PropertyID != nil {
		return model.Update{}, fmt.Errorf("%w: property_id and clear_property are exclusive", apperr.ErrInvalidInput)
	}
	u, err := read(ctx, n.policy, func(ctx context.Context) (model.Update, error) {
		return n.updates.GetByID(ctx, id)
	})
	if err != nil {
		return model.Update{}, err
	}
	if patch.Title != nil {
		u.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Content != nil {
		u.Content = strings.TrimSpace(*patch.Content)
	}
	if u.Title == "" || u.Content == "" {
		return model.Update{}, fmt.Errorf("%w: title and content cannot be empty", apperr.ErrInvalidInput)
	}
	switch {
	case patch.ClearProperty:
		u.PropertyID = nil
	case patch.PropertyID != nil:
		if err := n.requireProperty(ctx, patch.PropertyID); err != nil {
			return model.Update{}, err
		}
		u.PropertyID = patch.PropertyID
	}
	if err := exec(ctx, n.policy, func(ctx context.Context) error { return n.updates.Save(ctx, &u) }); err != nil {
		return model.Update{}, err
	}
	return u, nil
}

// DeleteUpdate removes a news item.
func (n *News) DeleteUpdate(ctx context.Context, id uint64) error {
	return exec(ctx, n.policy, func(ctx context.Context) error { return n.updates.Delete(ctx, id) })
}

func (n *News) list(ctx context.Context, f model.UpdateFilter) ([]model.Update, int, error) {
	type page struct {
		items []model.Update
		total int
	}
	p, err := read(ctx, n.policy, func(ctx context.Context) (page, error) {
		items, total, err := n.updates.List(ctx, f)
		return page{items, total}, err
	})
	return p.items, p.total, err
}

// ListUpdates is the public news feed, newest first. With a propertyID
// only that property's items are returned.
func (n *News) ListUpdates(ctx context.Context, propertyID *uint64, page model.Page) ([]model.Update, int, error) {
	f := model.UpdateFilter{Page: page}
	if propertyID != nil {
		f.PropertyIDs = []uint64{*propertyID}
	}
	return n.list(ctx, f)
}

// InvestorFeed returns general news plus the items of every property the
// investor holds.
func (n *News) InvestorFeed(ctx context.Context, investorID uint64, page model.Page) ([]model.Update, int, error) {
	holdings, err := read(ctx, n.policy, func(ctx context.Context) ([]model.InvestmentDetail, error) {
		return n.investments.List(ctx, model.InvestmentFilter{UserID: investorID})
	})
	if err != nil {
		return nil, 0, err
	}
	seen := map[uint64]bool{}
	ids := []uint64{}
	for _, h := range holdings {
		if !seen[h.PropertyID] {
			seen[h.PropertyID] = true
			ids = append(ids, h.PropertyID)
		}
	}
	return n.list(ctx, model.UpdateFilter{PropertyIDs: ids, IncludeGeneral: true, Page: page})
}
