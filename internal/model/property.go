package model

import (
	"strings"
	"time"
)

// PropertyStatus is the market state of a property.
//
//	AVAILABLE --first investment--> INVESTED --mark sold--> SOLD
//	AVAILABLE --mark sold--> SOLD
//
// SOLD is terminal.
type PropertyStatus string

const (
	StatusAvailable PropertyStatus = "AVAILABLE"
	StatusInvested  PropertyStatus = "INVESTED"
	StatusSold      PropertyStatus = "SOLD"
)

// ParsePropertyStatus normalizes s and reports whether it is a known status.
func ParsePropertyStatus(s string) (PropertyStatus, bool) {
	st := PropertyStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusAvailable, StatusInvested, StatusSold:
		return st, true
	}
	return "", false
}

// RecordState tags a row as live or archived. Archived properties keep
// their investment history but leave the public listing.
type RecordState string

const (
	RecordActive   RecordState = "ACTIVE"
	RecordArchived RecordState = "ARCHIVED"
)

// Property represents a real-estate listing as stored in the
// `properties` table.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – listing headline.
//  Location    – free-form address or area.
//  Description – optional long text.
//  Status      – AVAILABLE, INVESTED or SOLD.
//  ImageURLs   – ordered image references; the first is the primary image.
//  RecordState – ACTIVE or ARCHIVED.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Property struct {
	ID          uint64         // properties.id
	Title       string         // properties.title
	Location    string         // properties.location
	Description string         // properties.description
	Status      PropertyStatus // properties.status
	ImageURLs   []string       // properties.image_urls (JSON array)
	RecordState RecordState    // properties.record_state
	CreatedAt   time.Time      // properties.created_at
	UpdatedAt   time.Time      // properties.updated_at
}

// PrimaryImage returns the first image reference, or "" when there is none.
func (p Property) PrimaryImage() string {
	if len(p.ImageURLs) == 0 {
		return ""
	}
	return p.ImageURLs[0]
}

// Archived reports whether the property has been archived.
func (p Property) Archived() bool { return p.RecordState == RecordArchived }

// AcceptsInvestments reports whether a new investment may target p.
func (p Property) AcceptsInvestments() bool {
	return p.Status != StatusSold && !p.Archived()
}

// Update is a news item, optionally attached to a property. A nil
// PropertyID means general news.
type Update struct {
	ID         uint64    // updates.id
	PropertyID *uint64   // updates.property_id (nullable)
	Title      string    // updates.title
	Content    string    // updates.content
	CreatedAt  time.Time // updates.created_at
	UpdatedAt  time.Time // updates.updated_at
}
