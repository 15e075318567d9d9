// Package queue defines the ledger events exchanged over RabbitMQ, the
// publisher used by the services and the audit consumer.
package queue

import "time"

// QueueName is the durable queue every ledger event is routed to.
const QueueName = "ledger.events"

// Event types.
const (
	InvestmentAssigned = "investment.assigned"
	ValuationUpdated   = "valuation.updated"
	PropertySold       = "property.sold"
	UserRoleChanged    = "user.role_changed"
	UserStatusChanged  = "user.status_changed"

	ApplicationSubmitted = "application.submitted"
	ApplicationReviewed  = "application.reviewed"
)

// LedgerEvent is published after a ledger or role mutation commits. It
// carries enough for the audit log without querying the database. Money
// fields are decimal strings.
type LedgerEvent struct {
	Type              string    `json:"type"`
	OccurredAt        time.Time `json:"occurred_at"`
	UserID            uint64    `json:"user_id,omitempty"`
	PropertyID        uint64    `json:"property_id,omitempty"`
	InvestmentID      uint64    `json:"investment_id,omitempty"`
	InitialValue      string    `json:"initial_value,omitempty"`
	PreviousValue     string    `json:"previous_value,omitempty"`
	CurrentValue      string    `json:"current_value,omitempty"`
	PropertyStatus    string    `json:"property_status,omitempty"`
	FromRole          string    `json:"from_role,omitempty"`
	ToRole            string    `json:"to_role,omitempty"`
	Active            *bool     `json:"active,omitempty"`
	ApplicationID     uint64    `json:"application_id,omitempty"`
	ApplicationStatus string    `json:"application_status,omitempty"`
	ReviewerID        uint64    `json:"reviewer_id,omitempty"`
}
