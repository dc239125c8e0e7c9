package contracts

import (
	"fmt"
	"strings"
)

// ContractStatus is the lifecycle label assigned by the remote service.
type ContractStatus string

const (
	StatusCreated   ContractStatus = "Created"
	StatusPurchased ContractStatus = "Purchased"
	StatusExpired   ContractStatus = "Expired"
	StatusSettled   ContractStatus = "Settled"
)

// ParseStatus maps a remote status label onto the closed status set.
func ParseStatus(s string) (ContractStatus, error) {
	switch ContractStatus(s) {
	case StatusCreated, StatusPurchased, StatusExpired, StatusSettled:
		return ContractStatus(s), nil
	}
	return "", fmt.Errorf("unknown contract status %q", s)
}

// EventType labels an entry of the remote event log.
type EventType string

const (
	EventCreated          EventType = "Created"
	EventPurchased        EventType = "Purchased"
	EventExpired          EventType = "Expired"
	EventSettled          EventType = "Settled"
	EventRiskScoreUpdated EventType = "RiskScoreUpdated"
)

// ParseEventType maps a remote event label onto the known event types.
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventCreated, EventPurchased, EventExpired, EventSettled, EventRiskScoreUpdated:
		return EventType(s), nil
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

// Contract is a carbon-credit forward agreement as tracked by the remote service.
type Contract struct {
	ID           uint64         `json:"id"`
	Buyer        *string        `json:"buyer"`
	Seller       string         `json:"seller"`
	AmountTonnes float64        `json:"amount_tonnes"`
	PriceUSD     float64        `json:"price_usd"`
	DeliveryYear int            `json:"delivery_year"`
	Status       ContractStatus `json:"status"`
	CreatedAt    int64          `json:"created_at"`
	UpdatedAt    int64          `json:"updated_at"`
}

// BuyerOrEmpty returns the buyer identifier, or "" for unsold contracts.
func (c Contract) BuyerOrEmpty() string {
	if c.Buyer == nil {
		return ""
	}
	return *c.Buyer
}

// Involves reports whether the principal is the buyer or the seller.
func (c Contract) Involves(principal string) bool {
	if principal == "" {
		return false
	}
	return c.Seller == principal || c.BuyerOrEmpty() == principal
}

// Credit is a tokenized carbon credit with its risk score history.
type Credit struct {
	ID               uint64 `json:"id"`
	Owner            string `json:"owner"`
	RiskScore        *uint8 `json:"risk_score"`
	RiskScoreHistory []int  `json:"risk_score_history"`
}

// Event is one entry of the remote contract event log.
type Event struct {
	ContractID uint64    `json:"contract_id"`
	EventType  EventType `json:"event_type"`
	Timestamp  int64     `json:"timestamp"`
	Details    *string   `json:"details,omitempty"`
}

// ContractDraft is a validated set of contract fields ready to be sent to the
// remote service.
type ContractDraft struct {
	Buyer        *string `json:"buyer,omitempty"`
	Seller       string  `json:"seller"`
	AmountTonnes float64 `json:"amount_tonnes"`
	PriceUSD     float64 `json:"price_usd"`
	DeliveryYear int     `json:"delivery_year"`
	// Expiration is only checked locally and is never sent upstream.
	Expiration int64 `json:"-"`
}

// EventsFor returns the events of a single contract, preserving log order.
func EventsFor(events []Event, contractID uint64) []Event {
	out := make([]Event, 0)
	for _, e := range events {
		if e.ContractID == contractID {
			out = append(out, e)
		}
	}
	return out
}

// FindContract returns the contract with the given id.
func FindContract(list []Contract, id uint64) (Contract, bool) {
	for _, c := range list {
		if c.ID == id {
			return c, true
		}
	}
	return Contract{}, false
}

func normalizeLabel(s string) string {
	return strings.TrimSpace(s)
}
