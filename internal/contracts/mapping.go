package contracts

import (
	"encoding/json"
	"fmt"
)

// MappingError reports a remote record that could not be mapped into a
// validated internal type.
type MappingError struct {
	Record string
	Index  int
	Field  string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("invalid %s record at index %d: field %q %s", e.Record, e.Index, e.Field, e.Reason)
}

// RawContract is a contract record as received from the remote service. Every
// field is optional at this point; MapContract decides what is required.
type RawContract struct {
	ID           *uint64         `json:"id"`
	Buyer        *string         `json:"buyer"`
	Seller       *string         `json:"seller"`
	AmountTonnes *float64        `json:"amount_tonnes"`
	PriceUSD     *float64        `json:"price_usd"`
	DeliveryYear *int            `json:"delivery_year"`
	Status       json.RawMessage `json:"status"`
	CreatedAt    *int64          `json:"created_at"`
	UpdatedAt    *int64          `json:"updated_at"`
}

// RawCredit is a credit record as received from the remote service.
type RawCredit struct {
	ID               *uint64 `json:"id"`
	Owner            *string `json:"owner"`
	RiskScore        *uint8  `json:"risk_score"`
	RiskScoreHistory []int   `json:"risk_score_history"`
}

// RawEvent is an event record as received from the remote service.
type RawEvent struct {
	ContractID *uint64         `json:"contract_id"`
	EventType  json.RawMessage `json:"event_type"`
	Timestamp  *int64          `json:"timestamp"`
	Details    *string         `json:"details"`
}

// MapContract validates a raw contract record.
func MapContract(index int, raw RawContract) (Contract, error) {
	fail := func(field, reason string) (Contract, error) {
		return Contract{}, &MappingError{Record: "contract", Index: index, Field: field, Reason: reason}
	}

	switch {
	case raw.ID == nil:
		return fail("id", "is missing")
	case raw.Seller == nil:
		return fail("seller", "is missing")
	case raw.AmountTonnes == nil:
		return fail("amount_tonnes", "is missing")
	case raw.PriceUSD == nil:
		return fail("price_usd", "is missing")
	case raw.DeliveryYear == nil:
		return fail("delivery_year", "is missing")
	case raw.CreatedAt == nil:
		return fail("created_at", "is missing")
	case raw.UpdatedAt == nil:
		return fail("updated_at", "is missing")
	}

	label, err := variantLabel(raw.Status)
	if err != nil {
		return fail("status", err.Error())
	}
	status, err := ParseStatus(label)
	if err != nil {
		return fail("status", err.Error())
	}

	c := Contract{
		ID:           *raw.ID,
		Seller:       *raw.Seller,
		AmountTonnes: *raw.AmountTonnes,
		PriceUSD:     *raw.PriceUSD,
		DeliveryYear: *raw.DeliveryYear,
		Status:       status,
		CreatedAt:    *raw.CreatedAt,
		UpdatedAt:    *raw.UpdatedAt,
	}
	if raw.Buyer != nil && *raw.Buyer != "" {
		buyer := *raw.Buyer
		c.Buyer = &buyer
	}
	return c, nil
}

// MapContracts maps a whole list, failing on the first invalid record.
func MapContracts(raws []RawContract) ([]Contract, error) {
	out := make([]Contract, 0, len(raws))
	for i, raw := range raws {
		c, err := MapContract(i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MapCredit validates a raw credit record.
func MapCredit(index int, raw RawCredit) (Credit, error) {
	if raw.ID == nil {
		return Credit{}, &MappingError{Record: "credit", Index: index, Field: "id", Reason: "is missing"}
	}
	if raw.Owner == nil {
		return Credit{}, &MappingError{Record: "credit", Index: index, Field: "owner", Reason: "is missing"}
	}
	history := raw.RiskScoreHistory
	if history == nil {
		history = []int{}
	}
	return Credit{
		ID:               *raw.ID,
		Owner:            *raw.Owner,
		RiskScore:        raw.RiskScore,
		RiskScoreHistory: history,
	}, nil
}

// MapCredits maps a whole list, failing on the first invalid record.
func MapCredits(raws []RawCredit) ([]Credit, error) {
	out := make([]Credit, 0, len(raws))
	for i, raw := range raws {
		c, err := MapCredit(i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// MapEvent validates a raw event record.
func MapEvent(index int, raw RawEvent) (Event, error) {
	fail := func(field, reason string) (Event, error) {
		return Event{}, &MappingError{Record: "event", Index: index, Field: field, Reason: reason}
	}
	if raw.ContractID == nil {
		return fail("contract_id", "is missing")
	}
	if raw.Timestamp == nil {
		return fail("timestamp", "is missing")
	}
	label, err := variantLabel(raw.EventType)
	if err != nil {
		return fail("event_type", err.Error())
	}
	et, err := ParseEventType(label)
	if err != nil {
		return fail("event_type", err.Error())
	}
	return Event{
		ContractID: *raw.ContractID,
		EventType:  et,
		Timestamp:  *raw.Timestamp,
		Details:    raw.Details,
	}, nil
}

// MapEvents maps a whole list, failing on the first invalid record.
func MapEvents(raws []RawEvent) ([]Event, error) {
	out := make([]Event, 0, len(raws))
	for i, raw := range raws {
		e, err := MapEvent(i, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// variantLabel accepts either a plain string label ("Created") or a variant
// object with a single key ({"Created": null}).
func variantLabel(msg json.RawMessage) (string, error) {
	if len(msg) == 0 || string(msg) == "null" {
		return "", fmt.Errorf("is missing")
	}

	var s string
	if err := json.Unmarshal(msg, &s); err == nil {
		return normalizeLabel(s), nil
	}

	var variant map[string]json.RawMessage
	if err := json.Unmarshal(msg, &variant); err != nil {
		return "", fmt.Errorf("is neither a label nor a variant")
	}
	if len(variant) != 1 {
		return "", fmt.Errorf("variant has %d keys", len(variant))
	}
	for k := range variant {
		return normalizeLabel(k), nil
	}
	return "", fmt.Errorf("is missing")
}
