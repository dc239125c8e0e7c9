package contracts

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Total is the contract value in USD.
func (c Contract) Total() float64 {
	return c.AmountTonnes * c.PriceUSD
}

// StatusColor maps a status to the badge class used by the contract table.
func StatusColor(s ContractStatus) string {
	switch s {
	case StatusCreated:
		return "secondary"
	case StatusPurchased:
		return "success"
	case StatusExpired:
		return "warning"
	case StatusSettled:
		return "info"
	default:
		return "light"
	}
}

// FormatUSD renders an amount as US dollars with thousands separators,
// e.g. 12345.5 -> "$12,345.50".
func FormatUSD(amount float64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := strconv.FormatFloat(amount, 'f', 2, 64)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]
	return sign + "$" + groupThousands(intPart) + frac
}

// FormatTonnes renders an amount of tonnes without trailing zeros.
func FormatTonnes(amount float64) string {
	s := strconv.FormatFloat(amount, 'f', -1, 64)
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	return groupThousands(intPart) + frac + " t"
}

// Abbreviate shortens a participant identifier to its first six and last four
// characters.
func Abbreviate(id string) string {
	if len(id) <= 10 {
		return id
	}
	return id[:6] + "..." + id[len(id)-4:]
}

// FormatTimestamp renders unix seconds in UTC.
func FormatTimestamp(sec int64) string {
	return time.Unix(sec, 0).UTC().Format("2006-01-02 15:04:05 UTC")
}

// Actions lists the row actions available for a contract.
type Actions struct {
	Buy    bool `json:"buy"`
	Edit   bool `json:"edit"`
	Delete bool `json:"delete"`
}

// Row is a contract prepared for display.
type Row struct {
	Contract
	BuyerShort  string  `json:"buyer_short"`
	SellerShort string  `json:"seller_short"`
	TotalUSD    float64 `json:"total_usd"`
	PriceLabel  string  `json:"price_label"`
	TotalLabel  string  `json:"total_label"`
	AmountLabel string  `json:"amount_label"`
	StatusColor string  `json:"status_color"`
	Actions     Actions `json:"actions"`
}

// NewRow builds the display row of a contract.
func NewRow(c Contract) Row {
	buyer := "N/A"
	if c.Buyer != nil {
		buyer = Abbreviate(*c.Buyer)
	}
	return Row{
		Contract:    c,
		BuyerShort:  buyer,
		SellerShort: Abbreviate(c.Seller),
		TotalUSD:    c.Total(),
		PriceLabel:  fmt.Sprintf("%s/t", FormatUSD(c.PriceUSD)),
		TotalLabel:  FormatUSD(c.Total()),
		AmountLabel: FormatTonnes(c.AmountTonnes),
		StatusColor: StatusColor(c.Status),
		Actions:     Actions{Buy: CanBuy(c.Status), Edit: true, Delete: true},
	}
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// Rows builds the display rows of a list of contracts.
func Rows(list []Contract) []Row {
	out := make([]Row, len(list))
	for i, c := range list {
		out[i] = NewRow(c)
	}
	return out
}
