package contracts

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"carbonlock/marketplace-portal/pkg/principal"
)

// Validation messages shown to the user, in rule order.
const (
	MsgRequired         = "All fields required."
	MsgNonPositive      = "Amount and price must be positive."
	MsgExpirationFuture = "Expiration must be in the future."
	PrincipalPattern    = "xxxxx-xxxxx-xxxxx-xxxxx-xxx"
)

// YearMessage is the delivery year rule message for the given minimum year.
func YearMessage(minYear int) string {
	return fmt.Sprintf("Year must be >= %d.", minYear)
}

// ParticipantMessage is the principal format message for buyer or seller.
func ParticipantMessage(role string) string {
	return fmt.Sprintf("Invalid %s principal format. Expected format: %s", role, PrincipalPattern)
}

var validate = validator.New()

// ValidationError is a local, pre-submission rejection of a form.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Field is a raw form value. It accepts JSON strings and numbers so numeric
// inputs can be posted either way.
type Field string

func (f *Field) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = Field(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("form value must be a string or a number")
	}
	*f = Field(n.String())
	return nil
}

func (f Field) trimmed() Field {
	return Field(strings.TrimSpace(string(f)))
}

// ContractForm holds the raw fields of the contract creation form.
type ContractForm struct {
	Buyer        Field `json:"buyer" form:"buyer"`
	Seller       Field `json:"seller" form:"seller"`
	AmountTonnes Field `json:"amount_tonnes" form:"amount_tonnes" validate:"required"`
	PriceUSD     Field `json:"price_usd" form:"price_usd" validate:"required"`
	DeliveryYear Field `json:"delivery_year" form:"delivery_year" validate:"required"`
	Expiration   Field `json:"expiration" form:"expiration" validate:"required"`
}

func (f ContractForm) normalized() ContractForm {
	return ContractForm{
		Buyer:        f.Buyer.trimmed(),
		Seller:       f.Seller.trimmed(),
		AmountTonnes: f.AmountTonnes.trimmed(),
		PriceUSD:     f.PriceUSD.trimmed(),
		DeliveryYear: f.DeliveryYear.trimmed(),
		Expiration:   f.Expiration.trimmed(),
	}
}

// EditForm holds the raw fields of the contract edit dialog.
type EditForm struct {
	Buyer        Field `json:"buyer" form:"buyer" validate:"required"`
	Seller       Field `json:"seller" form:"seller" validate:"required"`
	AmountTonnes Field `json:"amount_tonnes" form:"amount_tonnes" validate:"required"`
	PriceUSD     Field `json:"price_usd" form:"price_usd" validate:"required"`
	DeliveryYear Field `json:"delivery_year" form:"delivery_year" validate:"required"`
}

func (f EditForm) normalized() EditForm {
	return EditForm{
		Buyer:        f.Buyer.trimmed(),
		Seller:       f.Seller.trimmed(),
		AmountTonnes: f.AmountTonnes.trimmed(),
		PriceUSD:     f.PriceUSD.trimmed(),
		DeliveryYear: f.DeliveryYear.trimmed(),
	}
}

// ValidateContractForm checks a creation form against the rules in order:
// required fields, positive amount and price, delivery year, expiration, and
// finally the participant identifiers. The first violation is returned.
func ValidateContractForm(form ContractForm, now time.Time) (ContractDraft, error) {
	form = form.normalized()
	if err := validate.Struct(form); err != nil {
		return ContractDraft{}, &ValidationError{Field: "form", Message: MsgRequired}
	}

	amount, price, err := parseAmountAndPrice(form.AmountTonnes, form.PriceUSD)
	if err != nil {
		return ContractDraft{}, err
	}
	year, err := parseYear(form.DeliveryYear, now)
	if err != nil {
		return ContractDraft{}, err
	}

	expiration, perr := strconv.ParseInt(string(form.Expiration), 10, 64)
	if perr != nil || expiration <= now.Unix() {
		return ContractDraft{}, &ValidationError{Field: "expiration", Message: MsgExpirationFuture}
	}

	seller, err := ValidateParticipant("seller", string(form.Seller))
	if err != nil {
		return ContractDraft{}, err
	}

	draft := ContractDraft{
		Seller:       seller,
		AmountTonnes: amount,
		PriceUSD:     price,
		DeliveryYear: year,
		Expiration:   expiration,
	}
	if form.Buyer != "" {
		buyer, err := ValidateParticipant("buyer", string(form.Buyer))
		if err != nil {
			return ContractDraft{}, err
		}
		draft.Buyer = &buyer
	}
	return draft, nil
}

// ValidateEditForm checks an edit form. Both participants are required when
// editing.
func ValidateEditForm(form EditForm, now time.Time) (ContractDraft, error) {
	form = form.normalized()
	if err := validate.Struct(form); err != nil {
		return ContractDraft{}, &ValidationError{Field: "form", Message: MsgRequired}
	}

	amount, price, err := parseAmountAndPrice(form.AmountTonnes, form.PriceUSD)
	if err != nil {
		return ContractDraft{}, err
	}
	year, err := parseYear(form.DeliveryYear, now)
	if err != nil {
		return ContractDraft{}, err
	}

	buyer, err := ValidateParticipant("buyer", string(form.Buyer))
	if err != nil {
		return ContractDraft{}, err
	}
	seller, err := ValidateParticipant("seller", string(form.Seller))
	if err != nil {
		return ContractDraft{}, err
	}

	return ContractDraft{
		Buyer:        &buyer,
		Seller:       seller,
		AmountTonnes: amount,
		PriceUSD:     price,
		DeliveryYear: year,
	}, nil
}

// ValidateParticipant checks that value is a canonical principal and returns
// the trimmed identifier.
func ValidateParticipant(role, value string) (string, error) {
	normalized, err := principal.Canonical(value)
	if err != nil {
		return "", &ValidationError{Field: role, Message: ParticipantMessage(role)}
	}
	return normalized, nil
}

func parseAmountAndPrice(amountField, priceField Field) (float64, float64, error) {
	amount, aerr := strconv.ParseFloat(string(amountField), 64)
	price, perr := strconv.ParseFloat(string(priceField), 64)
	if aerr != nil || perr != nil || !positive(amount) || !positive(price) {
		return 0, 0, &ValidationError{Field: "amount_tonnes", Message: MsgNonPositive}
	}
	return amount, price, nil
}

func parseYear(yearField Field, now time.Time) (int, error) {
	minYear := now.Year()
	year, err := strconv.Atoi(string(yearField))
	if err != nil || year < minYear {
		return 0, &ValidationError{Field: "delivery_year", Message: YearMessage(minYear)}
	}
	return year, nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}
