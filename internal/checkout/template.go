package checkout

import (
	"strings"

	"github.com/clawcart/clawcart/internal/models"
)

// Card is the single-use virtual card produced by the off-ramp for one
// purchase. Its values exist only inside the worker process.
type Card struct {
	Number   string `json:"number"`
	ExpMonth string `json:"exp_month"`
	ExpYear  string `json:"exp_year"`
	CVC      string `json:"cvc"`
	Holder   string `json:"holder"`
}

// Profile bundles everything a stored flow's template variables can refer
// to. Learned flows persist placeholders like {card.number}; the concrete
// values are substituted per order at execution time and never stored.
type Profile struct {
	Card    Card
	Address models.ShippingAddress
	Email   string
	Phone   string
}

// Substitute resolves template variables in a step value. Unknown
// placeholders are left intact so a malformed flow fails visibly at the
// merchant instead of silently submitting an empty field.
func Substitute(value string, p Profile) string {
	if !strings.Contains(value, "{") {
		return value
	}
	r := strings.NewReplacer(
		"{card.number}", p.Card.Number,
		"{card.exp_month}", p.Card.ExpMonth,
		"{card.exp_year}", p.Card.ExpYear,
		"{card.cvc}", p.Card.CVC,
		"{card.holder}", p.Card.Holder,
		"{address.full_name}", p.Address.FullName,
		"{address.street}", p.Address.Street,
		"{address.city}", p.Address.City,
		"{address.state}", p.Address.State,
		"{address.zip}", p.Address.ZipCode,
		"{address.country}", p.Address.Country,
		"{user.email}", p.Email,
		"{user.phone}", p.Phone,
	)
	return r.Replace(value)
}

// Redact masks any substituted sensitive value so page context handed to
// the reasoner or written to logs never carries card data.
func Redact(text string, p Profile) string {
	if text == "" {
		return text
	}
	if p.Card.Number != "" {
		text = strings.ReplaceAll(text, p.Card.Number, "****")
	}
	if p.Card.CVC != "" {
		text = strings.ReplaceAll(text, p.Card.CVC, "***")
	}
	return text
}
