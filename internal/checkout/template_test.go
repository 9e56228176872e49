package checkout

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstitute(t *testing.T) {
	p := testProfile()

	assert.Equal(t, "4242424242424242", Substitute("{card.number}", p))
	assert.Equal(t, "Demo User, 1 Main St, Amsterdam", Substitute("{address.full_name}, {address.street}, {address.city}", p))
	assert.Equal(t, "demo@example.com", Substitute("{user.email}", p))

	// Plain values pass through untouched.
	assert.Equal(t, "#submit", Substitute("#submit", p))

	// Unknown placeholders stay visible instead of becoming empty fields.
	assert.Equal(t, "{card.pin}", Substitute("{card.pin}", p))
}

func TestRedact(t *testing.T) {
	p := testProfile()

	masked := Redact("typed 4242424242424242 into #card-number, cvc 123", p)
	assert.NotContains(t, masked, "4242424242424242")
	assert.NotContains(t, masked, " 123")
	assert.Contains(t, masked, "****")

	var empty Profile
	assert.Equal(t, "no card on page", Redact("no card on page", empty))
}
