package search

// Geo carries the locale context for a search. It is derived from the
// user's default shipping address, never guessed from network origin.
type Geo struct {
	Country  string `json:"country"`
	Currency string `json:"currency"`
}

var currencyByCountry = map[string]string{
	"US": "USD", "CA": "CAD", "GB": "GBP", "AU": "AUD", "NZ": "NZD",
	"JP": "JPY", "CH": "CHF", "SE": "SEK", "NO": "NOK", "DK": "DKK",
	"IN": "INR", "SG": "SGD", "HK": "HKD", "KR": "KRW", "BR": "BRL",
	"MX": "MXN", "PL": "PLN", "CZ": "CZK",
}

// GeoForCountry resolves the display currency for a shipping country.
// Unmapped European countries fall back to EUR, everything else to USD.
func GeoForCountry(country string) Geo {
	if c, ok := currencyByCountry[country]; ok {
		return Geo{Country: country, Currency: c}
	}
	switch country {
	case "NL", "DE", "FR", "ES", "IT", "BE", "AT", "PT", "IE", "FI", "GR":
		return Geo{Country: country, Currency: "EUR"}
	case "":
		return Geo{Country: "US", Currency: "USD"}
	}
	return Geo{Country: country, Currency: "USD"}
}
