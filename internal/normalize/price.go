package normalize

import (
	"strconv"
	"strings"
)

var currencySymbols = map[string]string{
	"€": "EUR",
	"$": "USD",
	"£": "GBP",
}

var freeWords = map[string]struct{}{
	"free":   {},
	"gratis": {},
	"0":      {},
}

// parsePriceRange coerces the price fields a source may carry into a numeric
// min/max plus an ISO currency code. Returns nils when nothing usable is
// present; the caller keeps its configured default currency in that case.
func parsePriceRange(rec RawRecord) (*float64, *float64, string) {
	if min := floatField(rec, "price_min"); min != nil {
		max := floatField(rec, "price_max")
		if max == nil {
			max = min
		}
		return min, max, currencyField(rec)
	}

	raw := stringField(rec, "price", "price_range", "cost")
	if raw == "" {
		if v := floatField(rec, "price"); v != nil {
			return v, v, currencyField(rec)
		}
		return nil, nil, currencyField(rec)
	}

	cleaned := strings.TrimSpace(strings.ToLower(raw))
	if _, ok := freeWords[cleaned]; ok {
		zero := 0.0
		return &zero, &zero, currencyField(rec)
	}

	currency := currencyField(rec)
	for symbol, code := range currencySymbols {
		if strings.Contains(raw, symbol) {
			if currency == "" {
				currency = code
			}
			cleaned = strings.ReplaceAll(cleaned, strings.ToLower(symbol), "")
		}
	}
	for _, code := range []string{"eur", "usd", "gbp"} {
		if strings.Contains(cleaned, code) {
			if currency == "" {
				currency = strings.ToUpper(code)
			}
			cleaned = strings.ReplaceAll(cleaned, code, "")
		}
	}

	parts := splitRange(cleaned)
	values := make([]float64, 0, 2)
	for _, part := range parts {
		if v, ok := parseAmount(part); ok {
			values = append(values, v)
		}
	}

	switch len(values) {
	case 0:
		return nil, nil, currency
	case 1:
		return &values[0], &values[0], currency
	default:
		lo, hi := values[0], values[1]
		if lo > hi {
			lo, hi = hi, lo
		}
		return &lo, &hi, currency
	}
}

func currencyField(rec RawRecord) string {
	code := strings.ToUpper(strings.TrimSpace(stringField(rec, "currency")))
	if len(code) == 3 {
		return code
	}
	return ""
}

func splitRange(s string) []string {
	for _, sep := range []string{"-", "–", " tot ", " to ", "/"} {
		if strings.Contains(s, sep) {
			parts := strings.SplitN(s, sep, 2)
			return []string{parts[0], parts[1]}
		}
	}
	return []string{s}
}

func parseAmount(s string) (float64, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.':
			b.WriteRune(r)
		case r == ',':
			// Dutch decimal comma.
			b.WriteRune('.')
		}
	}
	if b.Len() == 0 {
		return 0, false
	}
	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
