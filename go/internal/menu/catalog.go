package menu

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const DefaultCurrency = "USD"

var categories = []Category{
	{Slug: "burgers", Name: "Burgers", Icon: "burger", SortOrder: 1},
	{Slug: "chicken", Name: "Chicken", Icon: "drumstick", SortOrder: 2},
	{Slug: "sides", Name: "Sides", Icon: "fries", SortOrder: 3},
	{Slug: "drinks", Name: "Drinks", Icon: "cup", SortOrder: 4},
	{Slug: "desserts", Name: "Desserts", Icon: "ice-cream", SortOrder: 5},
	{Slug: "combos", Name: "Combos", Icon: "tray", SortOrder: 6},
}

// Categories returns the kiosk categories in display order
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// IsCategory reports whether slug names a known category
func IsCategory(slug string) bool {
	for _, c := range categories {
		if c.Slug == slug {
			return true
		}
	}
	return false
}

var symbols = map[string]string{
	"USD": "$",
	"MXN": "$",
	"CAD": "$",
	"EUR": "€",
	"GBP": "£",
}

var printer = message.NewPrinter(language.English)

// FormatPrice renders cents as a grouped amount, e.g. 123450 USD -> "$1,234.50".
// Codes without a known symbol are prefixed with the ISO code.
func FormatPrice(cents int64, code string) (string, error) {
	if code == "" {
		code = DefaultCurrency
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}

	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	amount := printer.Sprintf("%d", cents/100) + fmt.Sprintf(".%02d", cents%100)

	iso := unit.String()
	if sym, ok := symbols[iso]; ok {
		return sign + sym + amount, nil
	}
	return sign + iso + " " + amount, nil
}
