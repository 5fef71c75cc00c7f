package menu

import (
	"fmt"
	"strings"
)

const (
	maxQuantity     = 99
	maxNameLength   = 80
	maxNotesLength  = 200
	wholeRequest    = -1
	maxCartLines = 50
)

// ValidateCartItem checks one cart line. Prices and discounts must be
// non-negative and every selected modifier must be offered by the line.
func ValidateCartItem(index int, item CartItem) []Problem {
	var problems []Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, Problem{Index: index, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(item.ProductID) == "" {
		add("productId", "required")
	}
	if item.Price < 0 {
		add("price", "must not be negative")
	}
	if item.DiscountValue < 0 {
		add("discountValue", "must not be negative")
	} else if item.DiscountValue > item.Price && item.Price >= 0 {
		add("discountValue", "must not exceed price")
	}
	if item.Quantity < 1 || item.Quantity > maxQuantity {
		add("quantity", "must be between 1 and %d", maxQuantity)
	}
	if len(item.Notes) > maxNotesLength {
		add("notes", "must be at most %d characters", maxNotesLength)
	}

	offered, modProblems := modifierIndex(item.Modifiers)
	for _, p := range modProblems {
		add("modifiers", "%s", p)
	}
	seen := make(map[string]bool, len(item.SelectedModifiers))
	for _, id := range item.SelectedModifiers {
		if _, ok := offered[id]; !ok {
			add("selectedModifiers", "unknown modifier %q", id)
			continue
		}
		if seen[id] {
			add("selectedModifiers", "modifier %q selected twice", id)
		}
		seen[id] = true
	}
	return problems
}

// ValidateProductDraft checks a product before it is saved
func ValidateProductDraft(draft ProductDraft) []Problem {
	var problems []Problem
	add := func(field, format string, args ...any) {
		problems = append(problems, Problem{Index: wholeRequest, Field: field, Reason: fmt.Sprintf(format, args...)})
	}

	name := strings.TrimSpace(draft.Name)
	switch {
	case name == "":
		add("name", "required")
	case len(name) > maxNameLength:
		add("name", "must be at most %d characters", maxNameLength)
	}
	if !IsCategory(draft.Category) {
		add("category", "unknown category %q", draft.Category)
	}
	if draft.Price < 0 {
		add("price", "must not be negative")
	}
	if draft.DiscountValue < 0 {
		add("discountValue", "must not be negative")
	} else if draft.DiscountValue > draft.Price && draft.Price >= 0 {
		add("discountValue", "must not exceed price")
	}
	_, modProblems := modifierIndex(draft.Modifiers)
	for _, p := range modProblems {
		add("modifiers", "%s", p)
	}
	return problems
}

func modifierIndex(mods []Modifier) (map[string]Modifier, []string) {
	index := make(map[string]Modifier, len(mods))
	var problems []string
	for _, m := range mods {
		switch {
		case m.ID == "":
			problems = append(problems, "modifier id is required")
		case m.Price < 0:
			problems = append(problems, fmt.Sprintf("modifier %q has a negative price", m.ID))
		}
		if _, dup := index[m.ID]; dup && m.ID != "" {
			problems = append(problems, fmt.Sprintf("modifier %q declared twice", m.ID))
		}
		index[m.ID] = m
	}
	return index, problems
}

// LineTotal is (price - discount + selected modifiers) * quantity. It
// assumes the line already validated.
func LineTotal(item CartItem) int64 {
	unit := item.Price - item.DiscountValue
	offered, _ := modifierIndex(item.Modifiers)
	for _, id := range item.SelectedModifiers {
		unit += offered[id].Price
	}
	return unit * int64(item.Quantity)
}

// ValidateCart validates every line and totals the cart when it is valid
func ValidateCart(req ValidateCartRequest) (ValidateCartResponse, error) {
	var resp ValidateCartResponse

	code := req.Currency
	if code == "" {
		code = DefaultCurrency
	}
	if _, err := FormatPrice(0, code); err != nil {
		resp.Problems = append(resp.Problems, Problem{Index: wholeRequest, Field: "currency", Reason: err.Error()})
	}

	switch {
	case len(req.Items) == 0:
		resp.Problems = append(resp.Problems, Problem{Index: wholeRequest, Field: "items", Reason: "cart is empty"})
	case len(req.Items) > maxCartLines:
		resp.Problems = append(resp.Problems, Problem{Index: wholeRequest, Field: "items", Reason: fmt.Sprintf("at most %d lines", maxCartLines)})
	}

	for i, item := range req.Items {
		resp.Problems = append(resp.Problems, ValidateCartItem(i, item)...)
	}
	if len(resp.Problems) > 0 {
		return resp, nil
	}

	for _, item := range req.Items {
		resp.SubtotalCents += LineTotal(item)
	}
	subtotal, err := FormatPrice(resp.SubtotalCents, code)
	if err != nil {
		return resp, err
	}
	resp.Valid = true
	resp.Subtotal = subtotal
	return resp, nil
}
