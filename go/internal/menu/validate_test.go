package menu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func burger() CartItem {
	return CartItem{
		ProductID: "p-burger",
		Name:      "Classic Burger",
		Price:     899,
		Quantity:  2,
		Modifiers: []Modifier{
			{ID: "m-cheese", Name: "Cheese", Price: 100},
			{ID: "m-bacon", Name: "Bacon", Price: 150},
		},
		SelectedModifiers: []string{"m-cheese"},
	}
}

func fields(problems []Problem) []string {
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Field)
	}
	return out
}

func TestValidateCartItem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*CartItem)
		want   []string
	}{
		{name: "valid", mutate: func(*CartItem) {}},
		{name: "negative price", mutate: func(i *CartItem) { i.Price = -1 }, want: []string{"price"}},
		{name: "negative discount", mutate: func(i *CartItem) { i.DiscountValue = -5 }, want: []string{"discountValue"}},
		{name: "discount above price", mutate: func(i *CartItem) { i.DiscountValue = 900 }, want: []string{"discountValue"}},
		{name: "zero quantity", mutate: func(i *CartItem) { i.Quantity = 0 }, want: []string{"quantity"}},
		{name: "unknown modifier", mutate: func(i *CartItem) { i.SelectedModifiers = []string{"m-egg"} }, want: []string{"selectedModifiers"}},
		{name: "duplicate selection", mutate: func(i *CartItem) { i.SelectedModifiers = []string{"m-bacon", "m-bacon"} }, want: []string{"selectedModifiers"}},
		{name: "missing product", mutate: func(i *CartItem) { i.ProductID = " " }, want: []string{"productId"}},
		{
			name: "bad modifier declaration",
			mutate: func(i *CartItem) {
				i.Modifiers = append(i.Modifiers, Modifier{ID: "m-cheese", Price: -1})
			},
			want: []string{"modifiers", "modifiers"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			item := burger()
			tt.mutate(&item)
			problems := ValidateCartItem(3, item)
			if len(tt.want) == 0 {
				assert.Empty(t, problems)
				return
			}
			assert.Equal(t, tt.want, fields(problems))
			assert.Equal(t, 3, problems[0].Index)
		})
	}
}

func TestValidateCart_Totals(t *testing.T) {
	t.Parallel()

	fries := CartItem{ProductID: "p-fries", Price: 399, DiscountValue: 100, Quantity: 1}
	resp, err := ValidateCart(ValidateCartRequest{Items: []CartItem{burger(), fries}})
	require.NoError(t, err)

	assert.True(t, resp.Valid)
	assert.Empty(t, resp.Problems)
	// (899 + 100) * 2 + (399 - 100)
	assert.Equal(t, int64(2297), resp.SubtotalCents)
	assert.Equal(t, "$22.97", resp.Subtotal)
}

func TestValidateCart_Problems(t *testing.T) {
	t.Parallel()

	resp, err := ValidateCart(ValidateCartRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Equal(t, []Problem{{Index: -1, Field: "items", Reason: "cart is empty"}}, resp.Problems)

	bad := burger()
	bad.Price = -10
	resp, err = ValidateCart(ValidateCartRequest{Items: []CartItem{burger(), bad}, Currency: "nope"})
	require.NoError(t, err)
	assert.False(t, resp.Valid)
	assert.Zero(t, resp.SubtotalCents)
	assert.Equal(t, []string{"currency", "price"}, fields(resp.Problems))
	assert.Equal(t, 1, resp.Problems[1].Index)
}

func TestValidateProductDraft(t *testing.T) {
	t.Parallel()

	draft := ProductDraft{Name: "Milkshake", Category: "desserts", Price: 450, Available: true}
	assert.Empty(t, ValidateProductDraft(draft))

	draft.Category = "pets"
	draft.DiscountValue = 500
	draft.Name = ""
	assert.Equal(t, []string{"name", "category", "discountValue"}, fields(ValidateProductDraft(draft)))
}
