package cart

import (
	"testing"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(seller string, style models.PaymentStyle, price int64, qty int) Item {
	return Item{
		ProductID:    uuid.New(),
		SellerID:     seller,
		PriceID:      uuid.New(),
		PaymentStyle: style,
		UnitPrice:    price,
		Quantity:     qty,
		Name:         "thing",
	}
}

func TestAdd_RejectsMixedStyleAndLeavesCartUnchanged(t *testing.T) {
	t.Parallel()

	for _, first := range []models.PaymentStyle{models.PaymentInstant, models.PaymentRequest} {
		other := models.PaymentRequest
		if first == models.PaymentRequest {
			other = models.PaymentInstant
		}

		c, err := New(item("a", first, 100, 1), item("b", first, 200, 2))
		require.NoError(t, err)
		before := c.Items()

		err = c.Add(item("a", other, 300, 1))
		require.ErrorIs(t, err, ErrMixedPaymentStyle)
		assert.Equal(t, before, c.Items())
		assert.Equal(t, first, c.Style())
	}
}

func TestAdd_SamePriceBumpsQuantity(t *testing.T) {
	t.Parallel()

	it := item("a", models.PaymentInstant, 100, 1)
	c, err := New(it)
	require.NoError(t, err)

	again := it
	again.Quantity = 2
	require.NoError(t, c.Add(again))

	require.Equal(t, 1, c.Len())
	assert.Equal(t, 3, c.Items()[0].Quantity)
}

func TestAdd_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		mod  func(*Item)
	}{
		{name: "zero quantity", mod: func(i *Item) { i.Quantity = 0 }},
		{name: "missing price", mod: func(i *Item) { i.PriceID = uuid.Nil }},
		{name: "missing product", mod: func(i *Item) { i.ProductID = uuid.Nil }},
		{name: "unknown style", mod: func(i *Item) { i.PaymentStyle = "LATER" }},
		{name: "zero price", mod: func(i *Item) { i.UnitPrice = 0 }},
		{name: "price above limit", mod: func(i *Item) { i.UnitPrice = MaxAmount + 1 }},
		{name: "huge price", mod: func(i *Item) { i.UnitPrice = 1 << 62 }},
		{name: "quantity above limit", mod: func(i *Item) { i.Quantity = MaxQuantity + 1 }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			it := item("a", models.PaymentInstant, 100, 1)
			tt.mod(&it)
			c := &Cart{}
			assert.ErrorIs(t, c.Add(it), ErrInvalidItem)
			assert.Equal(t, 0, c.Len())
		})
	}
}

func TestRemoveAndSetQuantity(t *testing.T) {
	t.Parallel()

	a := item("a", models.PaymentInstant, 100, 1)
	b := item("b", models.PaymentInstant, 100, 1)
	c, err := New(a, b)
	require.NoError(t, err)

	require.NoError(t, c.SetQuantity(a.PriceID, 5))
	assert.Equal(t, 5, c.Items()[0].Quantity)

	assert.ErrorIs(t, c.SetQuantity(a.PriceID, MaxQuantity+1), ErrInvalidItem)
	assert.Equal(t, 5, c.Items()[0].Quantity)

	require.NoError(t, c.SetQuantity(a.PriceID, 0))
	require.Equal(t, 1, c.Len())
	assert.Equal(t, b.PriceID, c.Items()[0].PriceID)

	c.Remove(b.PriceID)
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, models.PaymentStyle(""), c.Style())

	// an emptied cart accepts either style again
	require.NoError(t, c.Add(item("a", models.PaymentRequest, 1, 1)))
}

func TestBySeller(t *testing.T) {
	t.Parallel()

	c, err := New(
		item("b", models.PaymentInstant, 100, 2),
		item("a", models.PaymentInstant, 250, 1),
		item("b", models.PaymentInstant, 50, 3),
	)
	require.NoError(t, err)

	groups := c.BySeller()
	require.Len(t, groups, 2)
	assert.Equal(t, "b", groups[0].SellerID)
	sub, err := groups[0].Subtotal()
	require.NoError(t, err)
	assert.Equal(t, int64(350), sub)
	assert.Equal(t, "a", groups[1].SellerID)
	sub, err = groups[1].Subtotal()
	require.NoError(t, err)
	assert.Equal(t, int64(250), sub)
	total, err := c.Subtotal()
	require.NoError(t, err)
	assert.Equal(t, int64(600), total)
}

func TestSubtotal_RefusesAmountsAboveLimit(t *testing.T) {
	t.Parallel()

	c, err := New(
		item("a", models.PaymentInstant, MaxAmount, 1),
		item("b", models.PaymentInstant, MaxAmount, 2),
	)
	require.NoError(t, err)

	groups := c.BySeller()
	sub, err := groups[0].Subtotal()
	require.NoError(t, err)
	assert.Equal(t, int64(MaxAmount), sub)

	_, err = groups[1].Subtotal()
	assert.ErrorIs(t, err, ErrAmountTooLarge)
	_, err = c.Subtotal()
	assert.ErrorIs(t, err, ErrAmountTooLarge)

	_, err = LineTotal(MaxAmount, MaxQuantity)
	assert.ErrorIs(t, err, ErrAmountTooLarge)
	total, err := LineTotal(2500, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7500), total)
}

func TestAdd_BumpAboveQuantityLimitIsRefused(t *testing.T) {
	t.Parallel()

	it := item("a", models.PaymentInstant, 100, MaxQuantity)
	c, err := New(it)
	require.NoError(t, err)

	more := it
	more.Quantity = 1
	assert.ErrorIs(t, c.Add(more), ErrInvalidItem)
	assert.Equal(t, MaxQuantity, c.Items()[0].Quantity)
}

func TestNew_Empty(t *testing.T) {
	t.Parallel()

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, 0, c.Len())
}
