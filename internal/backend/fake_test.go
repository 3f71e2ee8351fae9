package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcmexdev/pos-terminal/internal/cart"
	"github.com/jcmexdev/pos-terminal/internal/pos"
	"github.com/jcmexdev/pos-terminal/internal/voice"
)

func TestFakeLookup(t *testing.T) {
	f := NewFake()

	res, err := f.LookupProduct(context.Background(), "7501055300891")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "Coca Cola 600ml", res.Product.Name)

	res, err = f.LookupProduct(context.Background(), "no-such-code")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.Contains(t, res.Message, "no-such-code")
}

func TestFakeLookupSuffixMatch(t *testing.T) {
	f := NewFake()

	// Only the trailing digits of the Coca Cola barcode survived the read.
	res, err := f.LookupProduct(context.Background(), "99300891")
	require.NoError(t, err)
	require.True(t, res.Found)
	assert.Equal(t, "Coca Cola 600ml", res.Product.Name)
	assert.NotEmpty(t, res.Warning, "a partial match must carry a warning")
}

func TestFakeLookupMultipleCandidates(t *testing.T) {
	f := NewFake()
	f.AddProduct(cart.Product{ID: 90, Name: "Coca Cola 2L", Stock: 6, Barcode: "7509999300891"})

	res, err := f.LookupProduct(context.Background(), "00300891")
	require.NoError(t, err)
	assert.False(t, res.Found)
	assert.True(t, res.Multiple)
	require.Len(t, res.Candidates, 2)

	names := []string{res.Candidates[0].Name, res.Candidates[1].Name}
	assert.ElementsMatch(t, []string{"Coca Cola 600ml", "Coca Cola 2L"}, names)
}

func TestFakeSubmitSaleDecrementsStock(t *testing.T) {
	f := NewFake()

	receipt, err := f.SubmitSale(context.Background(), pos.SaleRequest{
		Items: []cart.CheckoutItem{{ProductID: 1, Quantity: 4}},
	})
	require.NoError(t, err)
	assert.Positive(t, receipt.SaleID)
	assert.Equal(t, "74.00", receipt.Total.StringFixed())
	assert.Equal(t, 20, f.Stock(1))
}

func TestFakeSubmitSaleInsufficientStockChangesNothing(t *testing.T) {
	f := NewFake()
	before := f.Stock(1)

	_, err := f.SubmitSale(context.Background(), pos.SaleRequest{
		Items: []cart.CheckoutItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 5, Quantity: 50},
		},
	})

	var rejected *pos.SaleRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Contains(t, rejected.Message, "Stock insuficiente")
	assert.Equal(t, before, f.Stock(1), "a rejected sale must not touch stock on any line")
}

func TestFakeInterpretCommand(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	cases := []struct {
		name     string
		text     string
		contexto map[string]any
		want     voice.Command
	}{
		{
			name: "digits quantity",
			text: "agrega 3 por favor",
			contexto: map[string]any{
				voice.CtxCurrentProduct: "Leche Lala Entera 1L",
			},
			want: voice.Command{Action: voice.ActionAddQuantity, Quantity: 3},
		},
		{
			name: "number word quantity",
			text: "ponme tres",
			want: voice.Command{Action: voice.ActionAddQuantity, Quantity: 3},
		},
		{
			name: "confirm sale",
			text: "cobra la venta",
			want: voice.Command{Action: voice.ActionConfirmSale, Confirmation: true},
		},
		{
			name: "cancel sale",
			text: "cancela todo",
			want: voice.Command{Action: voice.ActionCancelSale},
		},
		{
			name: "remove last",
			text: "quita el último",
			want: voice.Command{Action: voice.ActionRemoveLast},
		},
		{
			name: "query total",
			text: "cuánto llevo",
			contexto: map[string]any{
				voice.CtxPartialTotal: "55.50",
			},
			want: voice.Command{Action: voice.ActionQueryTotal},
		},
		{
			name: "gibberish asks for clarification",
			text: "lorem ipsum",
			want: voice.Command{Action: voice.ActionClarify},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd, err := f.InterpretCommand(ctx, tc.text, tc.contexto)
			require.NoError(t, err)
			assert.Equal(t, tc.want.Action, cmd.Action)
			if tc.want.Quantity != 0 {
				assert.Equal(t, tc.want.Quantity, cmd.Quantity)
			}
			assert.Equal(t, tc.want.Confirmation, cmd.Confirmation)
			assert.NotEmpty(t, cmd.Reply, "every command carries a spoken reply")
		})
	}
}

func TestFakeInterpretCommandTotalReply(t *testing.T) {
	f := NewFake()

	cmd, err := f.InterpretCommand(context.Background(), "cuánto va", map[string]any{
		voice.CtxPartialTotal: "120.00",
	})
	require.NoError(t, err)
	assert.Contains(t, cmd.Reply, "120.00")

	cmd, err = f.InterpretCommand(context.Background(), "cuánto va", nil)
	require.NoError(t, err)
	assert.Contains(t, cmd.Reply, "vacío")
}
