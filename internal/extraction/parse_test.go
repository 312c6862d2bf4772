package extraction

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/snapspend-backend/pkg/enums"
)

var testNow = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func testDefaults() parseDefaults {
	return parseDefaults{currency: enums.CurrencyUSD, now: testNow}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]string{
		"12.34":     "12.34",
		"$1,234.50": "1234.5",
		"1.234,50":  "1234.5",
		"12,99":     "12.99",
		"1,234":     "1234",
		"(3.00)":    "-3",
		"-2.5":      "-2.5",
		"€ 7":       "7",
	}
	for in, want := range cases {
		got, ok := parseAmount(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got.String(), in)
	}

	_, ok := parseAmount("n/a")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	cases := map[string]time.Time{
		"2026-03-14":           time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		"2026-03-14T18:30:00":  time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC),
		"2026-03-14T18:30:00Z": time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC),
		"03/14/2026":           time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		"Mar 14, 2026":         time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC),
		"":                     testNow,
		"last tuesday":         testNow,
	}
	for in, want := range cases {
		assert.True(t, want.Equal(parseDate(in, testNow)), in)
	}
}

func TestParseReplyFillsDefaults(t *testing.T) {
	draft, err := parseReply(`Here you go: {"items":[{"name":"Soap","price":"3.20","category":"weird"}]} thanks`, testDefaults())
	require.NoError(t, err)

	assert.Equal(t, DefaultStoreName, draft.StoreName)
	assert.Equal(t, DefaultStoreName, draft.ReceiptName)
	assert.Equal(t, DefaultPaymentMethod, draft.PaymentMethod)
	assert.Equal(t, "USD", draft.Currency)
	assert.True(t, testNow.Equal(draft.PurchaseDate))
	assert.Equal(t, "3.2", draft.TotalAmount.String())
	assert.Nil(t, draft.LogoSearchTerm)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, "other", draft.Items[0].Category)
}

func TestParseReplyKeepsPrintedTotal(t *testing.T) {
	draft, err := parseReply(`{"store_name":"Cafe","total_amount":"4,00","currency":"EUR","items":[{"name":"Latte","price":5}]}`, testDefaults())
	require.NoError(t, err)
	assert.Equal(t, "4", draft.TotalAmount.String())
	assert.Equal(t, "EUR", draft.Currency)
}

func TestParseReplyDropsNonDiscountOriginalPrice(t *testing.T) {
	draft, err := parseReply(`{"total_amount":5,"items":[{"name":"Tea","price":5,"original_price":4}]}`, testDefaults())
	require.NoError(t, err)
	require.Len(t, draft.Items, 1)
	assert.Nil(t, draft.Items[0].OriginalPrice)
}

func TestParseReplyRejectsUnusableReplies(t *testing.T) {
	for _, reply := range []string{"", "no receipt here", "{not json}", `{"store_name":"X"}`} {
		_, err := parseReply(reply, testDefaults())
		assert.True(t, errors.Is(err, ErrUnparseable), reply)
	}
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`+"\n", stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "plain", stripFences("plain"))
}
