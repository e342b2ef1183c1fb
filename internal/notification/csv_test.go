package notification

import (
	"bytes"
	"strings"
	"testing"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeso(t *testing.T) {
	assert.Equal(t, "₱0.00", Peso(decimal.Zero))
	assert.Equal(t, "₱149.00", Peso(decimal.RequireFromString("149")))
	assert.Equal(t, "₱1,499.50", Peso(decimal.RequireFromString("1499.5")))
	assert.Equal(t, "₱1,234,567.89", Peso(decimal.RequireFromString("1234567.891")))
	assert.Equal(t, "-₱20.00", Peso(decimal.RequireFromString("-20")))
}

func TestWriteOrderCSV(t *testing.T) {
	order := &models.Order{
		OrderNumber:    "ORD-20260301-0007",
		Subtotal:       decimal.RequireFromString("300.00"),
		TaxAmount:      decimal.RequireFromString("36.00"),
		DiscountAmount: decimal.Zero,
		TotalAmount:    decimal.RequireFromString("336.00"),
		Items: []*models.OrderItem{{
			ProductName:  "Planner",
			ProductPrice: decimal.RequireFromString("150.00"),
			Quantity:     2,
			Subtotal:     decimal.RequireFromString("300.00"),
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrderCSV(&buf, order))

	out := strings.TrimPrefix(buf.String(), utf8BOM)
	assert.Equal(t, utf8BOM, buf.String()[:len(utf8BOM)])
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Equal(t, []string{
		"Order Number,Product Name,Quantity,Unit Price,Subtotal",
		"ORD-20260301-0007,Planner,2,₱150.00,₱300.00",
		"",
		"Subtotal:,,,,₱300.00",
		"Tax:,,,,₱36.00",
		"TOTAL:,,,,₱336.00",
	}, lines)
}

func TestWriteOrderCSV_Discount(t *testing.T) {
	order := &models.Order{
		OrderNumber:    "ORD-20260301-0008",
		Subtotal:       decimal.RequireFromString("100"),
		DiscountAmount: decimal.RequireFromString("10"),
		TotalAmount:    decimal.RequireFromString("90"),
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOrderCSV(&buf, order))
	assert.Contains(t, buf.String(), "Discount:,,,,-₱10.00\n")
	assert.NotContains(t, buf.String(), "Tax:")
}
