package notification

import (
	"encoding/csv"
	"io"
	"strings"

	"ms-storefront/internal/models"

	"github.com/shopspring/decimal"
)

const utf8BOM = "\xEF\xBB\xBF"

// Peso formats an amount as ₱1,234.50.
func Peso(amount decimal.Decimal) string {
	if amount.IsNegative() {
		return "-" + Peso(amount.Neg())
	}
	fixed := amount.StringFixed(2)
	whole, frac := fixed[:len(fixed)-3], fixed[len(fixed)-2:]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return "₱" + b.String() + "." + frac
}

// WriteOrderCSV writes the spreadsheet attached to the confirmation mail. The BOM makes
// Excel read it as UTF-8.
func WriteOrderCSV(w io.Writer, order *models.Order) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	rows := [][]string{{"Order Number", "Product Name", "Quantity", "Unit Price", "Subtotal"}}
	for _, item := range order.Items {
		rows = append(rows, []string{
			order.OrderNumber,
			item.ProductName,
			decimal.NewFromInt(int64(item.Quantity)).String(),
			Peso(item.ProductPrice),
			Peso(item.Subtotal),
		})
	}
	rows = append(rows, []string{})
	rows = append(rows, []string{"Subtotal:", "", "", "", Peso(order.Subtotal)})
	if order.TaxAmount.IsPositive() {
		rows = append(rows, []string{"Tax:", "", "", "", Peso(order.TaxAmount)})
	}
	if order.DiscountAmount.IsPositive() {
		rows = append(rows, []string{"Discount:", "", "", "", "-" + Peso(order.DiscountAmount)})
	}
	rows = append(rows, []string{"TOTAL:", "", "", "", Peso(order.TotalAmount)})

	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}
