package models

import "github.com/shopspring/decimal"

// Company is the singleton seller profile.
type Company struct {
	Envelope
	Name    string
	Phone   string
	Address string
	TaxID   string
	// Logo is inline image data (data URL or base64).
	Logo string
}

type Customer struct {
	Envelope
	Name    string
	Phone   string
	Address string
	TaxID   string
}

type Product struct {
	Envelope
	Name               string
	Description        string
	Price              decimal.Decimal
	ClassificationCode string
	TaxRate            decimal.Decimal
	Stock              decimal.Decimal
}

// Invoice statuses.
const (
	InvoicePending = "pending"
	InvoicePaid    = "paid"
	InvoicePartial = "partial"
)

type Invoice struct {
	Envelope
	Number             string
	CustomerID         int64
	Date               string
	Subtotal           decimal.Decimal
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
	TaxAmount          decimal.Decimal
	Total              decimal.Decimal
	PaidAmount         decimal.Decimal
	Balance            decimal.Decimal
	Status             string
	Notes              string
	Items              []InvoiceItem
}

type InvoiceItem struct {
	ID        int64
	InvoiceID int64
	ProductID int64
	Quantity  decimal.Decimal
	Price     decimal.Decimal
	Amount    decimal.Decimal
}

// Recalculate derives line amounts and the invoice totals from the items,
// the discount percentage, the tax amount and the paid amount. Status is
// derived from the balance.
func (inv *Invoice) Recalculate() {
	subtotal := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Amount = it.Quantity.Mul(it.Price).Round(2)
		subtotal = subtotal.Add(it.Amount)
	}

	inv.Subtotal = subtotal
	inv.DiscountAmount = subtotal.Mul(inv.DiscountPercentage).Div(decimal.NewFromInt(100)).Round(2)
	inv.Total = subtotal.Sub(inv.DiscountAmount).Add(inv.TaxAmount)
	inv.Balance = inv.Total.Sub(inv.PaidAmount)

	switch {
	case inv.Balance.Sign() <= 0 && inv.Total.Sign() > 0:
		inv.Status = InvoicePaid
	case inv.PaidAmount.Sign() > 0:
		inv.Status = InvoicePartial
	default:
		inv.Status = InvoicePending
	}
}
