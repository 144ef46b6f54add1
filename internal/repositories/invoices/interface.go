// Package invoices persists Invoice records and their line items.
package invoices

import (
	"context"

	"github.com/dmitrijs2005/billsync/internal/models"
)

// Repository writes touch both invoices and invoice_items; callers wanting
// atomicity construct the repository on a transaction handle.
type Repository interface {
	// List returns invoices visible to userID, newest first, without items.
	List(ctx context.Context, userID string) ([]models.Invoice, error)
	// ListBetween is List limited to dates from..to inclusive, both
	// YYYY-MM-DD.
	ListBetween(ctx context.Context, userID, from, to string) ([]models.Invoice, error)
	// GetByID returns the invoice with its items.
	GetByID(ctx context.Context, id int64) (*models.Invoice, error)
	// Create inserts inv and its items, setting inv.ID and item ids.
	Create(ctx context.Context, inv *models.Invoice) error
	// Update rewrites inv and replaces all of its items.
	Update(ctx context.Context, inv *models.Invoice) error
	Delete(ctx context.Context, id int64) error
	// NextNumber returns the next free number of the form INV-<year>-NNN.
	NextNumber(ctx context.Context, year int) (string, error)
}
