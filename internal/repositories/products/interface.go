// Package products persists Product records in the local store.
package products

import (
	"context"

	"github.com/dmitrijs2005/billsync/internal/models"
)

type Repository interface {
	List(ctx context.Context, userID string) ([]models.Product, error)
	// Search narrows List to names or descriptions containing term.
	Search(ctx context.Context, userID, term string) ([]models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	Create(ctx context.Context, p *models.Product) error
	Update(ctx context.Context, p *models.Product) error
	Delete(ctx context.Context, id int64) error
}
