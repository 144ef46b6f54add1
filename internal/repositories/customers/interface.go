// Package customers persists Customer records in the local store.
package customers

import (
	"context"

	"github.com/dmitrijs2005/billsync/internal/models"
)

type Repository interface {
	// List returns the customers visible to userID ("" = signed out), by name.
	List(ctx context.Context, userID string) ([]models.Customer, error)
	// Search is List narrowed to names or phones containing term. An empty
	// term lists everything.
	Search(ctx context.Context, userID, term string) ([]models.Customer, error)
	// GetByID returns common.ErrNotFound when the row does not exist.
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	// Create inserts c and sets c.ID.
	Create(ctx context.Context, c *models.Customer) error
	Update(ctx context.Context, c *models.Customer) error
	Delete(ctx context.Context, id int64) error
}
