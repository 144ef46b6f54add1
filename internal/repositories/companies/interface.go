// Package companies persists the singleton Company profile.
package companies

import (
	"context"

	"github.com/dmitrijs2005/billsync/internal/models"
)

type Repository interface {
	// Get returns the company visible to userID, or (nil, nil) if none.
	Get(ctx context.Context, userID string) (*models.Company, error)
	// Save inserts the company when c.ID is zero and updates it otherwise.
	Save(ctx context.Context, c *models.Company) error
}
