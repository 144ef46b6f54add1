package companies

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/repositories/repoutil"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, userID string) (*models.Company, error) {
	where, args := repoutil.Owner(userID)

	var (
		c                            models.Company
		env                          repoutil.EnvelopeScan
		phone, address, taxID, logo sql.NullString
	)
	dest := append(env.Dest(&c.Envelope), &c.Name, &phone, &address, &taxID, &logo)
	err := r.db.QueryRowContext(ctx, `
		SELECT `+repoutil.EnvelopeColumns+`, name, phone, address, tax_id, logo
		FROM companies WHERE `+where+` ORDER BY id DESC LIMIT 1`, args...).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	env.Apply(&c.Envelope)
	c.Phone, c.Address, c.TaxID, c.Logo = phone.String, address.String, taxID.String, logo.String
	return &c, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, c *models.Company) error {
	args := append([]any{c.Name, repoutil.Null(c.Phone), repoutil.Null(c.Address),
		repoutil.Null(c.TaxID), repoutil.Null(c.Logo)}, repoutil.EnvelopeArgs(c.Envelope)...)

	if c.ID != 0 {
		res, err := r.db.ExecContext(ctx, `
			UPDATE companies SET name = ?, phone = ?, address = ?, tax_id = ?, logo = ?,
				cloud_id = ?, sync_status = ?, last_modified = ?, last_modified_by = ?, user_id = ?
			WHERE id = ?`, append(args, c.ID)...)
		if err != nil {
			return fmt.Errorf("failed to update company: %w", err)
		}
		return repoutil.ExpectOne(res)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO companies (name, phone, address, tax_id, logo,
			cloud_id, sync_status, last_modified, last_modified_by, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert company: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get company id: %w", err)
	}
	c.ID = id
	return nil
}
