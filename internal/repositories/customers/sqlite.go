package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/repositories/repoutil"
)

const selectColumns = repoutil.EnvelopeColumns + ", name, phone, address, tax_id"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scan(row interface{ Scan(...any) error }) (*models.Customer, error) {
	var (
		c                     models.Customer
		env                   repoutil.EnvelopeScan
		phone, address, taxID sql.NullString
	)
	dest := append(env.Dest(&c.Envelope), &c.Name, &phone, &address, &taxID)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	env.Apply(&c.Envelope)
	c.Phone, c.Address, c.TaxID = phone.String, address.String, taxID.String
	return &c, nil
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]models.Customer, error) {
	where, args := repoutil.Owner(userID)
	return r.list(ctx, where, args)
}

func (r *SQLiteRepository) Search(ctx context.Context, userID, term string) ([]models.Customer, error) {
	if term == "" {
		return r.List(ctx, userID)
	}
	where, args := repoutil.Owner(userID)
	like := repoutil.Contains(term)
	return r.list(ctx, where+` AND (name LIKE ? ESCAPE '\' OR phone LIKE ? ESCAPE '\')`, append(args, like, like))
}

func (r *SQLiteRepository) list(ctx context.Context, where string, args []any) ([]models.Customer, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM customers WHERE `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var result []models.Customer
	for rows.Next() {
		c, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		result = append(result, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate customers: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	c, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM customers WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %d: %w", id, err)
	}
	return c, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, c *models.Customer) error {
	args := append([]any{c.Name, repoutil.Null(c.Phone), repoutil.Null(c.Address), repoutil.Null(c.TaxID)},
		repoutil.EnvelopeArgs(c.Envelope)...)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO customers (name, phone, address, tax_id,
			cloud_id, sync_status, last_modified, last_modified_by, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert customer: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get customer id: %w", err)
	}
	c.ID = id
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, c *models.Customer) error {
	args := append([]any{c.Name, repoutil.Null(c.Phone), repoutil.Null(c.Address), repoutil.Null(c.TaxID)},
		repoutil.EnvelopeArgs(c.Envelope)...)
	args = append(args, c.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE customers SET name = ?, phone = ?, address = ?, tax_id = ?,
			cloud_id = ?, sync_status = ?, last_modified = ?, last_modified_by = ?, user_id = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update customer %d: %w", c.ID, err)
	}
	return repoutil.ExpectOne(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM customers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer %d: %w", id, err)
	}
	return repoutil.ExpectOne(res)
}
