package products

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

const selectColumns = repoutil.EnvelopeColumns +
	", name, description, price, classification_code, tax_rate, stock"

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scan(row interface{ Scan(...any) error }) (*models.Product, error) {
	var (
		p                 models.Product
		env               repoutil.EnvelopeScan
		description, code sql.NullString
	)
	dest := append(env.Dest(&p.Envelope), &p.Name, &description, &p.Price, &code, &p.TaxRate, &p.Stock)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	env.Apply(&p.Envelope)
	p.Description, p.ClassificationCode = description.String, code.String
	return &p, nil
}

func payloadArgs(p *models.Product) []any {
	return []any{p.Name, repoutil.Null(p.Description), p.Price.String(),
		repoutil.Null(p.ClassificationCode), p.TaxRate.String(), p.Stock.String()}
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]models.Product, error) {
	where, args := repoutil.Owner(userID)
	return r.list(ctx, where, args)
}

func (r *SQLiteRepository) Search(ctx context.Context, userID, term string) ([]models.Product, error) {
	if term == "" {
		return r.List(ctx, userID)
	}
	where, args := repoutil.Owner(userID)
	like := repoutil.Contains(term)
	return r.list(ctx, where+` AND (name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\')`, append(args, like, like))
}

func (r *SQLiteRepository) list(ctx context.Context, where string, args []any) ([]models.Product, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM products WHERE `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()

	var result []models.Product
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate products: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	p, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %d: %w", id, err)
	}
	return p, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, p *models.Product) error {
	args := append(payloadArgs(p), repoutil.EnvelopeArgs(p.Envelope)...)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO products (name, description, price, classification_code, tax_rate, stock,
			cloud_id, sync_status, last_modified, last_modified_by, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get product id: %w", err)
	}
	p.ID = id
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, p *models.Product) error {
	args := append(payloadArgs(p), repoutil.EnvelopeArgs(p.Envelope)...)
	args = append(args, p.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE products SET name = ?, description = ?, price = ?, classification_code = ?, tax_rate = ?, stock = ?,
			cloud_id = ?, sync_status = ?, last_modified = ?, last_modified_by = ?, user_id = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update product %d: %w", p.ID, err)
	}
	return repoutil.ExpectOne(res)
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	return repoutil.ExpectOne(res)
}
