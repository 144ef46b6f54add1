package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/repositories/repoutil"
)

const selectColumns = repoutil.EnvelopeColumns + `, invoice_number, customer_id, date,
	subtotal, discount_percentage, discount_amount, tax_amount, total, paid_amount, balance, status, notes`

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func scan(row interface{ Scan(...any) error }) (*models.Invoice, error) {
	var (
		inv        models.Invoice
		env        repoutil.EnvelopeScan
		customerID sql.NullInt64
		notes      sql.NullString
	)
	dest := append(env.Dest(&inv.Envelope), &inv.Number, &customerID, &inv.Date,
		&inv.Subtotal, &inv.DiscountPercentage, &inv.DiscountAmount, &inv.TaxAmount,
		&inv.Total, &inv.PaidAmount, &inv.Balance, &inv.Status, &notes)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	env.Apply(&inv.Envelope)
	inv.CustomerID = customerID.Int64
	inv.Notes = notes.String
	return &inv, nil
}

func payloadArgs(inv *models.Invoice) []any {
	var customer any
	if inv.CustomerID != 0 {
		customer = inv.CustomerID
	}
	status := inv.Status
	if status == "" {
		status = models.InvoicePending
	}
	return []any{inv.Number, customer, inv.Date,
		inv.Subtotal.String(), inv.DiscountPercentage.String(), inv.DiscountAmount.String(),
		inv.TaxAmount.String(), inv.Total.String(), inv.PaidAmount.String(), inv.Balance.String(),
		status, repoutil.Null(inv.Notes)}
}

func (r *SQLiteRepository) List(ctx context.Context, userID string) ([]models.Invoice, error) {
	where, args := repoutil.Owner(userID)
	return r.list(ctx, where, args)
}

func (r *SQLiteRepository) ListBetween(ctx context.Context, userID, from, to string) ([]models.Invoice, error) {
	where, args := repoutil.Owner(userID)
	return r.list(ctx, where+` AND date >= ? AND date <= ?`, append(args, from, to))
}

func (r *SQLiteRepository) list(ctx context.Context, where string, args []any) ([]models.Invoice, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM invoices WHERE `+where+` ORDER BY date DESC, id DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var result []models.Invoice
	for rows.Next() {
		inv, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		result = append(result, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*models.Invoice, error) {
	inv, err := scan(r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM invoices WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice %d: %w", id, err)
	}

	items, err := r.items(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.Items = items
	return inv, nil
}

func (r *SQLiteRepository) items(ctx context.Context, invoiceID int64) ([]models.InvoiceItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, quantity, price, amount
		FROM invoice_items WHERE invoice_id = ? ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice items: %w", err)
	}
	defer rows.Close()

	var items []models.InvoiceItem
	for rows.Next() {
		var (
			it        models.InvoiceItem
			productID sql.NullInt64
		)
		if err := rows.Scan(&it.ID, &it.InvoiceID, &productID, &it.Quantity, &it.Price, &it.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice item: %w", err)
		}
		it.ProductID = productID.Int64
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoice items: %w", err)
	}
	return items, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, inv *models.Invoice) error {
	args := append(payloadArgs(inv), repoutil.EnvelopeArgs(inv.Envelope)...)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO invoices (invoice_number, customer_id, date,
			subtotal, discount_percentage, discount_amount, tax_amount, total, paid_amount, balance, status, notes,
			cloud_id, sync_status, last_modified, last_modified_by, user_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	if err != nil {
		return fmt.Errorf("failed to insert invoice: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get invoice id: %w", err)
	}
	inv.ID = id
	return r.insertItems(ctx, inv)
}

func (r *SQLiteRepository) Update(ctx context.Context, inv *models.Invoice) error {
	args := append(payloadArgs(inv), repoutil.EnvelopeArgs(inv.Envelope)...)
	args = append(args, inv.ID)
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET invoice_number = ?, customer_id = ?, date = ?,
			subtotal = ?, discount_percentage = ?, discount_amount = ?, tax_amount = ?, total = ?,
			paid_amount = ?, balance = ?, status = ?, notes = ?,
			cloud_id = ?, sync_status = ?, last_modified = ?, last_modified_by = ?, user_id = ?
		WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update invoice %d: %w", inv.ID, err)
	}
	if err := repoutil.ExpectOne(res); err != nil {
		return err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM invoice_items WHERE invoice_id = ?`, inv.ID); err != nil {
		return fmt.Errorf("failed to clear invoice items: %w", err)
	}
	return r.insertItems(ctx, inv)
}

func (r *SQLiteRepository) insertItems(ctx context.Context, inv *models.Invoice) error {
	for i := range inv.Items {
		it := &inv.Items[i]
		var product any
		if it.ProductID != 0 {
			product = it.ProductID
		}
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO invoice_items (invoice_id, product_id, quantity, price, amount)
			VALUES (?, ?, ?, ?, ?)`, inv.ID, product, it.Quantity.String(), it.Price.String(), it.Amount.String())
		if err != nil {
			return fmt.Errorf("failed to insert invoice item: %w", err)
		}
		it.InvoiceID = inv.ID
		it.ID, _ = res.LastInsertId()
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice %d: %w", id, err)
	}
	return repoutil.ExpectOne(res)
}

func (r *SQLiteRepository) NextNumber(ctx context.Context, year int) (string, error) {
	prefix := fmt.Sprintf("INV-%d-", year)

	var last sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT invoice_number FROM invoices
		WHERE invoice_number LIKE ? ORDER BY length(invoice_number) DESC, invoice_number DESC LIMIT 1`,
		prefix+"%").Scan(&last)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to get last invoice number: %w", err)
	}

	next := 1
	if last.Valid {
		if n, err := strconv.Atoi(strings.TrimPrefix(last.String, prefix)); err == nil {
			next = n + 1
		}
	}
	return fmt.Sprintf("%s%03d", prefix, next), nil
}
