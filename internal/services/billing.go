// Package services holds the application services behind the CLI. Billing
// performs local writes: every create or update is stamped as a pending
// local change and hands the collection to the background sync trigger.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/dbx"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/logging"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/dmitrijs2005/billsync/internal/repositories/companies"
	"github.com/dmitrijs2005/billsync/internal/repositories/customers"
	"github.com/dmitrijs2005/billsync/internal/repositories/invoices"
	"github.com/dmitrijs2005/billsync/internal/repositories/products"
	"github.com/dmitrijs2005/billsync/internal/repositories/repoutil"
	"github.com/dmitrijs2005/billsync/internal/repositories/tombstones"
	"github.com/dmitrijs2005/billsync/internal/store"
)

// Trigger schedules a background sync of one collection.
type Trigger interface {
	Fire(collection string)
}

type UserSource interface {
	CurrentUser() (string, bool)
}

type DeviceSource interface {
	DeviceID(ctx context.Context) (string, error)
}

type Billing struct {
	db      *store.DB
	device  DeviceSource
	users   UserSource
	trigger Trigger
	log     logging.Logger

	// Now defaults to the UTC wall clock.
	Now func() time.Time
}

// NewBilling returns the service. trigger may be nil, in which case writes
// are only picked up by the next full sync.
func NewBilling(db *store.DB, device DeviceSource, users UserSource, trigger Trigger, log logging.Logger) *Billing {
	return &Billing{
		db:      db,
		device:  device,
		users:   users,
		trigger: trigger,
		log:     log.With("component", "billing"),
		Now:     repoutil.Now,
	}
}

func (s *Billing) userID() string {
	id, _ := s.users.CurrentUser()
	return id
}

// deviceID is resolved before a write transaction opens; the provider reads
// the store on its own handle.
func (s *Billing) deviceID(ctx context.Context) (string, error) {
	id, err := s.device.DeviceID(ctx)
	if err != nil {
		return "", fmt.Errorf("device id: %w", err)
	}
	return id, nil
}

// stamp marks e as a local change by device. Bookkeeping the caller cannot
// know is carried over from prev, the stored version of the record, if any.
func (s *Billing) stamp(e, prev *models.Envelope, device string) {
	if prev != nil {
		e.CloudID = prev.CloudID
		e.UserID = prev.UserID
	}
	if e.UserID == "" {
		e.UserID = s.userID()
	}
	e.Touch(s.Now(), device)
}

func (s *Billing) fire(ctx context.Context, collection string) {
	if s.trigger == nil {
		return
	}
	s.log.Debug(ctx, "local write", "collection", collection)
	s.trigger.Fire(collection)
}

func (s *Billing) Company(ctx context.Context) (*models.Company, error) {
	return companies.NewSQLiteRepository(s.db.SQL()).Get(ctx, s.userID())
}

// SaveCompany writes the singleton company profile, updating the existing
// one whatever c.ID says.
func (s *Billing) SaveCompany(ctx context.Context, c *models.Company) error {
	if c.Name == "" {
		return errors.New("company name is required")
	}
	device, err := s.deviceID(ctx)
	if err != nil {
		return err
	}
	err = s.db.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := companies.NewSQLiteRepository(tx)
		prev, err := repo.Get(ctx, s.userID())
		if err != nil {
			return err
		}
		c.ID = 0
		var env *models.Envelope
		if prev != nil {
			c.ID = prev.ID
			env = &prev.Envelope
		}
		s.stamp(&c.Envelope, env, device)
		return repo.Save(ctx, c)
	})
	if err != nil {
		return fmt.Errorf("save company: %w", err)
	}
	s.fire(ctx, kinds.CollectionCompany)
	return nil
}

func (s *Billing) Customers(ctx context.Context) ([]models.Customer, error) {
	return customers.NewSQLiteRepository(s.db.SQL()).List(ctx, s.userID())
}

// SearchCustomers lists customers whose name or phone contains term.
func (s *Billing) SearchCustomers(ctx context.Context, term string) ([]models.Customer, error) {
	return customers.NewSQLiteRepository(s.db.SQL()).Search(ctx, s.userID(), term)
}

func (s *Billing) Customer(ctx context.Context, id int64) (*models.Customer, error) {
	return customers.NewSQLiteRepository(s.db.SQL()).GetByID(ctx, id)
}

// SaveCustomer creates c when c.ID is zero and updates it otherwise.
func (s *Billing) SaveCustomer(ctx context.Context, c *models.Customer) error {
	if c.Name == "" {
		return errors.New("customer name is required")
	}
	device, err := s.deviceID(ctx)
	if err != nil {
		return err
	}
	err = s.db.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := customers.NewSQLiteRepository(tx)
		if c.ID == 0 {
			s.stamp(&c.Envelope, nil, device)
			return repo.Create(ctx, c)
		}
		prev, err := repo.GetByID(ctx, c.ID)
		if err != nil {
			return err
		}
		s.stamp(&c.Envelope, &prev.Envelope, device)
		return repo.Update(ctx, c)
	})
	if err != nil {
		return fmt.Errorf("save customer: %w", err)
	}
	s.fire(ctx, kinds.CollectionCustomers)
	return nil
}

func (s *Billing) Products(ctx context.Context) ([]models.Product, error) {
	return products.NewSQLiteRepository(s.db.SQL()).List(ctx, s.userID())
}

func (s *Billing) SearchProducts(ctx context.Context, term string) ([]models.Product, error) {
	return products.NewSQLiteRepository(s.db.SQL()).Search(ctx, s.userID(), term)
}

func (s *Billing) Product(ctx context.Context, id int64) (*models.Product, error) {
	return products.NewSQLiteRepository(s.db.SQL()).GetByID(ctx, id)
}

func (s *Billing) SaveProduct(ctx context.Context, p *models.Product) error {
	if p.Name == "" {
		return errors.New("product name is required")
	}
	if p.Price.IsNegative() {
		return errors.New("product price must not be negative")
	}
	device, err := s.deviceID(ctx)
	if err != nil {
		return err
	}
	err = s.db.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := products.NewSQLiteRepository(tx)
		if p.ID == 0 {
			s.stamp(&p.Envelope, nil, device)
			return repo.Create(ctx, p)
		}
		prev, err := repo.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		s.stamp(&p.Envelope, &prev.Envelope, device)
		return repo.Update(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}
	s.fire(ctx, kinds.CollectionProducts)
	return nil
}

func (s *Billing) Invoices(ctx context.Context) ([]models.Invoice, error) {
	return invoices.NewSQLiteRepository(s.db.SQL()).List(ctx, s.userID())
}

// InvoicesBetween lists invoices dated from..to inclusive. Both dates are
// YYYY-MM-DD.
func (s *Billing) InvoicesBetween(ctx context.Context, from, to string) ([]models.Invoice, error) {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return nil, fmt.Errorf("invalid from date %q: %w", from, err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return nil, fmt.Errorf("invalid to date %q: %w", to, err)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("date range %s..%s is reversed", from, to)
	}
	return invoices.NewSQLiteRepository(s.db.SQL()).ListBetween(ctx, s.userID(), from, to)
}

func (s *Billing) Invoice(ctx context.Context, id int64) (*models.Invoice, error) {
	return invoices.NewSQLiteRepository(s.db.SQL()).GetByID(ctx, id)
}

// SaveInvoice recalculates inv's totals and writes it with its items. A new
// invoice without a number gets the next free one of the current year.
func (s *Billing) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if len(inv.Items) == 0 {
		return errors.New("invoice needs at least one item")
	}
	inv.Recalculate()

	device, err := s.deviceID(ctx)
	if err != nil {
		return err
	}
	err = s.db.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := invoices.NewSQLiteRepository(tx)
		if inv.Date == "" {
			inv.Date = s.Now().Format(time.DateOnly)
		}
		if inv.ID == 0 {
			if inv.Number == "" {
				n, err := repo.NextNumber(ctx, s.Now().Year())
				if err != nil {
					return err
				}
				inv.Number = n
			}
			s.stamp(&inv.Envelope, nil, device)
			return repo.Create(ctx, inv)
		}
		prev, err := repo.GetByID(ctx, inv.ID)
		if err != nil {
			return err
		}
		if inv.Number == "" {
			inv.Number = prev.Number
		}
		s.stamp(&inv.Envelope, &prev.Envelope, device)
		return repo.Update(ctx, inv)
	})
	if err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	s.fire(ctx, kinds.CollectionInvoices)
	return nil
}

// Delete removes the record id of collection. A record that was already
// uploaded leaves a tombstone in the same transaction so the next sync
// deletes the remote document too.
func (s *Billing) Delete(ctx context.Context, collection string, id int64) error {
	desc, err := kinds.Lookup(collection)
	if err != nil {
		return err
	}

	err = s.db.Tx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		rows, err := store.Query(ctx, tx, "SELECT cloud_id, user_id FROM "+desc.Table+" WHERE id = ?", id)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return common.ErrNotFound
		}
		cloudID, owner := rows[0].String("cloud_id"), rows[0].String("user_id")

		if _, err := store.Exec(ctx, tx, "DELETE FROM "+desc.Table+" WHERE id = ?", id); err != nil {
			return err
		}

		if owner == "" {
			owner = s.userID()
		}
		if cloudID == "" || owner == "" {
			return nil
		}
		return tombstones.NewSQLiteRepository(tx).Add(ctx, tombstones.Tombstone{
			Collection: desc.Collection,
			CloudID:    cloudID,
			UserID:     owner,
			DeletedAt:  s.Now(),
		})
	})
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", collection, id, err)
	}
	s.fire(ctx, desc.Collection)
	return nil
}
