package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/billsync/internal/common"
	"github.com/dmitrijs2005/billsync/internal/kinds"
	"github.com/dmitrijs2005/billsync/internal/models"
	"github.com/shopspring/decimal"
)

func (a *App) Login(ctx context.Context) error {
	if a.isLoggedIn() {
		a.println("Already logged in, use logout first.")
		return nil
	}
	token, err := GetSecret("Enter session token", a.out)
	if err != nil {
		return err
	}
	if err := a.session.SignIn(ctx, token); err != nil {
		return err
	}
	id, _ := a.session.CurrentUser()
	a.printf("Logged in as %s\n", id)
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if !a.isLoggedIn() {
		a.println("Not logged in.")
		return nil
	}
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	a.println("Logged out.")
	return nil
}

func (a *App) Status(ctx context.Context) error {
	on, err := a.orchestrator.AutoSyncEnabled(ctx)
	if err != nil {
		return err
	}
	times, err := a.orchestrator.LastSyncTimes(ctx)
	if err != nil {
		return err
	}

	user := "-"
	if id, ok := a.session.CurrentUser(); ok {
		user = id
	}
	a.printf("Status:    %s\n", a.orchestrator.Status())
	a.printf("User:      %s\n", user)
	a.printf("Auto-sync: %s\n", onOff(on))

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tLAST SYNC")
	for _, d := range kinds.All() {
		last := "never"
		if t, ok := times[d.Collection]; ok {
			last = t.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%s\n", d.Collection, last)
	}
	return tw.Flush()
}

func (a *App) Pending(ctx context.Context) error {
	p, err := a.orchestrator.PendingChanges(ctx)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(p.ByCollection))
	for name := range p.ByCollection {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tPENDING")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, p.ByCollection[name])
	}
	fmt.Fprintf(tw, "total\t%d\n", p.Total)
	return tw.Flush()
}

func (a *App) Sync(ctx context.Context) error {
	res := a.orchestrator.SyncAll(ctx)
	if res.Err != nil {
		return res.Err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tUP\tDOWN\tUPDATED\tDELETED\tSKIPPED\tRESULT")
	for _, r := range res.Results {
		result := "ok"
		if r.Err != nil {
			result = r.Err.Error()
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n", r.Collection, r.Uploaded, r.Downloaded, r.Updated, r.Deleted, r.Skipped, result)
	}
	return tw.Flush()
}

func (a *App) AutoSync(ctx context.Context, mode string) error {
	switch mode {
	case "on":
		if err := a.orchestrator.EnableAutoSync(ctx); err != nil {
			return err
		}
		if !a.isLoggedIn() {
			a.println("Auto-sync will start after login.")
			return nil
		}
	case "off":
		if err := a.orchestrator.DisableAutoSync(ctx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown auto-sync mode %q", mode)
	}
	a.printf("Auto-sync %s.\n", mode)
	return nil
}

func (a *App) Company(ctx context.Context) error {
	c, err := a.billing.Company(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		a.println("No company profile yet, use setcompany.")
		return nil
	}
	a.printf("Name:    %s\nPhone:   %s\nAddress: %s\nTax ID:  %s\nSync:    %s\n",
		c.Name, c.Phone, c.Address, c.TaxID, c.SyncStatus)
	return nil
}

func (a *App) SetCompany(ctx context.Context) error {
	c, err := a.billing.Company(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		c = &models.Company{}
	}
	if err := a.askText(&c.Name, "Company name"); err != nil {
		return err
	}
	if err := a.askText(&c.Phone, "Phone"); err != nil {
		return err
	}
	if err := a.askText(&c.Address, "Address"); err != nil {
		return err
	}
	if err := a.askText(&c.TaxID, "Tax ID"); err != nil {
		return err
	}
	if err := a.billing.SaveCompany(ctx, c); err != nil {
		return err
	}
	a.println("Company saved.")
	return nil
}

// Customers lists customers whose name or phone contains search, or all of
// them when search is empty.
func (a *App) Customers(ctx context.Context, search string) error {
	list, err := a.billing.SearchCustomers(ctx, search)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPHONE\tTAX ID\tSYNC")
	for _, c := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Phone, c.TaxID, c.SyncStatus)
	}
	return tw.Flush()
}

func (a *App) AddCustomer(ctx context.Context) error {
	c := &models.Customer{}
	if err := a.askCustomer(c); err != nil {
		return err
	}
	if err := a.billing.SaveCustomer(ctx, c); err != nil {
		return err
	}
	a.printf("Customer %d added.\n", c.ID)
	return nil
}

func (a *App) EditCustomer(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	c, err := a.billing.Customer(ctx, id)
	if err != nil {
		return notFound(err, "customer", id)
	}
	if err := a.askCustomer(c); err != nil {
		return err
	}
	if err := a.billing.SaveCustomer(ctx, c); err != nil {
		return err
	}
	a.printf("Customer %d saved.\n", c.ID)
	return nil
}

func (a *App) askCustomer(c *models.Customer) error {
	if err := a.askText(&c.Name, "Customer name"); err != nil {
		return err
	}
	if err := a.askText(&c.Phone, "Phone"); err != nil {
		return err
	}
	if err := a.askText(&c.Address, "Address"); err != nil {
		return err
	}
	return a.askText(&c.TaxID, "Tax ID")
}

// Products lists products whose name or description contains search.
func (a *App) Products(ctx context.Context, search string) error {
	list, err := a.billing.SearchProducts(ctx, search)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tPRICE\tTAX %\tSTOCK\tSYNC")
	for _, p := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Price.StringFixed(2), p.TaxRate, p.Stock, p.SyncStatus)
	}
	return tw.Flush()
}

func (a *App) AddProduct(ctx context.Context) error {
	p := &models.Product{}
	if err := a.askProduct(p); err != nil {
		return err
	}
	if err := a.billing.SaveProduct(ctx, p); err != nil {
		return err
	}
	a.printf("Product %d added.\n", p.ID)
	return nil
}

func (a *App) EditProduct(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	p, err := a.billing.Product(ctx, id)
	if err != nil {
		return notFound(err, "product", id)
	}
	if err := a.askProduct(p); err != nil {
		return err
	}
	if err := a.billing.SaveProduct(ctx, p); err != nil {
		return err
	}
	a.printf("Product %d saved.\n", p.ID)
	return nil
}

// askProduct prompts for every product field. Empty answers keep the
// current values, which are zero for a new product.
func (a *App) askProduct(p *models.Product) error {
	var err error
	if err = a.askText(&p.Name, "Product name"); err != nil {
		return err
	}
	if err = a.askText(&p.Description, "Description"); err != nil {
		return err
	}
	if p.Price, err = a.askDecimal("Price", p.Price); err != nil {
		return err
	}
	if p.TaxRate, err = a.askDecimal("Tax rate %", p.TaxRate); err != nil {
		return err
	}
	if p.Stock, err = a.askDecimal("Stock", p.Stock); err != nil {
		return err
	}
	return a.askText(&p.ClassificationCode, "Classification code")
}

// Invoices lists invoices dated from..to inclusive, or all of them when
// both are empty.
func (a *App) Invoices(ctx context.Context, from, to string) error {
	var (
		list []models.Invoice
		err  error
	)
	if from == "" && to == "" {
		list, err = a.billing.Invoices(ctx)
	} else {
		list, err = a.billing.InvoicesBetween(ctx, from, to)
	}
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNUMBER\tDATE\tTOTAL\tBALANCE\tSTATUS\tSYNC")
	for _, inv := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", inv.ID, inv.Number, inv.Date,
			inv.Total.StringFixed(2), inv.Balance.StringFixed(2), inv.Status, inv.SyncStatus)
	}
	return tw.Flush()
}

// AddInvoice asks for the customer and then for items until an empty
// product id. Item prices default to the product price.
func (a *App) AddInvoice(ctx context.Context) error {
	inv := &models.Invoice{}
	var err error
	if inv.CustomerID, err = GetID(a.reader, "Customer id (empty for none)", a.out); err != nil {
		return err
	}

	products, err := a.billing.Products(ctx)
	if err != nil {
		return err
	}
	prices := make(map[int64]decimal.Decimal, len(products))
	for _, p := range products {
		prices[p.ID] = p.Price
	}

	for {
		pid, err := GetID(a.reader, "Product id (empty to finish)", a.out)
		if err != nil {
			return err
		}
		if pid == 0 {
			break
		}
		price, ok := prices[pid]
		if !ok {
			a.printf("No product %d.\n", pid)
			continue
		}
		qty, err := GetDecimal(a.reader, "Quantity (empty for 1)", a.out, decimal.NewFromInt(1))
		if err != nil {
			return err
		}
		inv.Items = append(inv.Items, models.InvoiceItem{ProductID: pid, Quantity: qty, Price: price})
	}
	if len(inv.Items) == 0 {
		a.println("No items, invoice not created.")
		return nil
	}

	if err := a.askInvoiceTerms(inv); err != nil {
		return err
	}
	if err := a.billing.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	a.printf("Invoice %s added, total %s.\n", inv.Number, inv.Total.StringFixed(2))
	return nil
}

// EditInvoice changes the header of an invoice: date, customer, discount,
// payment and notes. Items are kept and totals recalculated.
func (a *App) EditInvoice(ctx context.Context, rawID string) error {
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	inv, err := a.billing.Invoice(ctx, id)
	if err != nil {
		return notFound(err, "invoice", id)
	}
	if err := a.askText(&inv.Date, "Date (YYYY-MM-DD)"); err != nil {
		return err
	}
	if _, err := time.Parse(time.DateOnly, inv.Date); err != nil {
		return fmt.Errorf("invalid date %q", inv.Date)
	}
	prompt := "Customer id (empty for none)"
	if inv.CustomerID != 0 {
		prompt = fmt.Sprintf("Customer id [%d] (0 for none)", inv.CustomerID)
	}
	s, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	switch s {
	case "":
	case "0":
		inv.CustomerID = 0
	default:
		if inv.CustomerID, err = parseID(s); err != nil {
			return err
		}
	}
	if err := a.askInvoiceTerms(inv); err != nil {
		return err
	}
	if err := a.billing.SaveInvoice(ctx, inv); err != nil {
		return err
	}
	a.printf("Invoice %s saved, total %s, balance %s.\n", inv.Number, inv.Total.StringFixed(2), inv.Balance.StringFixed(2))
	return nil
}

func (a *App) askInvoiceTerms(inv *models.Invoice) error {
	var err error
	if inv.DiscountPercentage, err = a.askDecimal("Discount %", inv.DiscountPercentage); err != nil {
		return err
	}
	if inv.PaidAmount, err = a.askDecimal("Paid amount", inv.PaidAmount); err != nil {
		return err
	}
	return a.askText(&inv.Notes, "Notes")
}

var deleteKinds = map[string]string{
	"customer": kinds.CollectionCustomers,
	"product":  kinds.CollectionProducts,
	"invoice":  kinds.CollectionInvoices,
}

func (a *App) Delete(ctx context.Context, kind, rawID string) error {
	collection, ok := deleteKinds[kind]
	if !ok {
		return fmt.Errorf("cannot delete %q, use customer, product or invoice", kind)
	}
	id, err := parseID(rawID)
	if err != nil {
		return err
	}
	if err := a.billing.Delete(ctx, collection, id); err != nil {
		return notFound(err, kind, id)
	}
	a.printf("Deleted %s %d.\n", kind, id)
	return nil
}

// askText prompts for a text field. An empty answer keeps the current value.
func (a *App) askText(dst *string, prompt string) error {
	if *dst != "" {
		prompt = fmt.Sprintf("%s [%s]", prompt, *dst)
	}
	s, err := GetSimpleText(a.reader, prompt, a.out)
	if err != nil {
		return err
	}
	if s != "" {
		*dst = s
	}
	return nil
}

// askDecimal prompts for an amount, showing cur as the default.
func (a *App) askDecimal(prompt string, cur decimal.Decimal) (decimal.Decimal, error) {
	return GetDecimal(a.reader, fmt.Sprintf("%s [%s]", prompt, cur.String()), a.out, cur)
}

// notFound rewords common.ErrNotFound for the user.
func notFound(err error, kind string, id int64) error {
	if errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("no %s %d", kind, id)
	}
	return err
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
