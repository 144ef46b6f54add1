// Package kinds describes the four syncable record kinds to the generic
// collection syncer: their tables, payload fields, singleton behaviour,
// owned child rows and cross-kind references.
package kinds

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/billsync/internal/common"
)

// Collection names as used both for remote collections and sync metadata.
const (
	CollectionCompany   = "company"
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
	CollectionInvoices  = "invoices"
)

// SingletonDocID is the remote document id of a singleton kind.
const SingletonDocID = "settings"

type FieldType int

const (
	Text FieldType = iota
	Integer
	Decimal
)

// Field is one payload column. The remote document uses the column name as
// its data key.
type Field struct {
	Name string
	Type FieldType
	// Ref names the collection an Integer field points into. Such fields
	// travel with an extra "<name>_ref" key carrying the referenced cloud id,
	// since local ids differ between devices.
	Ref string
}

// RefKey is the document key carrying the referenced record's cloud id.
func (f Field) RefKey() string {
	return strings.TrimSuffix(f.Name, "_id") + "_ref"
}

// Zero is the stored value for an explicit null in a document. Text and
// decimal columns are NOT NULL; integer references stay NULL.
func (f Field) Zero() any {
	switch f.Type {
	case Text:
		return ""
	case Decimal:
		return "0"
	default:
		return nil
	}
}

// Children describes rows owned by a parent record and embedded in its
// remote document as a list under Key.
type Children struct {
	Table      string
	ForeignKey string
	Key        string
	Fields     []Field
}

type Descriptor struct {
	Collection string
	Table      string
	Fields     []Field
	// Singleton kinds have at most one local row and a fixed remote id.
	Singleton bool
	Children  *Children
}

func (d *Descriptor) String() string { return d.Collection }

// Field returns the payload field with the given name.
func (d *Descriptor) Field(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func text(names ...string) []Field {
	fs := make([]Field, len(names))
	for i, n := range names {
		fs[i] = Field{Name: n, Type: Text}
	}
	return fs
}

var Company = &Descriptor{
	Collection: CollectionCompany,
	Table:      "companies",
	Fields:     text("name", "phone", "address", "tax_id", "logo"),
	Singleton:  true,
}

var Products = &Descriptor{
	Collection: CollectionProducts,
	Table:      "products",
	Fields: []Field{
		{Name: "name", Type: Text},
		{Name: "description", Type: Text},
		{Name: "price", Type: Decimal},
		{Name: "classification_code", Type: Text},
		{Name: "tax_rate", Type: Decimal},
		{Name: "stock", Type: Decimal},
	},
}

var Customers = &Descriptor{
	Collection: CollectionCustomers,
	Table:      "customers",
	Fields:     text("name", "phone", "address", "tax_id"),
}

var Invoices = &Descriptor{
	Collection: CollectionInvoices,
	Table:      "invoices",
	Fields: []Field{
		{Name: "invoice_number", Type: Text},
		{Name: "customer_id", Type: Integer, Ref: CollectionCustomers},
		{Name: "date", Type: Text},
		{Name: "subtotal", Type: Decimal},
		{Name: "discount_percentage", Type: Decimal},
		{Name: "discount_amount", Type: Decimal},
		{Name: "tax_amount", Type: Decimal},
		{Name: "total", Type: Decimal},
		{Name: "paid_amount", Type: Decimal},
		{Name: "balance", Type: Decimal},
		{Name: "status", Type: Text},
		{Name: "notes", Type: Text},
	},
	Children: &Children{
		Table:      "invoice_items",
		ForeignKey: "invoice_id",
		Key:        "items",
		Fields: []Field{
			{Name: "product_id", Type: Integer, Ref: CollectionProducts},
			{Name: "quantity", Type: Decimal},
			{Name: "price", Type: Decimal},
			{Name: "amount", Type: Decimal},
		},
	},
}

// All returns the descriptors in sync order: company, products, customers,
// invoices. Referenced kinds come before the kinds that reference them.
func All() []*Descriptor {
	return []*Descriptor{Company, Products, Customers, Invoices}
}

// Lookup finds a descriptor by collection name.
func Lookup(collection string) (*Descriptor, error) {
	for _, d := range All() {
		if d.Collection == collection {
			return d, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", common.ErrUnknownCollection, collection)
}
