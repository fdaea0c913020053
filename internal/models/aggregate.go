package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Account is a customer or vendor.
type Account struct {
	ID         string
	GlideRowID string
	Name       string
	Email      string
	Phone      string
	// Address holds the non-empty address lines in display order.
	Address []string
}

type Product struct {
	ID                string
	GlideRowID        string
	DisplayName       string
	VendorProductName string
	Category          string
}

type LineItem struct {
	ID          string
	ProductRef  Ref[Product]
	Product     *Product
	RenamedName string
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	// LineTotal is the stored line total. It is never recomputed from
	// Quantity and UnitPrice even when the two have drifted.
	LineTotal decimal.Decimal
}

// Name is what the line is called on a document: product display name, then
// the line's renamed name, then the vendor's product name, then the free-text
// description, then "N/A".
func (li LineItem) Name() string {
	var candidates []string
	if li.Product != nil {
		candidates = append(candidates, li.Product.DisplayName)
	}
	candidates = append(candidates, li.RenamedName)
	if li.Product != nil {
		candidates = append(candidates, li.Product.VendorProductName)
	}
	candidates = append(candidates, li.Description)
	for _, c := range candidates {
		if s := strings.TrimSpace(c); s != "" {
			return s
		}
	}
	return "N/A"
}

// Payment is a customer payment, vendor payment or customer credit.
type Payment struct {
	ID     string
	Amount decimal.Decimal
	Date   time.Time
	Method string
	Note   string
}

// Document holds the normalised root fields shared by every document type.
type Document struct {
	ID         string
	GlideRowID string
	UID        string
	Date       time.Time
	Status     string

	TotalAmount decimal.Decimal
	// TotalPaid is total_paid for invoices and purchase orders, total_credits for estimates.
	TotalPaid decimal.Decimal
	Balance   decimal.Decimal
	TaxRate   decimal.Decimal
	TaxAmount decimal.Decimal
	Shipping  decimal.Decimal

	Notes      string
	AccountRef Ref[Account]
	PDFURL     string
	IsSample   bool
}

// Aggregate is a fully resolved document: the single input to a renderer.
// The concrete types are *InvoiceAggregate, *EstimateAggregate and
// *PurchaseOrderAggregate; the set is closed.
type Aggregate interface {
	Kind() DocumentType
	Header() *Document
	Counterparty() *Account
	Items() []LineItem
	Settlements() []Payment
	sealed()
}

type InvoiceAggregate struct {
	Document
	Customer *Account
	Lines    []LineItem
	Payments []Payment
}

type EstimateAggregate struct {
	Document
	Customer *Account
	Lines    []LineItem
	Credits  []Payment
}

type PurchaseOrderAggregate struct {
	Document
	Vendor   *Account
	Lines    []LineItem
	Payments []Payment
}

func (a *InvoiceAggregate) Kind() DocumentType { return Invoice }
func (a *InvoiceAggregate) Header() *Document { return &a.Document }
func (a *InvoiceAggregate) Counterparty() *Account { return a.Customer }
func (a *InvoiceAggregate) Items() []LineItem { return a.Lines }
func (a *InvoiceAggregate) Settlements() []Payment { return a.Payments }
func (a *InvoiceAggregate) sealed() {}

func (a *EstimateAggregate) Kind() DocumentType { return Estimate }
func (a *EstimateAggregate) Header() *Document { return &a.Document }
func (a *EstimateAggregate) Counterparty() *Account { return a.Customer }
func (a *EstimateAggregate) Items() []LineItem { return a.Lines }
func (a *EstimateAggregate) Settlements() []Payment { return a.Credits }
func (a *EstimateAggregate) sealed() {}

func (a *PurchaseOrderAggregate) Kind() DocumentType { return PurchaseOrder }
func (a *PurchaseOrderAggregate) Header() *Document { return &a.Document }
func (a *PurchaseOrderAggregate) Counterparty() *Account { return a.Vendor }
func (a *PurchaseOrderAggregate) Items() []LineItem { return a.Lines }
func (a *PurchaseOrderAggregate) Settlements() []Payment { return a.Payments }
func (a *PurchaseOrderAggregate) sealed() {}
