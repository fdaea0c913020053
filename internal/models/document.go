package models

import (
	"fmt"
	"strings"
)

// DocumentType identifies which kind of business document a PDF is generated for.
type DocumentType string

const (
	Invoice       DocumentType = "invoice"
	Estimate      DocumentType = "estimate"
	PurchaseOrder DocumentType = "purchaseOrder"
)

// DocumentTypes lists every type in scan order.
var DocumentTypes = []DocumentType{Invoice, Estimate, PurchaseOrder}

// ParseDocumentType accepts the spellings used by the different callers
// ("purchaseorder", "purchase_order", "purchaseOrders", "PO", ...).
func ParseDocumentType(s string) (DocumentType, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "", " ", "").Replace(norm)
	switch norm {
	case "invoice", "invoices":
		return Invoice, nil
	case "estimate", "estimates":
		return Estimate, nil
	case "purchaseorder", "purchaseorders", "po":
		return PurchaseOrder, nil
	default:
		return "", fmt.Errorf("unknown document type %q", s)
	}
}

// Shared table names, before any deployment prefix is applied.
const (
	AccountsTable = "accounts"
	ProductsTable = "products"
)

// DocumentConfig describes where a document type's rows live and how its
// relations are keyed. Every relation is a glide reference: a rowid_* column
// holding the parent's glide_row_id, never its primary key.
type DocumentConfig struct {
	Type  DocumentType
	Title string
	Table string

	UIDField    string
	DateFields  []string
	NotesFields []string

	LinesTable    string
	LineRefFields []string

	// Purchase orders predating purchase_order_lines kept their lines in the
	// products table, each product row carrying rowid_purchase_orders.
	LegacyLinesTable   string
	LegacyLineRefField string

	PaymentsTable    string
	PaymentRefField  string
	PaymentsLabel    string
	PaidFields       []string
	CounterpartyRole string

	Folder     string
	UIDPrefix  string
	FilePrefix string
}

var documentConfigs = map[DocumentType]DocumentConfig{
	Invoice: {
		Type:             Invoice,
		Title:            "INVOICE",
		Table:            "invoices",
		UIDField:         "invoice_uid",
		DateFields:       []string{"invoice_order_date", "invoice_date", "date", "created_at"},
		NotesFields:      []string{"invoice_notes", "notes"},
		LinesTable:       "invoice_lines",
		LineRefFields:    []string{"rowid_invoices"},
		PaymentsTable:    "customer_payments",
		PaymentRefField:  "rowid_invoices",
		PaymentsLabel:    "Payments",
		PaidFields:       []string{"total_paid"},
		CounterpartyRole: "Bill To",
		Folder:           "Invoices",
		UIDPrefix:        "INV#",
		FilePrefix:       "INV-",
	},
	Estimate: {
		Type:             Estimate,
		Title:            "ESTIMATE",
		Table:            "estimates",
		UIDField:         "estimate_uid",
		DateFields:       []string{"estimate_date", "date", "created_at"},
		NotesFields:      []string{"estimate_notes", "notes"},
		LinesTable:       "estimate_lines",
		LineRefFields:    []string{"rowid_estimates"},
		PaymentsTable:    "customer_credits",
		PaymentRefField:  "rowid_estimates",
		PaymentsLabel:    "Credits",
		PaidFields:       []string{"total_credits"},
		CounterpartyRole: "Customer",
		Folder:           "Estimates",
		UIDPrefix:        "EST#",
		FilePrefix:       "EST-",
	},
	PurchaseOrder: {
		Type:               PurchaseOrder,
		Title:              "PURCHASE ORDER",
		Table:              "purchase_orders",
		UIDField:           "purchase_order_uid",
		DateFields:         []string{"po_date", "purchase_order_date", "date", "created_at"},
		NotesFields:        []string{"po_notes", "notes"},
		LinesTable:         "purchase_order_lines",
		LineRefFields:      []string{"rowid_purchase_orders", "rowid_purchase_order"},
		LegacyLinesTable:   ProductsTable,
		LegacyLineRefField: "rowid_purchase_orders",
		PaymentsTable:      "vendor_payments",
		PaymentRefField:    "rowid_purchase_orders",
		PaymentsLabel:      "Payments",
		PaidFields:         []string{"total_paid"},
		CounterpartyRole:   "Vendor",
		Folder:             "PurchaseOrders",
		UIDPrefix:          "PO#",
		FilePrefix:         "PO-",
	},
}

// ConfigFor returns the static configuration of t.
func ConfigFor(t DocumentType) (DocumentConfig, error) {
	cfg, ok := documentConfigs[t]
	if !ok {
		return DocumentConfig{}, fmt.Errorf("unknown document type %q", t)
	}
	return cfg, nil
}

// LineTableParent maps a line table to the document type whose lines it holds.
// Used by webhook triggers to regenerate a parent when a line changes.
func LineTableParent(table string) (DocumentType, bool) {
	for _, t := range DocumentTypes {
		if documentConfigs[t].LinesTable == table {
			return t, true
		}
	}
	return "", false
}

// DocumentTableType maps a document table to its type.
func DocumentTableType(table string) (DocumentType, bool) {
	for _, t := range DocumentTypes {
		if documentConfigs[t].Table == table {
			return t, true
		}
	}
	return "", false
}

// Ref is a denormalised reference to a row of T: the referenced row's
// glide_row_id stored in a rowid_* column. It is resolved by an explicit
// lookup on glide_row_id, never by a join on primary keys.
type Ref[T any] string

func (r Ref[T]) String() string { return string(r) }

func (r Ref[T]) IsZero() bool { return strings.TrimSpace(string(r)) == "" }

// RefOf reads a glide reference column from row.
func RefOf[T any](row Row, column string) Ref[T] {
	return Ref[T](row.String(column))
}
