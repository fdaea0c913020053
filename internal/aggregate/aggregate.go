// Package aggregate turns resolved rows into typed document aggregates. It does
// no I/O and gives identical output for identical input.
package aggregate

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/resolver"
)

var addressFields = []string{
	"address_line_1", "address_line_2", "address", "street", "city_state_zip", "city", "state", "zip", "country",
}

// Build merges a resolver result into the aggregate for its document type.
func Build(res *resolver.Result) (models.Aggregate, error) {
	if res == nil || res.Root == nil {
		return nil, fmt.Errorf("no root row to build from")
	}
	doc := header(res.Config, res.Root)
	account := buildAccount(res.Account)
	lines := buildLines(res.Lines, res.Products, res.LegacyLines)
	payments := buildPayments(res.Payments)

	switch res.Type {
	case models.Invoice:
		return &models.InvoiceAggregate{Document: doc, Customer: account, Lines: lines, Payments: payments}, nil
	case models.Estimate:
		return &models.EstimateAggregate{Document: doc, Customer: account, Lines: lines, Credits: payments}, nil
	case models.PurchaseOrder:
		return &models.PurchaseOrderAggregate{Document: doc, Vendor: account, Lines: lines, Payments: payments}, nil
	default:
		return nil, fmt.Errorf("unknown document type %q", res.Type)
	}
}

func header(cfg models.DocumentConfig, root models.Row) models.Document {
	doc := models.Document{
		ID:          root.String(models.ColID),
		GlideRowID:  root.String(models.ColGlideRowID),
		UID:         root.String(cfg.UIDField),
		Status:      root.String("status", "payment_status"),
		TotalAmount: root.Decimal("total_amount"),
		TotalPaid:   root.Decimal(cfg.PaidFields...),
		TaxRate:     root.Decimal("tax_rate"),
		TaxAmount:   root.Decimal("tax_amount"),
		Shipping:    root.Decimal("shipping_cost", "shipping"),
		Notes:       root.String(cfg.NotesFields...),
		AccountRef:  models.RefOf[models.Account](root, models.ColAccountRef),
		PDFURL:      root.String(models.ColPDFURL),
		IsSample:    root.Bool("is_a_sample"),
	}
	if d, ok := root.Time(cfg.DateFields...); ok {
		doc.Date = d
	}
	// Stored balance wins; it is derived only when the column is empty.
	if bal, ok := root.LookupDecimal("balance"); ok {
		doc.Balance = bal
	} else {
		doc.Balance = doc.TotalAmount.Sub(doc.TotalPaid)
	}
	return doc
}

func buildAccount(row models.Row) *models.Account {
	if row == nil {
		return nil
	}
	acc := &models.Account{
		ID:         row.String(models.ColID),
		GlideRowID: row.String(models.ColGlideRowID),
		Name:       row.String("account_name", "name", "company_name"),
		Email:      row.String("email", "email_address"),
		Phone:      row.String("phone", "phone_number"),
	}
	for _, f := range addressFields {
		if v := row.String(f); v != "" {
			acc.Address = append(acc.Address, v)
		}
	}
	return acc
}

func buildProduct(row models.Row) *models.Product {
	if row == nil {
		return nil
	}
	return &models.Product{
		ID:                row.String(models.ColID),
		GlideRowID:        row.String(models.ColGlideRowID),
		DisplayName:       row.String("display_name"),
		VendorProductName: row.String("vendor_product_name"),
		Category:          row.String("category"),
	}
}

func buildLines(rows []models.Row, products map[string]models.Row, legacy bool) []models.LineItem {
	out := make([]models.LineItem, 0, len(rows))
	for _, r := range rows {
		li := models.LineItem{
			ID:          r.String(models.ColID),
			RenamedName: r.String("renamed_product_name"),
			Description: r.String("description", "product_name", "line_description"),
			Quantity:    r.Decimal("quantity", "qty", "total_qty_purchased"),
			UnitPrice:   r.Decimal("unit_price", "selling_price", "cost"),
			LineTotal:   r.Decimal("line_total", "total", "total_cost"),
		}
		if legacy {
			li.ProductRef = models.Ref[models.Product](r.String(models.ColGlideRowID))
			li.Product = buildProduct(r)
		} else {
			li.ProductRef = models.RefOf[models.Product](r, models.ColProductRef)
			if !li.ProductRef.IsZero() {
				li.Product = buildProduct(products[li.ProductRef.String()])
			}
		}
		out = append(out, li)
	}
	return out
}

func buildPayments(rows []models.Row) []models.Payment {
	out := make([]models.Payment, 0, len(rows))
	for _, r := range rows {
		p := models.Payment{
			ID:     r.String(models.ColID),
			Amount: r.Decimal("payment_amount", "amount", "credit_amount"),
			Method: r.String("payment_type", "payment_method", "method", "type"),
			Note:   strings.TrimSpace(r.String("payment_note", "credit_note", "note", "notes")),
		}
		if d, ok := r.Time("date_of_payment", "payment_date", "date_of_credit", "date", "created_at"); ok {
			p.Date = d
		}
		out = append(out, p)
	}
	return out
}
