package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/Lllllllleong/documentpdfflow/internal/apperr"
	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/store"
)

func seedInvoice(m *store.Memory) {
	m.Insert("invoices", models.Row{
		"id": "abc", "glide_row_id": "g1", "invoice_uid": "INV-001",
		"rowid_accounts": "acc-g", "total_amount": 100, "total_paid": 40, "balance": 60,
	})
	m.Insert("accounts", models.Row{"id": "a1", "glide_row_id": "acc-g", "account_name": "Acme"})
	m.Insert("invoice_lines",
		models.Row{"id": "l1", "rowid_invoices": "g1", "rowid_products": "p1", "quantity": 2, "unit_price": 50, "line_total": 100},
		models.Row{"id": "l2", "rowid_invoices": "g1", "rowid_products": "p2", "quantity": 1, "unit_price": 5, "line_total": 5},
		models.Row{"id": "l3", "rowid_invoices": "g1", "rowid_products": "p1", "quantity": 1, "unit_price": 50, "line_total": 50},
		models.Row{"id": "l4", "rowid_invoices": "other", "rowid_products": "p3"},
	)
	m.Insert("products",
		models.Row{"id": "pp1", "glide_row_id": "p1", "display_name": "Widget"},
		models.Row{"id": "pp2", "glide_row_id": "p2", "display_name": "Bolt"},
		models.Row{"id": "pp3", "glide_row_id": "p3", "display_name": "Unrelated"},
	)
	m.Insert("customer_payments", models.Row{"id": "pay1", "rowid_invoices": "g1", "payment_amount": 40})
}

func TestResolveInvoice(t *testing.T) {
	m := store.NewMemory()
	seedInvoice(m)
	r := New(m, nil)

	res, err := r.Resolve(context.Background(), models.Invoice, "abc")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.Account == nil || res.Account.String("account_name") != "Acme" {
		t.Fatalf("account: got=%v", res.Account)
	}
	if len(res.Lines) != 3 {
		t.Fatalf("lines: want=3 got=%d", len(res.Lines))
	}
	if len(res.Products) != 2 || res.Products["p1"] == nil || res.Products["p2"] == nil {
		t.Fatalf("products: got=%v", res.Products)
	}
	if len(res.Payments) != 1 {
		t.Fatalf("payments: want=1 got=%d", len(res.Payments))
	}
	if got := m.Calls["products"]; got != 1 {
		t.Fatalf("products should be fetched with one batched query, got %d queries", got)
	}
}

func TestResolveFallsBackToGlideRowID(t *testing.T) {
	m := store.NewMemory()
	seedInvoice(m)
	res, err := New(m, nil).Resolve(context.Background(), models.Invoice, "g1")
	if err != nil {
		t.Fatalf("Resolve by glide_row_id: %v", err)
	}
	if res.Root.String("id") != "abc" {
		t.Fatalf("root: want id abc got=%v", res.Root)
	}
}

func TestResolveMissingRootIsNotFound(t *testing.T) {
	m := store.NewMemory()
	_, err := New(m, nil).Resolve(context.Background(), models.Estimate, "nope")
	if err == nil {
		t.Fatalf("Resolve: expected error")
	}
	if apperr.KindOf(err) != apperr.KindFetch || !apperr.IsNotFound(err) {
		t.Fatalf("want FETCH_ERROR not-found got kind=%s notFound=%v", apperr.KindOf(err), apperr.IsNotFound(err))
	}
}

func TestResolveRootQueryErrorIsFetchError(t *testing.T) {
	m := store.NewMemory()
	m.Errors["invoices"] = errors.New("connection refused")
	_, err := New(m, nil).Resolve(context.Background(), models.Invoice, "abc")
	if apperr.KindOf(err) != apperr.KindFetch || apperr.IsNotFound(err) {
		t.Fatalf("want FETCH_ERROR (not not-found) got=%v", err)
	}
}

func TestResolveDegradesFailedRelations(t *testing.T) {
	m := store.NewMemory()
	seedInvoice(m)
	m.Errors["customer_payments"] = errors.New("permission denied")
	m.Errors["accounts"] = errors.New("timeout")
	m.Errors["products"] = errors.New("timeout")

	res, err := New(m, nil).Resolve(context.Background(), models.Invoice, "abc")
	if err != nil {
		t.Fatalf("Resolve should tolerate relation failures: %v", err)
	}
	if res.Account != nil || len(res.Payments) != 0 || len(res.Products) != 0 {
		t.Fatalf("failed relations should be empty: account=%v payments=%d products=%d", res.Account, len(res.Payments), len(res.Products))
	}
	if len(res.Lines) != 3 {
		t.Fatalf("lines should still load: got=%d", len(res.Lines))
	}
}

func TestResolvePurchaseOrderLineSources(t *testing.T) {
	t.Run("alternate ref field", func(t *testing.T) {
		m := store.NewMemory()
		m.Insert("purchase_orders", models.Row{"id": "po1", "glide_row_id": "pg1"})
		m.Insert("purchase_order_lines", models.Row{"id": "l1", "rowid_purchase_order": "pg1"})
		res, err := New(m, nil).Resolve(context.Background(), models.PurchaseOrder, "po1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(res.Lines) != 1 || res.LegacyLines {
			t.Fatalf("want 1 non-legacy line got=%d legacy=%v", len(res.Lines), res.LegacyLines)
		}
	})

	t.Run("legacy products table", func(t *testing.T) {
		m := store.NewMemory()
		m.Insert("purchase_orders", models.Row{"id": "po1", "glide_row_id": "pg1", "rowid_accounts": "missing"})
		m.Insert("products",
			models.Row{"id": "pr1", "glide_row_id": "p1", "rowid_purchase_orders": "pg1", "vendor_product_name": "Flour"},
			models.Row{"id": "pr2", "glide_row_id": "p2", "rowid_purchase_orders": "other"},
		)
		res, err := New(m, nil).Resolve(context.Background(), models.PurchaseOrder, "po1")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if !res.LegacyLines || len(res.Lines) != 1 || res.Products["p1"] == nil {
			t.Fatalf("legacy lines: legacy=%v lines=%d products=%v", res.LegacyLines, len(res.Lines), res.Products)
		}
		if res.Account != nil {
			t.Fatalf("unresolvable account should be nil, got=%v", res.Account)
		}
	})
}
