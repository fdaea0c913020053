package aggregate

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Lllllllleong/documentpdfflow/internal/models"
	"github.com/Lllllllleong/documentpdfflow/internal/resolver"
)

func result(t *testing.T, dt models.DocumentType, root models.Row) *resolver.Result {
	t.Helper()
	cfg, err := models.ConfigFor(dt)
	if err != nil {
		t.Fatalf("ConfigFor: %v", err)
	}
	return &resolver.Result{Type: dt, Config: cfg, Root: root, Products: map[string]models.Row{}}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBuildInvoice(t *testing.T) {
	res := result(t, models.Invoice, models.Row{
		"id": "abc", "glide_row_id": "g1", "invoice_uid": "INV-001",
		"total_amount": "100", "total_paid": float64(40), "balance": "60.00",
		"invoice_order_date": "2024-03-05", "rowid_accounts": "acc",
	})
	res.Account = models.Row{"account_name": "Acme", "address_line_1": "1 Main St", "address_line_2": "", "city": "Springfield"}
	res.Lines = []models.Row{{"rowid_products": "p1", "quantity": 2, "unit_price": "50", "line_total": 100}}
	res.Products["p1"] = models.Row{"glide_row_id": "p1", "display_name": "Widget"}

	agg, err := Build(res)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	inv, ok := agg.(*models.InvoiceAggregate)
	if !ok {
		t.Fatalf("Build: want *InvoiceAggregate got=%T", agg)
	}
	if inv.UID != "INV-001" || !inv.Balance.Equal(dec("60")) || !inv.TotalPaid.Equal(dec("40")) {
		t.Fatalf("header: got=%+v", inv.Document)
	}
	if inv.Date.Format("2006-01-02") != "2024-03-05" {
		t.Fatalf("date: got=%v", inv.Date)
	}
	if inv.Customer == nil || !reflect.DeepEqual(inv.Customer.Address, []string{"1 Main St", "Springfield"}) {
		t.Fatalf("customer: got=%+v", inv.Customer)
	}
	if len(inv.Lines) != 1 || inv.Lines[0].Name() != "Widget" || !inv.Lines[0].LineTotal.Equal(dec("100")) {
		t.Fatalf("lines: got=%+v", inv.Lines)
	}
	if len(inv.Payments) != 0 {
		t.Fatalf("payments: want none got=%d", len(inv.Payments))
	}
}

func TestBuildBalanceFallback(t *testing.T) {
	cases := []struct {
		name string
		dt   models.DocumentType
		root models.Row
		want string
	}{
		{"stored balance trusted", models.Invoice, models.Row{"total_amount": 100, "total_paid": 40, "balance": 75}, "75"},
		{"stored zero trusted", models.Invoice, models.Row{"total_amount": 100, "total_paid": 40, "balance": 0}, "0"},
		{"null balance derived", models.Invoice, models.Row{"total_amount": 100, "total_paid": 40, "balance": nil}, "60"},
		{"estimate uses credits", models.Estimate, models.Row{"total_amount": "80", "total_credits": "30"}, "50"},
		{"garbage numbers", models.PurchaseOrder, models.Row{"total_amount": "abc", "total_paid": nil}, "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			agg, err := Build(result(t, tc.dt, tc.root))
			if err != nil {
				t.Fatalf("Build: %v", err)
			}
			if got := agg.Header().Balance; !got.Equal(dec(tc.want)) {
				t.Fatalf("balance: want=%s got=%s", tc.want, got)
			}
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	res := result(t, models.Estimate, models.Row{"id": "e1", "estimate_uid": "EST#7", "is_a_sample": true})
	res.Payments = []models.Row{{"amount": "10", "date": "2024-01-01", "payment_type": "Cash"}}
	a, _ := Build(res)
	b, _ := Build(res)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("Build not deterministic:\n%+v\n%+v", a, b)
	}
	est := a.(*models.EstimateAggregate)
	if !est.IsSample || len(est.Credits) != 1 || est.Credits[0].Method != "Cash" {
		t.Fatalf("estimate: got=%+v", est)
	}
}

func TestBuildLegacyPurchaseOrderLines(t *testing.T) {
	res := result(t, models.PurchaseOrder, models.Row{"id": "po1"})
	res.LegacyLines = true
	res.Lines = []models.Row{{"glide_row_id": "p1", "vendor_product_name": "Flour", "total_qty_purchased": 3, "cost": 2, "total_cost": 6}}
	agg, err := Build(res)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	po := agg.(*models.PurchaseOrderAggregate)
	if po.Vendor != nil {
		t.Fatalf("vendor: want nil got=%+v", po.Vendor)
	}
	li := po.Lines[0]
	if li.Name() != "Flour" || !li.Quantity.Equal(dec("3")) || !li.LineTotal.Equal(dec("6")) {
		t.Fatalf("legacy line: name=%q %+v", li.Name(), li)
	}
}

func TestLineNameFallbackOrder(t *testing.T) {
	cases := []struct {
		li   models.LineItem
		want string
	}{
		{models.LineItem{Product: &models.Product{DisplayName: "Display", VendorProductName: "Vendor"}, RenamedName: "Renamed"}, "Display"},
		{models.LineItem{Product: &models.Product{VendorProductName: "Vendor"}, RenamedName: "Renamed"}, "Renamed"},
		{models.LineItem{Product: &models.Product{VendorProductName: "Vendor"}, Description: "Desc"}, "Vendor"},
		{models.LineItem{Description: "Desc"}, "Desc"},
		{models.LineItem{RenamedName: "  "}, "N/A"},
	}
	for _, tc := range cases {
		if got := tc.li.Name(); got != tc.want {
			t.Fatalf("Name(%+v): want=%q got=%q", tc.li, tc.want, got)
		}
	}
}

func TestBuildRejectsMissingRoot(t *testing.T) {
	if _, err := Build(&resolver.Result{Type: models.Invoice}); err == nil {
		t.Fatalf("Build without root: expected error")
	}
}
