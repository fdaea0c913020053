package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestRowDecimalNormalisesDriverShapes(t *testing.T) {
	row := Row{
		"numeric_string": "123.45",
		"currency":       "$1,250.00",
		"float":          float64(40),
		"int":            int64(7),
		"bytes":          []byte("2.5"),
		"null":           nil,
		"garbage":        "n/a",
		"empty":          "",
	}
	cases := []struct {
		keys []string
		want string
		ok   bool
	}{
		{[]string{"numeric_string"}, "123.45", true},
		{[]string{"currency"}, "1250", true},
		{[]string{"float"}, "40", true},
		{[]string{"int"}, "7", true},
		{[]string{"bytes"}, "2.5", true},
		{[]string{"null"}, "0", false},
		{[]string{"garbage"}, "0", false},
		{[]string{"missing"}, "0", false},
		{[]string{"null", "empty", "int"}, "7", true},
	}
	for _, tc := range cases {
		got, ok := row.LookupDecimal(tc.keys...)
		if ok != tc.ok || !got.Equal(decimal.RequireFromString(tc.want)) {
			t.Fatalf("LookupDecimal(%v): want=%s/%v got=%s/%v", tc.keys, tc.want, tc.ok, got, ok)
		}
	}
}

func TestRowStringFallsThroughEmptyValues(t *testing.T) {
	row := Row{"a": "  ", "b": nil, "c": " Widget ", "n": int64(3)}
	if got := row.String("a", "b", "c"); got != "Widget" {
		t.Fatalf("String: want=%q got=%q", "Widget", got)
	}
	if got := row.String("n"); got != "3" {
		t.Fatalf("String(int): want=%q got=%q", "3", got)
	}
	if got := row.String("missing"); got != "" {
		t.Fatalf("String(missing): want empty got=%q", got)
	}
}

func TestRowBoolAndTime(t *testing.T) {
	row := Row{
		"flag_bool":   true,
		"flag_string": "true",
		"flag_int":    int64(0),
		"date":        "2024-03-05",
		"stamp":       time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if !row.Bool("flag_bool") || !row.Bool("flag_string") || row.Bool("flag_int") || row.Bool("missing") {
		t.Fatalf("Bool: unexpected values")
	}
	d, ok := row.Time("missing", "date")
	if !ok || d.Format("2006-01-02") != "2024-03-05" {
		t.Fatalf("Time(date): got=%v ok=%v", d, ok)
	}
	s, ok := row.Time("stamp")
	if !ok || s.Hour() != 3 {
		t.Fatalf("Time(stamp): got=%v ok=%v", s, ok)
	}
}

func TestParseDocumentType(t *testing.T) {
	cases := map[string]DocumentType{
		"invoice":        Invoice,
		"Invoices":       Invoice,
		"estimate":       Estimate,
		"purchaseorder":  PurchaseOrder,
		"purchaseOrder":  PurchaseOrder,
		"purchase_order": PurchaseOrder,
		"PO":             PurchaseOrder,
	}
	for in, want := range cases {
		got, err := ParseDocumentType(in)
		if err != nil || got != want {
			t.Fatalf("ParseDocumentType(%q): want=%q got=%q err=%v", in, want, got, err)
		}
	}
	if _, err := ParseDocumentType("memo"); err == nil {
		t.Fatalf("ParseDocumentType(memo): expected error")
	}
}

func TestConfigTables(t *testing.T) {
	for _, dt := range DocumentTypes {
		cfg, err := ConfigFor(dt)
		if err != nil {
			t.Fatalf("ConfigFor(%s): %v", dt, err)
		}
		if got, ok := DocumentTableType(cfg.Table); !ok || got != dt {
			t.Fatalf("DocumentTableType(%s): want=%s got=%s", cfg.Table, dt, got)
		}
		if got, ok := LineTableParent(cfg.LinesTable); !ok || got != dt {
			t.Fatalf("LineTableParent(%s): want=%s got=%s", cfg.LinesTable, dt, got)
		}
	}
	if _, ok := DocumentTableType("accounts"); ok {
		t.Fatalf("DocumentTableType(accounts): expected no match")
	}
}

func TestBatchJobTransitionsAreMonotonic(t *testing.T) {
	now := time.Now()
	job := &BatchJob{ID: "job-1", Status: BatchPending}
	if err := job.Advance(BatchCompleted, now); err == nil {
		t.Fatalf("pending -> completed should be rejected")
	}
	if err := job.Advance(BatchProcessing, now); err != nil {
		t.Fatalf("pending -> processing: %v", err)
	}
	if err := job.Advance(BatchCompleted, now); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	for _, next := range []BatchStatus{BatchPending, BatchProcessing, BatchFailed} {
		if err := job.Advance(next, now); err == nil {
			t.Fatalf("completed -> %s should be rejected", next)
		}
	}
}
