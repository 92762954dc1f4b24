package enums

import "testing"

func TestPurchasingStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to PurchasingStatus
		ok       bool
	}{
		{PurchasingStatusDraft, PurchasingStatusCompleted, true},
		{PurchasingStatusDraft, PurchasingStatusCancelled, true},
		{PurchasingStatusCompleted, PurchasingStatusCancelled, true},
		{PurchasingStatusCompleted, PurchasingStatusDraft, false},
		{PurchasingStatusCompleted, PurchasingStatusCompleted, false},
		{PurchasingStatusCancelled, PurchasingStatusDraft, false},
		{PurchasingStatusCancelled, PurchasingStatusCompleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransitionTo(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v got %v", tc.from, tc.to, tc.ok, got)
		}
	}
	if !PurchasingStatusCancelled.IsTerminal() || PurchasingStatusCompleted.IsTerminal() {
		t.Fatal("only cancelled should be terminal")
	}
}

func TestParseStockHistoryType(t *testing.T) {
	for _, raw := range []string{"add", "adjust", "purchase", "cancel", "return", "sale"} {
		typ, err := ParseStockHistoryType(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if typ.String() != raw {
			t.Fatalf("expected %q got %q", raw, typ)
		}
	}
	if _, err := ParseStockHistoryType("transfer"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if !StockHistoryReturn.StoresMagnitude() || StockHistoryCancel.StoresMagnitude() {
		t.Fatal("only return entries store a magnitude")
	}
	if StockHistoryAdd.RequiresPurchasing() || !StockHistoryCancel.RequiresPurchasing() {
		t.Fatal("unexpected purchasing requirement")
	}
}

func TestParsePurchasingStatus(t *testing.T) {
	if _, err := ParsePurchasingStatus("void"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	st, err := ParsePurchasingStatus("draft")
	if err != nil || st != PurchasingStatusDraft {
		t.Fatalf("unexpected parse result %q %v", st, err)
	}
}

func TestOutboxEventAggregates(t *testing.T) {
	if EventStockChanged.Aggregate() != AggregateProduct || EventPurchasingReturned.Aggregate() != AggregatePurchasing {
		t.Fatal("unexpected aggregate mapping")
	}
	if OutboxEventType("supplier_created").Aggregate() != "" {
		t.Fatal("unknown event types have no aggregate")
	}
	if _, err := ParseOutboxEventType("stock_changed"); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := ParseOutboxDLQErrorReason("timeout"); err == nil {
		t.Fatal("expected error for unknown dlq reason")
	}
}
