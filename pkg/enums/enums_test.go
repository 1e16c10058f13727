package enums

import "testing"

func TestParseDocumentKind(t *testing.T) {
	for _, kind := range validDocumentKinds {
		got, err := ParseDocumentKind(string(kind))
		if err != nil || got != kind {
			t.Fatalf("expected %s to parse, got %q err=%v", kind, got, err)
		}
	}
	if _, err := ParseDocumentKind("RECEIPT"); err == nil {
		t.Fatal("expected case-sensitive parse to fail")
	}
}

func TestMovementAndReferenceTypes(t *testing.T) {
	if !MovementAdjustment.IsValid() || MovementType("LOAN").IsValid() {
		t.Fatal("unexpected movement type validity")
	}
	if _, err := ParseReferenceType("SALES"); err != nil {
		t.Fatalf("expected SALES to parse: %v", err)
	}
	if _, err := ParseReferenceType("GL"); err == nil {
		t.Fatal("expected unknown reference type to fail")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if !EventStockLevelChanged.IsValid() {
		t.Fatal("stock_level_changed must be valid")
	}
	if _, err := ParseOutboxEventType("order_paid"); err == nil {
		t.Fatal("expected unknown event type to fail")
	}
}
