package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
		{code: CodeInsufficientStock, status: http.StatusUnprocessableEntity, publicMsg: "insufficient stock", detailsOK: true},
		{code: CodeConcurrencyConflict, status: http.StatusConflict, publicMsg: "resource is busy, retry later", retryable: true},
		{code: CodePublish, status: http.StatusServiceUnavailable, publicMsg: "notification delivery failed", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil error must not be retryable")
	}
	if IsRetryable(New(CodeInsufficientStock, "short")) {
		t.Fatal("insufficient stock must not be retryable")
	}
	if !IsRetryable(Wrap(CodeConcurrencyConflict, stdErrors.New("lock timeout"), "busy")) {
		t.Fatal("concurrency conflict must be retryable")
	}
	if !IsRetryable(stdErrors.New("connection reset")) {
		t.Fatal("untyped errors are treated as retryable")
	}
}

func TestIsCodeFollowsWrapChain(t *testing.T) {
	inner := New(CodeInsufficientStock, "short")
	outer := fmt.Errorf("commit document: %w", inner)
	if !IsCode(outer, CodeInsufficientStock) {
		t.Fatal("expected IsCode to find wrapped typed error")
	}
	if IsCode(outer, CodeValidation) {
		t.Fatal("unexpected code match")
	}
}

func TestToPublicHidesInternalDetail(t *testing.T) {
	pub := ToPublic(Wrap(CodeDependency, stdErrors.New("dial tcp 10.0.0.4:5432"), "load balance").
		WithDetails(map[string]any{"dependency": "postgres"}))
	if pub.Status != http.StatusServiceUnavailable || pub.Message != "dependency unavailable" {
		t.Fatalf("unexpected public dependency error %+v", pub)
	}
	if pub.Details == nil {
		t.Fatal("dependency details should be exposed")
	}

	pub = ToPublic(stdErrors.New("nil pointer"))
	if pub.Code != CodeInternal || pub.Message != "internal server error" || pub.Details != nil {
		t.Fatalf("untyped errors must collapse to internal, got %+v", pub)
	}

	pub = ToPublic(New(CodeInsufficientStock, "only 70 available"))
	if pub.Message != "only 70 available" {
		t.Fatalf("insufficient stock message should pass through, got %q", pub.Message)
	}
}

func TestLogFieldsCarriesPostgresDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_documents_number", TableName: "documents"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "document number taken").
		WithDetails(map[string]any{"document_id": "d-1", "ignored": true})

	fields := LogFields(err)
	if fields["error_code"] != string(CodeConflict) {
		t.Fatalf("missing error code: %v", fields)
	}
	if fields["pg_code"] != "23505" || fields["pg_constraint"] != "ux_documents_number" {
		t.Fatalf("missing postgres diagnostics: %v", fields)
	}
	if _, ok := fields["pg_column"]; ok {
		t.Fatalf("empty postgres fields should be dropped: %v", fields)
	}
	if fields["document_id"] != "d-1" {
		t.Fatalf("expected document_id from details: %v", fields)
	}
	if _, ok := fields["ignored"]; ok {
		t.Fatalf("only known detail keys are lifted: %v", fields)
	}
	if LogFields(nil) != nil {
		t.Fatal("nil error has no fields")
	}
}
