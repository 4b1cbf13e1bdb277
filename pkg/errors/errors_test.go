package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
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
		{code: CodeStorage, status: http.StatusServiceUnavailable, publicMsg: "order could not be saved, please retry", retryable: true},
		{code: CodePartialOrder, status: http.StatusBadGateway, publicMsg: "order saved without its items, resume to finish", retryable: true, detailsOK: true},
		{code: CodeFeed, status: http.StatusServiceUnavailable, publicMsg: "live notifications unavailable"},
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

func TestIsCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodePartialOrder, "lines failed"))
	if !IsCode(err, CodePartialOrder) {
		t.Fatal("expected partial order code through wrapping")
	}
	if IsCode(err, CodeStorage) {
		t.Fatal("unexpected storage code")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatal("untyped errors carry no code")
	}
}

func TestDumpCollectsChain(t *testing.T) {
	err := fmt.Errorf("submit: %w", Wrap(CodeStorage, stdErrors.New("conn refused"), "create order"))
	dump := Dump(err)
	if dump.Code != CodeStorage {
		t.Fatalf("expected storage code in dump, got %s", dump.Code)
	}
	if len(dump.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %d: %v", len(dump.Chain), dump.Chain)
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503", ConstraintName: "order_items_order_id_fkey", TableName: "order_items"})
	dump := Dump(err)
	if dump.PGCode != "23503" || dump.PGConstraint != "order_items_order_id_fkey" || dump.PGTable != "order_items" {
		t.Fatalf("unexpected pg fields: %+v", dump)
	}
}

func TestClassifyStorage(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Code
	}{
		{"pgx unique", &pgconn.PgError{Code: "23505"}, CodeConflict},
		{"pgx foreign key", fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "23503"}), CodeNotFound},
		{"pq check", &pq.Error{Code: "23514"}, CodeValidation},
		{"pq not null", &pq.Error{Code: "23502"}, CodeValidation},
		{"other sqlstate", &pgconn.PgError{Code: "40001"}, CodeDependency},
		{"plain", stdErrors.New("connection refused"), CodeDependency},
	}
	for _, tc := range cases {
		if got := ClassifyStorage(tc.err, CodeDependency); got != tc.want {
			t.Fatalf("%s: got %s want %s", tc.name, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if Retryable(nil) {
		t.Fatalf("nil error is not retryable")
	}
	if !Retryable(stdErrors.New("network blip")) {
		t.Fatalf("untyped errors should be retryable")
	}
	if Retryable(New(CodeValidation, "bad input")) {
		t.Fatalf("validation errors are final")
	}
	if !Retryable(fmt.Errorf("outer: %w", Wrap(CodePartialOrder, stdErrors.New("timeout"), "lines"))) {
		t.Fatalf("partial orders can be resumed")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeStorage, stdErrors.New("connection refused"), "create order header")
	if got, want := err.Error(), "STORAGE_ERROR: create order header: connection refused"; got != want {
		t.Fatalf("expected %q got %q", want, got)
	}
}
