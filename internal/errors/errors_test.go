package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestWrapPreservesCauseAndCode(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeStorageFailure, cause, "open history database", WithMetadata("driver", "mysql"))

	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause in chain")
	}
	wrapped := fmt.Errorf("startup: %w", err)
	if !Is(wrapped, CodeStorageFailure) || CodeOf(wrapped) != CodeStorageFailure {
		t.Fatalf("expected storage failure code, got %s", CodeOf(wrapped))
	}
	if !stdErrors.Is(wrapped, New(CodeStorageFailure, "")) {
		t.Fatal("errors.Is should match on code")
	}
	if PublicMessage(wrapped) != "open history database" {
		t.Fatalf("unexpected public message %q", PublicMessage(wrapped))
	}
	if err.Error() != "[STORAGE_FAILURE] open history database: dial tcp: refused" {
		t.Fatalf("unexpected error string %q", err.Error())
	}
	md := err.Metadata()
	md["driver"] = "changed"
	if err.Metadata()["driver"] != "mysql" {
		t.Fatal("metadata must be copied")
	}
}

func TestDefaultsFromRegistry(t *testing.T) {
	if got := New(CodeNoWallet, "").Public(); got != "user has no privy wallet" {
		t.Fatalf("unexpected default message %q", got)
	}
	if AttributesOf(Code("NOPE")).Severity != SeverityCritical {
		t.Fatal("unregistered codes fall back to UNKNOWN")
	}
}

func TestClassification(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		alert    bool
		severity Severity
	}{
		{New(CodeValidation, "missing header"), http.StatusBadRequest, false, SeverityInfo},
		{New(CodeNoWallet, ""), http.StatusBadRequest, false, SeverityInfo},
		{New(CodeSigningFailure, ""), http.StatusBadGateway, true, SeverityWarning},
		{New(CodeTimeout, ""), http.StatusGatewayTimeout, true, SeverityWarning},
		{stdErrors.New("plain"), http.StatusInternalServerError, false, SeverityCritical},
	}
	for _, tc := range cases {
		if got := HTTPStatusOf(tc.err); got != tc.status {
			t.Errorf("%v: status %d, want %d", tc.err, got, tc.status)
		}
		if got := ShouldAlert(tc.err); got != tc.alert {
			t.Errorf("%v: alert %v, want %v", tc.err, got, tc.alert)
		}
		if got := SeverityOf(tc.err); got != tc.severity {
			t.Errorf("%v: severity %s, want %s", tc.err, got, tc.severity)
		}
	}
}

func TestNilSafety(t *testing.T) {
	var e *Error
	if e.Error() != "" || e.Public() != "" || e.Code() != CodeUnknown || e.Unwrap() != nil {
		t.Fatal("nil error methods should return zero values")
	}
	if PublicMessage(nil) != "" || CodeOf(nil) != CodeUnknown {
		t.Fatal("nil error helpers should return zero values")
	}
}
