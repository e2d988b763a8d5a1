package warehouse

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ncrc/justdata/pkg/core/engerr"
)

type fakeNetErr struct{}

func (fakeNetErr) Error() string   { return "connection reset" }
func (fakeNetErr) Timeout() bool   { return false }
func (fakeNetErr) Temporary() bool { return true }

func TestClassifyErrorSyntaxIsFatalQueryError(t *testing.T) {
	err := classifyError("warehouse-execute", &pgconn.PgError{Code: "42601"})
	var fatal *engerr.WarehouseFatal
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *engerr.WarehouseFatal, got %v", err)
	}
	if fatal.Reason != "query-error" {
		t.Errorf("reason = %q, want query-error", fatal.Reason)
	}
}

func TestClassifyErrorAuthFailureIsFatalPermission(t *testing.T) {
	for _, code := range []string{"28000", "28P01", "53300", "42501"} {
		err := classifyError("warehouse-execute", &pgconn.PgError{Code: code})
		var fatal *engerr.WarehouseFatal
		if !errors.As(err, &fatal) {
			t.Fatalf("code %s: expected *engerr.WarehouseFatal, got %v", code, err)
		}
		if fatal.Reason != "permission-or-quota" {
			t.Errorf("code %s: reason = %q, want permission-or-quota", code, fatal.Reason)
		}
	}
}

func TestClassifyErrorNetErrorIsTransient(t *testing.T) {
	err := classifyError("warehouse-execute", fakeNetErr{})
	var transient *engerr.WarehouseTransient
	if !errors.As(err, &transient) {
		t.Fatalf("expected *engerr.WarehouseTransient, got %v", err)
	}
}

func TestClassifyErrorDeadlineExceededIsFatalTimeout(t *testing.T) {
	err := classifyError("warehouse-execute", context.DeadlineExceeded)
	var fatal *engerr.WarehouseFatal
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *engerr.WarehouseFatal, got %v", err)
	}
	if fatal.Reason != "timeout" {
		t.Errorf("reason = %q, want timeout", fatal.Reason)
	}
}

func TestClassifyErrorContextCanceledIsCancelled(t *testing.T) {
	err := classifyError("warehouse-execute", context.Canceled)
	var cancelled *engerr.Cancelled
	if !errors.As(err, &cancelled) {
		t.Fatalf("expected *engerr.Cancelled, got %v", err)
	}
}

func TestClassifyErrorNoRowsIsFatalQueryError(t *testing.T) {
	err := classifyError("warehouse-execute", pgx.ErrNoRows)
	var fatal *engerr.WarehouseFatal
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *engerr.WarehouseFatal, got %v", err)
	}
}

func TestClassifyErrorUnknownFallsBackToTransient(t *testing.T) {
	err := classifyError("warehouse-execute", errors.New("unexpected"))
	var transient *engerr.WarehouseTransient
	if !errors.As(err, &transient) {
		t.Fatalf("expected *engerr.WarehouseTransient, got %v", err)
	}
}

var _ net.Error = fakeNetErr{}
