package cellcore

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := newErr(ErrNotFound, "cell %d missing", 7)
	wrapped := fmt.Errorf("lookup failed: %w", err)

	if !errors.Is(wrapped, &Error{Kind: ErrNotFound}) {
		t.Fatal("expected errors.Is to match on Kind through wrapping")
	}
	if errors.Is(wrapped, &Error{Kind: ErrExists}) {
		t.Fatal("expected errors.Is to reject a different Kind")
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != ErrNone {
		t.Fatalf("KindOf(nil) = %v, want ErrNone", KindOf(nil))
	}
	if KindOf(errors.New("plain")) != ErrNone {
		t.Fatal("KindOf of a non-*Error should be ErrNone")
	}
	if KindOf(newErr(ErrBusy, "x")) != ErrBusy {
		t.Fatal("KindOf should extract the Kind of a *Error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: ErrTooBig}
	if err.Error() != "too_big" {
		t.Fatalf("Error() = %q, want %q", err.Error(), "too_big")
	}
	err2 := newErr(ErrTooBig, "config is %d bytes", 9000)
	if err2.Error() != "too_big: config is 9000 bytes" {
		t.Fatalf("Error() = %q", err2.Error())
	}
}
