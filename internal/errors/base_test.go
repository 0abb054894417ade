package errors

import (
	"errors"
	"testing"
)

var (
	errWrapped = errors.New("wrapped error")
	errKind    = errors.New("kind")
)

func TestWrap(t *testing.T) {
	err := Wrap(errWrapped, "Hello, Wrapped!")
	if err.Error() != "Hello, Wrapped!, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}

	if !errors.Is(err, errWrapped) {
		t.Fatalf("wrapped error should match its cause: %+v", err)
	}

	if Wrap(nil, "nothing") != nil {
		t.Fatal("wrapping nil should return nil")
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errWrapped, "quote %s", "AAPL")
	if err.Error() != "quote AAPL, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}
}

func TestMark(t *testing.T) {
	err := Mark(errKind, errWrapped)
	if err.Error() != "kind, err: wrapped error" {
		t.Fatalf("error mismatch: %+v", err)
	}

	if !errors.Is(err, errKind) || !errors.Is(err, errWrapped) {
		t.Fatalf("marked error should match kind and cause: %+v", err)
	}

	if again := Mark(errKind, err); again != err {
		t.Fatalf("marking twice should be a no-op: %+v", again)
	}

	if Mark(errKind, nil) != nil {
		t.Fatal("marking nil should return nil")
	}
}
