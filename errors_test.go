package groove

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	e := &Error{Kind: FileSystem, Op: "Open", Err: errors.New("no such file")}
	want := "groove: Open: file system error: no such file"
	if got := e.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	e2 := &Error{Kind: NoChanges, Op: "Save"}
	want2 := "groove: Save: no changes"
	if got := e2.Error(); got != want2 {
		t.Errorf("Error() = %q, want %q", got, want2)
	}
}

func TestIsKind(t *testing.T) {
	base := &Error{Kind: UnknownFormat, Op: "Open"}
	wrapped := fmt.Errorf("context: %w", base)

	if !IsKind(wrapped, UnknownFormat) {
		t.Fatal("IsKind(wrapped, UnknownFormat) = false, want true")
	}
	if IsKind(wrapped, Encoding) {
		t.Fatal("IsKind(wrapped, Encoding) = true, want false")
	}
	if IsKind(errors.New("plain"), UnknownFormat) {
		t.Fatal("IsKind on a non-*Error chain = true, want false")
	}
}
