package docstore

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindForCode(t *testing.T) {
	cases := []struct {
		code string
		want Kind
	}{
		{"not-found", KindNotFound},
		{"permission-denied", KindPermissionDenied},
		{"already-exists", KindAlreadyExists},
		{"failed-precondition", KindPreconditionFailed},
		{"out-of-range", KindOutOfRange},
		{"unauthenticated", KindUnauthenticated},
		{"invalid-argument", KindInvalidArgument},
		{"unavailable", KindUnavailable},
		{"something-else", KindUnknown},
		{"", KindUnknown},
	}
	for _, tc := range cases {
		if got := KindForCode(tc.code); got != tc.want {
			t.Errorf("KindForCode(%q): expected %v, got %v", tc.code, tc.want, got)
		}
	}
}

func TestKind_Retryable(t *testing.T) {
	nonRetryable := []Kind{
		KindNotFound, KindPermissionDenied, KindAlreadyExists,
		KindPreconditionFailed, KindOutOfRange, KindUnauthenticated,
		KindInvalidArgument,
	}
	for _, k := range nonRetryable {
		if k.Retryable() {
			t.Errorf("%v must not be retryable", k)
		}
	}

	retryable := []Kind{KindUnknown, KindUnavailable}
	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%v must be retryable", k)
		}
	}
}

func TestKindOf_WalksWrapChain(t *testing.T) {
	inner := Errorf("get", KindPermissionDenied, "nope")
	wrapped := fmt.Errorf("outer context: %w", inner)

	if got := KindOf(wrapped); got != KindPermissionDenied {
		t.Errorf("expected permission-denied, got %v", got)
	}
	if got := KindOf(errors.New("plain")); got != KindUnknown {
		t.Errorf("plain errors classify as unknown, got %v", got)
	}
	if got := KindOf(nil); got != KindUnknown {
		t.Errorf("nil classifies as unknown, got %v", got)
	}
}

func TestError_Message(t *testing.T) {
	err := NewError("update", KindNotFound, errors.New("document x missing"))
	want := "update: not-found: document x missing"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}
