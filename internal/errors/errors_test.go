package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestMarginError_Error(t *testing.T) {
	err := &MarginError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "annotation not found",
	}

	expected := "NOT_FOUND: annotation not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewValidation(t *testing.T) {
	err := NewValidation("invalid annotation", map[string]string{"color": "oneof"})

	if err.Code != ErrValidation {
		t.Errorf("Code = %q, want %q", err.Code, ErrValidation)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
	fields, ok := err.Details["fields"].(map[string]string)
	if !ok {
		t.Fatalf("Details[fields] missing or wrong type: %v", err.Details)
	}
	if fields["color"] != "oneof" {
		t.Errorf("fields[color] = %q, want %q", fields["color"], "oneof")
	}
}

func TestNewValidation_NoFields(t *testing.T) {
	err := NewValidation("empty patch", nil)
	if err.Details != nil {
		t.Errorf("Details = %v, want nil", err.Details)
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("annotation is not deleted")

	if err.Code != ErrBadRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrBadRequest)
	}
	if err.Status != 400 {
		t.Errorf("Status = %d, want 400", err.Status)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("01ABC")

	if err.Code != ErrNotFound {
		t.Errorf("Code = %q, want %q", err.Code, ErrNotFound)
	}
	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Details["identifier"] != "01ABC" {
		t.Errorf("Details[identifier] = %v, want %q", err.Details["identifier"], "01ABC")
	}
}

func TestNewGone(t *testing.T) {
	err := NewGone("01ABC")

	if err.Code != ErrGone {
		t.Errorf("Code = %q, want %q", err.Code, ErrGone)
	}
	if err.Status != 410 {
		t.Errorf("Status = %d, want 410", err.Status)
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("already deleted")

	if err.Code != ErrConflict {
		t.Errorf("Code = %q, want %q", err.Code, ErrConflict)
	}
	if err.Status != 409 {
		t.Errorf("Status = %d, want 409", err.Status)
	}
}

func TestNewNetwork_Unwrap(t *testing.T) {
	cause := fmt.Errorf("dial tcp: connection refused")
	err := NewNetwork(cause)

	if err.Status != 503 {
		t.Errorf("Status = %d, want 503", err.Status)
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestNewInternal_NilCause(t *testing.T) {
	err := NewInternal(nil)
	if err.Message != "internal error" {
		t.Errorf("Message = %q, want %q", err.Message, "internal error")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
		want bool
	}{
		{"matching code", NewGone("x"), ErrGone, true},
		{"different code", NewGone("x"), ErrConflict, false},
		{"wrapped", fmt.Errorf("update: %w", NewConflict("c")), ErrConflict, true},
		{"plain error", fmt.Errorf("boom"), ErrInternal, false},
		{"nil", nil, ErrInternal, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.want {
				t.Errorf("Is() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAs_ConvertsUnknown(t *testing.T) {
	mErr := As(fmt.Errorf("disk full"))
	if mErr.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", mErr.Code, ErrInternal)
	}

	gone := NewGone("x")
	if As(gone) != gone {
		t.Error("As() should return the same MarginError")
	}
}
