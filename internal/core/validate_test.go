package core

import "testing"

func TestValidateFileUUIDRequest_Valid(t *testing.T) {
	req := &FileUUIDRequest{FileUUID: "550e8400-e29b-41d4-a716-446655440000"}
	if err := ValidateFileUUIDRequest(req); err != nil {
		t.Errorf("ValidateFileUUIDRequest() unexpected error: %v", err)
	}
}

func TestValidateFileUUIDRequest_Missing(t *testing.T) {
	err := ValidateFileUUIDRequest(&FileUUIDRequest{})
	if err == nil {
		t.Fatal("ValidateFileUUIDRequest() expected error for missing fileUUID")
	}
	if err.Code != ErrCodeParamsCheckFailed {
		t.Errorf("error code = %v, want %v", err.Code, ErrCodeParamsCheckFailed)
	}
}

func TestValidateFileUUIDRequest_InvalidFormat(t *testing.T) {
	tests := []string{
		"not-a-uuid",
		"01908a9c-e4a5-7c8b-8d3e-0a1b2c3d4e5f",
		"550e8400e29b41d4a716446655440000",
	}
	for _, id := range tests {
		if err := ValidateFileUUIDRequest(&FileUUIDRequest{FileUUID: id}); err == nil {
			t.Errorf("ValidateFileUUIDRequest(%q) expected error", id)
		}
	}
}

func TestValidateAuthUUIDRequest(t *testing.T) {
	if err := ValidateAuthUUIDRequest(&AuthUUIDRequest{AuthUUID: NewUUIDv4()}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := ValidateAuthUUIDRequest(&AuthUUIDRequest{AuthUUID: "abc"})
	if err == nil {
		t.Fatal("expected error for invalid authUUID")
	}
	if err.Code != ErrCodeParamsCheckFailed {
		t.Errorf("error code = %v, want %v", err.Code, ErrCodeParamsCheckFailed)
	}
}
