package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{
			name:     "nil error returns empty",
			err:      nil,
			wantCode: "",
		},
		{
			name:     "permission denied",
			err:      ErrPermissionDenied,
			wantCode: "AUTH001",
		},
		{
			name:     "wrapped already running",
			err:      fmt.Errorf("station: %w", ErrAlreadyRunning),
			wantCode: "ING004",
		},
		{
			name:     "bulk running",
			err:      ErrBulkRunning,
			wantCode: "ING005",
		},
		{
			name:     "limiter full",
			err:      ErrTooManyJobs,
			wantCode: "ING006",
		},
		{
			name:     "fetch error",
			err:      &FetchError{Kind: KindStation, URL: "http://x/stations.jsonl", StatusCode: 500},
			wantCode: "ING001",
		},
		{
			name:     "fetch error wins over timeout text",
			err:      &FetchError{Kind: KindBody, Err: errors.New("i/o timeout")},
			wantCode: "ING001",
		},
		{
			name:     "parse error inside bulk stage",
			err:      fmt.Errorf("bulk stage faction: %w", &ParseError{Index: 3, Err: errors.New("bad")}),
			wantCode: "ING002",
		},
		{
			name:     "persistence error",
			err:      &PersistenceError{Kind: KindSystem, Index: 0, Err: errors.New("connection refused")},
			wantCode: "ING003",
		},
		{
			name:     "untyped connection refused falls back to pattern",
			err:      errors.New("dial tcp: connection refused"),
			wantCode: "DB004",
		},
		{
			name:     "case insensitive pattern",
			err:      errors.New("DEADLOCK detected"),
			wantCode: "DB007",
		},
		{
			name:     "unknown error returns default",
			err:      errors.New("some random internal error"),
			wantCode: "ERR000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrPermissionDenied)

	expected := "Permission Denied (Code: AUTH001). Ask an administrator to run the download"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil error should not be user facing")
	}
	if !IsUserFacing(ErrAlreadyRunning) {
		t.Error("sentinel error should be user facing")
	}
	if IsUserFacing(errors.New("random internal error xyz")) {
		t.Error("unknown error should not be user facing")
	}
}

func TestNewUserError(t *testing.T) {
	if got := NewUserError(nil); got != nil {
		t.Errorf("NewUserError(nil) = %v, want nil", got)
	}

	techErr := &FetchError{Kind: KindBody, URL: "u", StatusCode: 404}
	userErr := NewUserError(techErr)

	if userErr.Error() != "The remote dump could not be retrieved" {
		t.Errorf("Error() = %q, want user message", userErr.Error())
	}
	var fe *FetchError
	if !errors.As(userErr, &fe) || fe.StatusCode != 404 {
		t.Error("Unwrap() should expose the original error")
	}
}
