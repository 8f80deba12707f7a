package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestBuildError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *BuildError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CategoryConfig, SeverityFatal, "configuration invalid"),
			expected: "config (fatal): configuration invalid",
		},
		{
			name:     "error with cause",
			err:      Wrap(fmt.Errorf("disk full"), CategoryStaging, SeverityFatal, "write failed"),
			expected: "staging_failure (fatal): write failed: disk full",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.err.Error(); got != test.expected {
				t.Errorf("Error() = %q, want %q", got, test.expected)
			}
		})
	}
}

func TestBuildError_WithContext(t *testing.T) {
	err := PathEscape("../etc/passwd")

	if err.Context["path"] != "../etc/passwd" {
		t.Errorf("Context[path] = %v, want ../etc/passwd", err.Context["path"])
	}
	if err.Category != CategoryStaging {
		t.Errorf("Category = %s, want %s", err.Category, CategoryStaging)
	}
}

func TestCategoryHelpersFollowWrapChain(t *testing.T) {
	base := ToolUnavailable("daemon", stdErrors.New("connection refused"))
	wrapped := fmt.Errorf("probe: %w", base)

	if !IsCategory(wrapped, CategoryDependency) {
		t.Error("IsCategory should see through fmt.Errorf wrapping")
	}
	if GetCategory(wrapped) != CategoryDependency {
		t.Errorf("GetCategory() = %s, want %s", GetCategory(wrapped), CategoryDependency)
	}
	if GetCategory(stdErrors.New("plain")) != CategoryInternal {
		t.Error("plain errors should map to CategoryInternal")
	}
	if IsCategory(nil, CategoryDependency) {
		t.Error("nil error should not match any category")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(CloneFailed("https://example.com/r.git", stdErrors.New("timeout"))) {
		t.Error("clone failures should be retryable")
	}
	if IsRetryable(SpawnFailed("docker", stdErrors.New("not found"))) {
		t.Error("spawn failures should not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := stdErrors.New("root cause")
	err := GenerationFailed("timeout", cause)
	if !stdErrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}
