// Package errors provides the structured error type used across the build
// pipeline for category-based classification, retry semantics and HTTP mapping.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Category classifies a BuildError.
type Category string

const (
	// Build tool and environment
	CategoryDependency  Category = "dependency_error"
	CategorySpawn       Category = "build_spawn"
	CategoryBuildFailed Category = "build_failed"

	// Classified build output
	CategoryMissingFile        Category = "missing_file"
	CategorySyntax             Category = "syntax_error"
	CategoryDependencyManifest Category = "dependency_manifest_error"
	CategoryLanguageMismatch   Category = "language_mismatch"
	CategoryPermission         Category = "permission_error"

	// Collaborators
	CategoryGeneration Category = "generation_failure"
	CategoryStaging    Category = "staging_failure"
	CategoryIntake     Category = "intake_failure"

	// Runtime
	CategoryCancelled  Category = "cancelled"
	CategoryConfig     Category = "config"
	CategoryValidation Category = "validation"
	CategoryInternal   Category = "internal"
)

// Severity indicates how critical an error is.
type Severity string

const (
	SeverityFatal   Severity = "fatal"   // Terminates the session
	SeverityError   Severity = "error"   // Error, but not fatal
	SeverityWarning Severity = "warning" // Continues with degraded functionality
)

// ContextFields carries structured context for BuildError.
type ContextFields map[string]any

// BuildError is a structured error with category, retryability, and context.
type BuildError struct {
	Category  Category      `json:"category"`
	Severity  Severity      `json:"severity"`
	Message   string        `json:"message"`
	Cause     error         `json:"-"`
	Retryable bool          `json:"retryable"`
	Context   ContextFields `json:"context,omitempty"`
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Category, e.Severity, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Category, e.Severity, e.Message)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// WithContext adds context information to the error.
func (e *BuildError) WithContext(key string, value any) *BuildError {
	if e.Context == nil {
		e.Context = make(ContextFields)
	}
	e.Context[key] = value
	return e
}

// New creates a new BuildError.
func New(category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
	}
}

// Wrap creates a new BuildError that wraps an existing error.
func Wrap(err error, category Category, severity Severity, message string) *BuildError {
	return &BuildError{
		Category: category,
		Severity: severity,
		Message:  message,
		Cause:    err,
	}
}

// WrapRetryable creates a retryable BuildError that wraps an existing error.
func WrapRetryable(err error, category Category, severity Severity, message string) *BuildError {
	e := Wrap(err, category, severity, message)
	e.Retryable = true
	return e
}

// As returns the first BuildError in err's chain.
func As(err error) (*BuildError, bool) {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// IsCategory checks if an error belongs to a specific category.
func IsCategory(err error, category Category) bool {
	if be, ok := As(err); ok {
		return be.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if be, ok := As(err); ok {
		return be.Retryable
	}
	return false
}

// GetCategory extracts the category from an error, or returns CategoryInternal
// if the chain holds no BuildError.
func GetCategory(err error) Category {
	if be, ok := As(err); ok {
		return be.Category
	}
	return CategoryInternal
}
