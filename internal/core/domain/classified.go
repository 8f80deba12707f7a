package domain

import "fmt"

// ErrorCategory is the fixed set of categories a classified build error can carry.
type ErrorCategory string

const (
	CategoryMissingFile      ErrorCategory = "missing_file"
	CategorySyntaxError      ErrorCategory = "syntax_error"
	CategoryDependencyError  ErrorCategory = "dependency_error"
	CategoryLanguageMismatch ErrorCategory = "language_mismatch"
	CategoryPermissionError  ErrorCategory = "permission_error"
)

// Categories lists every valid ErrorCategory.
func Categories() []ErrorCategory {
	return []ErrorCategory{
		CategoryMissingFile,
		CategorySyntaxError,
		CategoryDependencyError,
		CategoryLanguageMismatch,
		CategoryPermissionError,
	}
}

// Valid reports whether c is one of the fixed categories.
func (c ErrorCategory) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ClassifiedError is a structured record extracted from raw build output.
// Records are produced fresh each attempt; duplicates across detectors are
// expected and kept.
type ClassifiedError struct {
	Category    ErrorCategory `json:"category"`
	Message     string        `json:"message"`
	SourceFile  string        `json:"source_file,omitempty"`
	LineNumber  int           `json:"line_number,omitempty"` // 0 when unknown
	Suggestion  string        `json:"suggestion"`
	ProposedFix string        `json:"proposed_fix"`
	Detector    string        `json:"detector"`
}

func (e ClassifiedError) String() string {
	if e.SourceFile != "" {
		return fmt.Sprintf("[%s] %s (%s)", e.Category, e.Message, e.SourceFile)
	}
	return fmt.Sprintf("[%s] %s", e.Category, e.Message)
}
