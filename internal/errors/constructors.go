package errors

// Convenience functions for common error patterns

// Build environment

func ToolUnavailable(probe string, cause error) *BuildError {
	return Wrap(cause, CategoryDependency, SeverityFatal, "container build tool unavailable").
		WithContext("probe", probe)
}

func SpawnFailed(binary string, cause error) *BuildError {
	return Wrap(cause, CategorySpawn, SeverityFatal, "failed to start build process").
		WithContext("binary", binary)
}

// Staging

func StagingFailed(operation string, cause error) *BuildError {
	return Wrap(cause, CategoryStaging, SeverityFatal, "staging operation failed").
		WithContext("operation", operation)
}

func PathEscape(path string) *BuildError {
	return New(CategoryStaging, SeverityFatal, "path escapes staging root").
		WithContext("path", path)
}

// Generation

func GenerationFailed(reason string, cause error) *BuildError {
	return Wrap(cause, CategoryGeneration, SeverityError, "definition generation failed").
		WithContext("reason", reason)
}

// Intake

func IntakeFailed(source string, cause error) *BuildError {
	return Wrap(cause, CategoryIntake, SeverityError, "project intake failed").
		WithContext("source", source)
}

func CloneFailed(repo string, cause error) *BuildError {
	return WrapRetryable(cause, CategoryIntake, SeverityError, "repository clone failed").
		WithContext("repository", repo)
}

// Runtime

func Cancelled(cause error) *BuildError {
	return Wrap(cause, CategoryCancelled, SeverityFatal, "build session cancelled")
}

func ConfigInvalid(field, reason string) *BuildError {
	return New(CategoryConfig, SeverityFatal, "invalid configuration").
		WithContext("field", field).
		WithContext("reason", reason)
}

func ValidationFailed(field, reason string) *BuildError {
	return New(CategoryValidation, SeverityWarning, "validation failed").
		WithContext("field", field).
		WithContext("reason", reason)
}

func InternalError(message string, cause error) *BuildError {
	return Wrap(cause, CategoryInternal, SeverityFatal, message)
}
