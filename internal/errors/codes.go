// Package errors provides structured error handling for the indexing service.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index directory, sqlite side tables)
//   - 3XX: Pipeline item errors (resolution, preprocessing, index writes)
//   - 4XX: Validation errors
//   - 5XX: Internal and lifecycle errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index or database storage errors.
	CategoryStorage Category = "STORAGE"
	// CategoryPipeline indicates a failure while moving an item through the pipeline.
	CategoryPipeline Category = "PIPELINE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeIndexOpen     = "ERR_201_INDEX_OPEN"
	ErrCodeCorruptIndex  = "ERR_202_CORRUPT_INDEX"
	ErrCodeIndexClosed   = "ERR_203_INDEX_CLOSED"
	ErrCodeDatabase      = "ERR_204_DATABASE"
	ErrCodeDaemonRunning = "ERR_205_DAEMON_RUNNING"

	// Pipeline errors (300-399)
	ErrCodeResolveFailed    = "ERR_301_RESOLVE_FAILED"
	ErrCodeResourceMissing  = "ERR_302_RESOURCE_MISSING"
	ErrCodePreprocessFailed = "ERR_303_PREPROCESS_FAILED"
	ErrCodePreprocessSkip   = "ERR_304_PREPROCESS_SKIPPED"
	ErrCodeIndexFailed      = "ERR_305_INDEX_FAILED"
	ErrCodeCommitFailed     = "ERR_306_COMMIT_FAILED"
	ErrCodeRunnableFailed   = "ERR_307_RUNNABLE_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidIdentifier = "ERR_402_INVALID_IDENTIFIER"
	ErrCodeDefaultTaskReady  = "ERR_403_DEFAULT_TASK_READY"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeShuttingDown = "ERR_502_SHUTTING_DOWN"
	ErrCodeShutdownSlow = "ERR_503_SHUTDOWN_TIMEOUT"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryPipeline
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeDaemonRunning:
		return SeverityFatal
	case ErrCodeResourceMissing, ErrCodePreprocessSkip:
		// Expected churn: files vanish between crawl and index.
		return SeverityInfo
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeCommitFailed, ErrCodeDatabase:
		return true
	default:
		return false
	}
}
