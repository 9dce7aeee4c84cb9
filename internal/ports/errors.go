package ports

import (
	"errors"
	"fmt"
)

// Failure classes reported by adapters. Provider-specific errors are mapped
// onto these so the judge runner can decide whether a retry is worthwhile.
var (
	ErrRateLimited          = errors.New("rate limited")
	ErrServiceUnavailable   = errors.New("service unavailable")
	ErrTimeout              = errors.New("operation timed out")
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidResponse marks a reply that could not be decoded or failed
	// schema validation. It is never transient.
	ErrInvalidResponse = errors.New("invalid response")

	// ErrConfigNotFound is returned when a config file does not exist.
	ErrConfigNotFound = errors.New("configuration not found")
)

// LLMError wraps a failed model call made on behalf of the oracle or a fixer.
type LLMError struct {
	Model string

	// Operation is "score_document" or "propose_fixes".
	Operation string

	Err error
}

func (e *LLMError) Error() string {
	return fmt.Sprintf("llm %s %s: %v", e.Model, e.Operation, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

// IsRetryable reports whether the underlying failure is transient.
func (e *LLMError) IsRetryable() bool {
	return errors.Is(e.Err, ErrRateLimited) ||
		errors.Is(e.Err, ErrServiceUnavailable) ||
		errors.Is(e.Err, ErrTimeout)
}

// NewLLMError returns an LLMError for model and operation.
func NewLLMError(model, operation string, err error) *LLMError {
	return &LLMError{Model: model, Operation: operation, Err: err}
}

// CacheError reports a rejected cache operation.
type CacheError struct {
	Key       string
	Operation string
	Err       error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s %q: %v", e.Operation, e.Key, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// NewCacheError returns a CacheError.
func NewCacheError(key, operation string, err error) *CacheError {
	return &CacheError{Key: key, Operation: operation, Err: err}
}

// ConfigError reports a config failure. Key is the file path when reading
// failed, otherwise the stage that rejected it ("yaml", "struct", "semantics").
type ConfigError struct {
	Key string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// NewConfigError returns a ConfigError.
func NewConfigError(key string, err error) *ConfigError {
	return &ConfigError{Key: key, Err: err}
}
