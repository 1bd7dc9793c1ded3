package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// InvalidParameter indicates a malformed or out-of-range request value
	InvalidParameter ErrorCode = "INVALID_PARAMETER"
	// DocumentNotFound indicates the document is not loaded in the workspace
	DocumentNotFound ErrorCode = "DOCUMENT_NOT_FOUND"
	// SeedNotFound indicates the seed node is absent from the graph snapshot
	SeedNotFound ErrorCode = "SEED_NOT_FOUND"
	// GraphInconsistent indicates an edge whose endpoints are missing
	GraphInconsistent ErrorCode = "GRAPH_INCONSISTENT"
	// UnknownEdgeKind indicates an edge kind with no traversal direction
	UnknownEdgeKind ErrorCode = "UNKNOWN_EDGE_KIND"
	// ParseFailed indicates a document could not be parsed
	ParseFailed ErrorCode = "PARSE_FAILED"
	// ConfigInvalid indicates invalid configuration
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// Cancelled indicates the caller abandoned the request
	Cancelled ErrorCode = "CANCELLED"
	// StaleResult indicates the document changed while the request ran
	StaleResult ErrorCode = "STALE_RESULT"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// EditDocument suggests changing the model source
	EditDocument FixActionType = "edit-document"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
}

// PfError represents an error with code, message, and suggestions
type PfError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// NewPfError creates a new PfError
func NewPfError(code ErrorCode, message string, cause error, suggestedFixes []FixAction) *PfError {
	return &PfError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: suggestedFixes,
	}
}

// Error implements the error interface
func (e *PfError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PfError) Unwrap() error {
	return e.cause
}

// Is matches any PfError with the same code.
func (e *PfError) Is(target error) bool {
	t, ok := target.(*PfError)
	return ok && t.Code == e.Code
}

// WithDetails adds details to the error
func (e *PfError) WithDetails(details interface{}) *PfError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first PfError in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var pe *PfError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return InternalError
}

// NewInvalidParameterError reports a bad request value.
func NewInvalidParameterError(param string, reason string) *PfError {
	return NewPfError(InvalidParameter, fmt.Sprintf("invalid parameter %q: %s", param, reason), nil, nil).
		WithDetails(map[string]string{"parameter": param})
}

// NewDocumentNotFoundError reports a URI that is not loaded.
func NewDocumentNotFoundError(uri string) *PfError {
	return NewPfError(DocumentNotFound, fmt.Sprintf("document %s is not loaded", uri), nil, GetSuggestedFixes(DocumentNotFound))
}

// NewSeedNotFoundError reports a seed that is missing from the snapshot.
func NewSeedNotFoundError(seed string) *PfError {
	return NewPfError(SeedNotFound, fmt.Sprintf("seed %s is not in the graph", seed), nil, nil)
}

// NewGraphInconsistentError reports structural corruption of a snapshot.
func NewGraphInconsistentError(message string) *PfError {
	return NewPfError(GraphInconsistent, message, nil, nil)
}

// NewUnknownEdgeKindError reports an edge kind missing from the direction table.
func NewUnknownEdgeKindError(kind string) *PfError {
	return NewPfError(UnknownEdgeKind, fmt.Sprintf("edge kind %s has no impact direction", kind), nil, nil)
}

// NewParseError reports a document that failed to parse.
func NewParseError(uri string, cause error) *PfError {
	return NewPfError(ParseFailed, fmt.Sprintf("failed to parse %s", uri), cause, GetSuggestedFixes(ParseFailed))
}

// NewInternalError wraps an unexpected failure.
func NewInternalError(message string, cause error) *PfError {
	return NewPfError(InternalError, message, cause, nil)
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	DocumentNotFound: {
		{
			Type:        RunCommand,
			Command:     "pfls check ${document}",
			Safe:        true,
			Description: "Check that the document parses and is inside a workspace root",
		},
	},
	ParseFailed: {
		{
			Type:        EditDocument,
			Description: "Fix the syntax errors reported as diagnostics",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "pfls serve --log-level debug",
			Safe:        true,
			Description: "Inspect the effective configuration in the server log",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
