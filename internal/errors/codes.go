package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents internal error codes for catalog and evaluator operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// User errors: rejected DDL or queries
	ErrCodeInvalidArgument    ErrorCode = 1000
	ErrCodeUndefinedType      ErrorCode = 1001
	ErrCodeUnexpectedDataKind ErrorCode = 1002
	ErrCodeDuplicateNames     ErrorCode = 1003
	ErrCodeNameConflict       ErrorCode = 1004
	ErrCodeIncompatibleEdge   ErrorCode = 1005
	ErrCodeInvalidDefinition  ErrorCode = 1006
	ErrCodeInvalidName        ErrorCode = 1007
	ErrCodeNotImplemented     ErrorCode = 1008
	ErrCodeTableIDExhausted   ErrorCode = 1009
	ErrCodeDependentsExist    ErrorCode = 1010

	// Engine errors
	ErrCodeLogic         ErrorCode = 2000
	ErrCodeCorruptedData ErrorCode = 2001
	ErrCodeStackOverflow ErrorCode = 2002
	ErrCodeStorage       ErrorCode = 2003
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                 "ok",
	ErrCodeInvalidArgument:    "invalid_argument",
	ErrCodeUndefinedType:      "undefined_type",
	ErrCodeUnexpectedDataKind: "unexpected_data_kind",
	ErrCodeDuplicateNames:     "duplicate_names",
	ErrCodeNameConflict:       "name_conflict",
	ErrCodeIncompatibleEdge:   "incompatible_edge",
	ErrCodeInvalidDefinition:  "invalid_definition",
	ErrCodeInvalidName:        "invalid_name",
	ErrCodeNotImplemented:     "not_implemented",
	ErrCodeTableIDExhausted:   "table_id_exhausted",
	ErrCodeDependentsExist:    "dependents_exist",
	ErrCodeLogic:              "logic_error",
	ErrCodeCorruptedData:      "corrupted_data",
	ErrCodeStackOverflow:      "stack_overflow",
	ErrCodeStorage:            "storage_error",
}

// String returns the snake_case name of the code
func (c ErrorCode) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// CatalogError represents a structured error with code and context
type CatalogError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *CatalogError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a CatalogError carrying the same code.
func (e *CatalogError) Is(target error) bool {
	t, ok := target.(*CatalogError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewCatalogError creates a new CatalogError
func NewCatalogError(code ErrorCode, message string, cause error) *CatalogError {
	return &CatalogError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *CatalogError) WithDetail(key string, value interface{}) *CatalogError {
	e.Details[key] = value
	return e
}

// Sentinels usable with errors.Is. Only the code is compared.
var (
	ErrInvalidArgument    = &CatalogError{Code: ErrCodeInvalidArgument, Message: "invalid argument"}
	ErrUndefinedType      = &CatalogError{Code: ErrCodeUndefinedType, Message: "undefined type"}
	ErrUnexpectedDataKind = &CatalogError{Code: ErrCodeUnexpectedDataKind, Message: "unexpected data kind"}
	ErrDuplicateNames     = &CatalogError{Code: ErrCodeDuplicateNames, Message: "duplicate names"}
	ErrNameConflict       = &CatalogError{Code: ErrCodeNameConflict, Message: "name conflict"}
	ErrIncompatibleEdge   = &CatalogError{Code: ErrCodeIncompatibleEdge, Message: "incompatible edge"}
	ErrInvalidDefinition  = &CatalogError{Code: ErrCodeInvalidDefinition, Message: "invalid definition"}
	ErrInvalidName        = &CatalogError{Code: ErrCodeInvalidName, Message: "invalid name"}
	ErrNotImplemented     = &CatalogError{Code: ErrCodeNotImplemented, Message: "not implemented"}
	ErrTableIDExhausted   = &CatalogError{Code: ErrCodeTableIDExhausted, Message: "table ids exhausted"}
	ErrDependentsExist    = &CatalogError{Code: ErrCodeDependentsExist, Message: "dependents exist"}
	ErrLogic              = &CatalogError{Code: ErrCodeLogic, Message: "logic error"}
	ErrCorruptedData      = &CatalogError{Code: ErrCodeCorruptedData, Message: "corrupted data"}
	ErrStackOverflow      = &CatalogError{Code: ErrCodeStackOverflow, Message: "stack overflow"}
	ErrStorage            = &CatalogError{Code: ErrCodeStorage, Message: "storage error"}
)

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *CatalogError {
	return NewCatalogError(ErrCodeInvalidArgument, message, cause)
}

func UndefinedType(name string) *CatalogError {
	return NewCatalogError(ErrCodeUndefinedType, fmt.Sprintf("undefined type: %s", name), nil).
		WithDetail("name", name)
}

func UnexpectedDataKind(kind string) *CatalogError {
	return NewCatalogError(ErrCodeUnexpectedDataKind, fmt.Sprintf("unexpected data kind: %s", kind), nil).
		WithDetail("kind", kind)
}

func DuplicateNames(names []string) *CatalogError {
	return NewCatalogError(ErrCodeDuplicateNames, fmt.Sprintf("duplicate names: %s", strings.Join(names, ", ")), nil).
		WithDetail("names", names)
}

func NameConflict(name string) *CatalogError {
	return NewCatalogError(ErrCodeNameConflict, fmt.Sprintf("the requested name exists: %s", name), nil).
		WithDetail("name", name)
}

func DependentsExist(name string, members []string) *CatalogError {
	return NewCatalogError(ErrCodeDependentsExist,
		fmt.Sprintf("cannot delete %s: still referenced by %s", name, strings.Join(members, ", ")), nil).
		WithDetail("name", name).
		WithDetail("members", members)
}

func IncompatibleEdge(name, endpoint string) *CatalogError {
	return NewCatalogError(ErrCodeIncompatibleEdge,
		fmt.Sprintf("cannot have global %s referencing local table %s", name, endpoint), nil).
		WithDetail("name", name).
		WithDetail("endpoint", endpoint)
}

func InvalidDefinition(name, reason string) *CatalogError {
	return NewCatalogError(ErrCodeInvalidDefinition, fmt.Sprintf("invalid definition '%s': %s", name, reason), nil).
		WithDetail("name", name).
		WithDetail("reason", reason)
}

func InvalidName(name, reason string) *CatalogError {
	return NewCatalogError(ErrCodeInvalidName, fmt.Sprintf("invalid name '%s': %s", name, reason), nil).
		WithDetail("name", name).
		WithDetail("reason", reason)
}

func NotImplemented(feature string) *CatalogError {
	return NewCatalogError(ErrCodeNotImplemented, fmt.Sprintf("not implemented: %s", feature), nil).
		WithDetail("feature", feature)
}

func TableIDExhausted(limit int64) *CatalogError {
	return NewCatalogError(ErrCodeTableIDExhausted, fmt.Sprintf("table id space exhausted at %d", limit), nil).
		WithDetail("limit", limit)
}

func LogicError(message string) *CatalogError {
	return NewCatalogError(ErrCodeLogic, message, nil)
}

func CorruptedData(message string, cause error) *CatalogError {
	return NewCatalogError(ErrCodeCorruptedData, message, cause)
}

func StackOverflow(depth, limit int) *CatalogError {
	return NewCatalogError(ErrCodeStackOverflow, fmt.Sprintf("stack overflow in env: depth %d exceeds %d", depth, limit), nil).
		WithDetail("depth", depth).
		WithDetail("limit", limit)
}

func StorageFailed(message string, cause error) *CatalogError {
	return NewCatalogError(ErrCodeStorage, message, cause)
}

// IsCatalogError checks if an error is a CatalogError
func IsCatalogError(err error) bool {
	var ce *CatalogError
	return errors.As(err, &ce)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if err == nil {
		return ErrCodeOK
	}
	var ce *CatalogError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrCodeLogic
}

// IsUserError reports whether err was caused by the caller (bad schema or query)
// rather than by the engine.
func IsUserError(err error) bool {
	code := GetCode(err)
	return code >= 1000 && code < 2000
}
