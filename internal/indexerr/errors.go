package indexerr

import (
	"errors"
	"fmt"
	"strings"
)

// TransportError is a network failure against the source, the embedding
// model or the vector store. Status carries the HTTP status when one is known
// (0 otherwise).
type TransportError struct {
	Op         string // e.g. "get_content", "embed_batch", "upsert"
	Status     int
	Identifier string // document identifier or collection name, if any
	Batch      int    // batch index, -1 when not batched
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(" failed")
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Identifier != "" {
		fmt.Fprintf(&b, " [%s]", e.Identifier)
	}
	if e.Batch >= 0 {
		fmt.Fprintf(&b, " [batch %d]", e.Batch)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a transport error that is not tied to a batch.
func NewTransportError(op, identifier string, status int, err error) *TransportError {
	return &TransportError{Op: op, Status: status, Identifier: identifier, Batch: -1, Err: err}
}

// NewBatchTransportError creates a transport error for the given batch index.
func NewBatchTransportError(op, identifier string, batch int, err error) *TransportError {
	te := &TransportError{Op: op, Identifier: identifier, Batch: batch, Err: err}
	var inner *TransportError
	if errors.As(err, &inner) {
		te.Status = inner.Status
	}
	return te
}

// SchemaError means the store rejected a collection or index definition, or
// a collaborator returned data that does not fit the collection schema.
type SchemaError struct {
	Op         string
	Collection string
	Err        error
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Collection != "" {
		return fmt.Sprintf("%s rejected for %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("%s rejected: %v", e.Op, e.Err)
}

// Unwrap allows errors.Is and errors.As to reach the underlying error.
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// NewSchemaError creates a schema error.
func NewSchemaError(op, collection string, err error) *SchemaError {
	return &SchemaError{Op: op, Collection: collection, Err: err}
}

// ValidationError is raised before any network activity when a required
// input is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a validation error.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// IsTransport reports whether err is, or wraps, a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsSchema reports whether err is, or wraps, a SchemaError.
func IsSchema(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
