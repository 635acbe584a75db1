// Package indexerr defines the error taxonomy shared by every indexing stage.
//
// Three kinds of failure are distinguished:
//
//   - TransportError: a source, embedding or store call failed on the wire or
//     returned a non-success status. Fatal to the current run.
//   - SchemaError: the store rejected a collection or payload index definition,
//     or returned vectors that do not fit the collection. Fatal.
//   - ValidationError: a required input is missing. Raised before any network
//     activity.
//
// All types implement Unwrap so callers can use errors.As to inspect them
// through the stage wrappers added by the pipeline.
package indexerr
