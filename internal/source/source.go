package source

import "context"

// Document is a fetched source file. Content is immutable once set.
type Document struct {
	Identifier string
	Content    string
}

// Source lists document identifiers and serves their content.
//
// Both calls may fail with an *indexerr.TransportError carrying the HTTP
// status of the failed response.
type Source interface {
	// ListDocuments returns identifiers under the configured path prefix whose
	// extension is in the allow-list, in a stable order.
	ListDocuments(ctx context.Context) ([]string, error)

	// GetContent returns the decoded text of one document.
	GetContent(ctx context.Context, identifier string) (string, error)
}
