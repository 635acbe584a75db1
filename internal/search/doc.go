// Package search answers prompts against the current collection.
//
// It is the reader side of the indexer: resolve the current collection of a
// prefix, embed the prompt and return the top-K chunks with their source
// file and position.
package search
