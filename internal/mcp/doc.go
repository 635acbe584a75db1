// Package mcp exposes documentation search as an MCP server.
//
// The server registers two tools backed by internal/search and
// internal/collections:
//
//   - crewai_docs_search: top-K chunks for a prompt
//   - crewai_docs_current_collection: name of the collection readers see
//
// It runs over stdio (Run) or as a streamable HTTP handler (Handler) that
// the HTTP server mounts at /mcp.
package mcp
