package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

const (
	toolSearch            = "crewai_docs_search"
	toolCurrentCollection = "crewai_docs_current_collection"
)

// SearchInput is the input schema for crewai_docs_search.
type SearchInput struct {
	Prompt string `json:"prompt" jsonschema:"question or keywords to look up in the CrewAI documentation"`
	K      int    `json:"k,omitempty" jsonschema:"maximum number of chunks to return (default 5, max 50)"`
}

// SearchOutput is the output schema for crewai_docs_search.
type SearchOutput struct {
	Collection string      `json:"collection" jsonschema:"collection that answered the query"`
	Hits       []HitOutput `json:"hits" jsonschema:"matching chunks, best first"`
	Count      int         `json:"count" jsonschema:"number of hits"`
}

// HitOutput is one chunk in SearchOutput.
type HitOutput struct {
	Text             string  `json:"text"`
	SourceIdentifier string  `json:"source_identifier"`
	Order            int     `json:"order"`
	Score            float32 `json:"score"`
}

// CurrentCollectionInput is empty; the prefix is fixed by the server.
type CurrentCollectionInput struct{}

// CurrentCollectionOutput is the output schema for crewai_docs_current_collection.
type CurrentCollectionOutput struct {
	Prefix     string `json:"prefix"`
	Collection string `json:"collection"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolSearch,
		Description: "Search the indexed CrewAI documentation. Returns the chunks most similar to the prompt with their source file and position.",
	}, instrument(s, toolSearch, s.handleSearch))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolCurrentCollection,
		Description: "Name of the documentation collection currently served to readers.",
	}, instrument(s, toolCurrentCollection, s.handleCurrentCollection))
}

func (s *Server) handleSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.searcher.Search(ctx, in.Prompt, in.K)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{
		Collection: resp.Collection,
		Hits:       make([]HitOutput, len(resp.Hits)),
		Count:      len(resp.Hits),
	}
	for i, h := range resp.Hits {
		out.Hits[i] = HitOutput{
			Text:             h.Text,
			SourceIdentifier: h.SourceIdentifier,
			Order:            h.Order,
			Score:            h.Score,
		}
	}
	return nil, out, nil
}

func (s *Server) handleCurrentCollection(ctx context.Context, _ *mcp.CallToolRequest, _ CurrentCollectionInput) (*mcp.CallToolResult, CurrentCollectionOutput, error) {
	prefix := s.searcher.Prefix()
	name, err := s.resolver.CurrentCollectionName(ctx, prefix)
	if err != nil {
		return nil, CurrentCollectionOutput{}, err
	}
	return nil, CurrentCollectionOutput{Prefix: prefix, Collection: name}, nil
}

// instrument wraps a typed tool handler with metrics and logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		done := s.metrics.begin(ctx, name)
		res, out, err := h(ctx, req, in)
		done(err)
		if err != nil {
			s.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}
