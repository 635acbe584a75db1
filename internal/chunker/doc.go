// Package chunker splits markdown and MDX documents into retrieval-sized
// chunks without breaking their structure.
//
// A document is cut in three passes:
//
//  1. A leading front-matter block ("---" ... "---") becomes its own section.
//  2. The body is cut at every heading line ("#", "##", ...) unless the line
//     sits inside a fenced code block (``` or ~~~).
//  3. Any section whose token count exceeds the budget is packed line by line
//     into chunks that fit. A single line over budget is kept whole.
//
// Token counts come from a Tokenizer; production uses the tiktoken encoding
// of the embedding model, tests use WordTokenizer.
//
// Example:
//
//	tok, _ := chunker.NewTokenizer("text-embedding-3-small")
//	c := chunker.New(tok, chunker.WithMaxTokens(512))
//	chunks := c.Split("docs/en/concepts/agents.mdx", content)
package chunker
