package chunker

import (
	"errors"
	"regexp"
	"strings"
)

// DefaultMaxTokens is the token budget used when none is configured.
const DefaultMaxTokens = 512

// ErrInvalidBudget is returned when the token budget is not positive.
var ErrInvalidBudget = errors.New("max tokens must be positive")

var (
	// frontMatterPattern matches a leading block fenced by "---" lines.
	// The closing delimiter may end the document without a trailing newline.
	frontMatterPattern = regexp.MustCompile(`(?s)\A---[ \t]*\r?\n(.*?)\r?\n---[ \t]*(?:\r?\n|\z)`)

	headingPattern = regexp.MustCompile(`^#+ `)
)

// Chunk is one token-bounded span of a document.
type Chunk struct {
	Text             string
	Order            int
	SourceIdentifier string
}

// Chunker splits markdown and MDX documents along their structure.
type Chunker struct {
	tokenizer Tokenizer
	maxTokens int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxTokens sets the default token budget used by Split.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// New creates a Chunker measuring sections with tokenizer.
func New(tokenizer Tokenizer, opts ...Option) *Chunker {
	if tokenizer == nil {
		tokenizer = WordTokenizer{}
	}
	c := &Chunker{
		tokenizer: tokenizer,
		maxTokens: DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Split chunks a document and numbers the chunks densely from 0.
func (c *Chunker) Split(identifier, text string) []Chunk {
	texts := c.Chunk(text, c.maxTokens)
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{Text: t, Order: i, SourceIdentifier: identifier}
	}
	return chunks
}

// Chunk splits text into ordered chunks of at most maxTokens tokens.
//
// Front-matter, if present, is always the first chunk. The body is cut at
// every heading line outside fenced code blocks. Sections over budget are
// split between lines; a single line over budget is emitted whole.
// A non-positive maxTokens disables the budget.
func (c *Chunker) Chunk(text string, maxTokens int) []string {
	var sections []string

	body := text
	if loc := frontMatterPattern.FindStringIndex(text); loc != nil {
		sections = append(sections, text[:loc[1]])
		body = text[loc[1]:]
	}
	sections = append(sections, splitSections(body)...)

	var out []string
	for _, section := range sections {
		section = strings.TrimSpace(section)
		if section == "" {
			continue
		}
		if maxTokens <= 0 || c.tokenizer.Count(section) <= maxTokens {
			out = append(out, section)
			continue
		}
		out = append(out, c.splitLines(section, maxTokens)...)
	}
	return out
}

// splitSections cuts body at heading lines, ignoring headings inside fences.
func splitSections(body string) []string {
	if body == "" {
		return nil
	}

	var (
		sections []string
		current  strings.Builder
		fence    string
	)

	for _, line := range strings.SplitAfter(body, "\n") {
		if line == "" {
			continue
		}

		if delim := fenceDelimiter(line); delim != "" {
			switch {
			case fence == "":
				fence = delim
			case delim == fence:
				fence = ""
			}
			current.WriteString(line)
			continue
		}

		if fence == "" && headingPattern.MatchString(line) {
			if current.Len() > 0 {
				sections = append(sections, current.String())
				current.Reset()
			}
		}
		current.WriteString(line)
	}

	if current.Len() > 0 {
		sections = append(sections, current.String())
	}
	return sections
}

// fenceDelimiter returns "```" or "~~~" when line opens or closes a fence.
func fenceDelimiter(line string) string {
	switch {
	case strings.HasPrefix(line, "```"):
		return "```"
	case strings.HasPrefix(line, "~~~"):
		return "~~~"
	default:
		return ""
	}
}

// splitLines greedily packs whole lines into chunks within budget.
func (c *Chunker) splitLines(section string, maxTokens int) []string {
	var (
		out     []string
		current []string
	)

	flush := func() {
		if chunk := strings.TrimSpace(strings.Join(current, "\n")); chunk != "" {
			out = append(out, chunk)
		}
		current = current[:0]
	}

	for _, line := range strings.Split(section, "\n") {
		if len(current) == 0 {
			current = append(current, line)
			continue
		}

		candidate := strings.Join(append(current, line), "\n")
		if c.tokenizer.Count(candidate) > maxTokens {
			flush()
		}
		current = append(current, line)
	}
	flush()

	return out
}
