package search

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/vectorstore"
)

const prefix = "crewai-docs"

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if strings.Contains(text, "agent") {
		return []float32{1, 0, 0}, nil
	}
	return []float32{0, 1, 0}, nil
}

func setup(t *testing.T) (*Service, *fakeEmbedder) {
	t.Helper()
	ctx := context.Background()
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)

	m := collections.NewManager(store)
	name, err := m.CreateCollection(ctx, prefix, 3, vectorstore.DistanceCosine)
	require.NoError(t, err)
	require.NoError(t, m.Publish(ctx, []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0.1, 0}, Payload: map[string]any{"text": "# Agents", "sourceIdentifier": "docs/en/agents.md", "order": 0}},
		{ID: "b", Vector: []float32{0.1, 1, 0}, Payload: map[string]any{"text": "# Tasks", "sourceIdentifier": "docs/en/tasks.md", "order": 2}},
		{ID: "c", Vector: []float32{0, 0.2, 1}, Payload: map[string]any{"text": "# Tools", "sourceIdentifier": "docs/en/tools.md", "order": 1}},
	}, name))
	_, err = m.FinalizeOrAbort(ctx, name, prefix)
	require.NoError(t, err)

	emb := &fakeEmbedder{}
	return NewService(store, m, emb, prefix, zap.NewNop()), emb
}

func TestSearch(t *testing.T) {
	svc, _ := setup(t)

	resp, err := svc.Search(context.Background(), "  how do I build an agent?  ", 2)
	require.NoError(t, err)
	assert.Equal(t, "how do I build an agent?", resp.Prompt)
	assert.True(t, strings.HasPrefix(resp.Collection, prefix+"-"))
	require.Len(t, resp.Hits, 2)

	top := resp.Hits[0]
	assert.Equal(t, "a", top.ID)
	assert.Equal(t, "# Agents", top.Text)
	assert.Equal(t, "docs/en/agents.md", top.SourceIdentifier)
	assert.Equal(t, 0, top.Order)
	assert.Equal(t, 2, resp.Hits[1].Order)
}

func TestSearch_DefaultAndCappedK(t *testing.T) {
	svc, _ := setup(t)

	resp, err := svc.Search(context.Background(), "tasks", 0)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 3, "default k exceeds collection size")

	resp, err = svc.Search(context.Background(), "tasks", 1000)
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 3)
}

func TestSearch_Validation(t *testing.T) {
	tests := []struct {
		name      string
		prompt    string
		k         int
		wantField string
	}{
		{name: "empty prompt", prompt: "", wantField: "prompt"},
		{name: "whitespace prompt", prompt: " \n\t", wantField: "prompt"},
		{name: "too long", prompt: strings.Repeat("x", MaxPromptLength+1), wantField: "prompt"},
		{name: "negative k", prompt: "agents", k: -1, wantField: "k"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, emb := setup(t)
			_, err := svc.Search(context.Background(), tt.prompt, tt.k)

			var ve *indexerr.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
			assert.Zero(t, emb.calls, "no network call on invalid input")
		})
	}
}

func TestSearch_NoCollection(t *testing.T) {
	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{}, zap.NewNop())
	require.NoError(t, err)
	svc := NewService(store, collections.NewManager(store), &fakeEmbedder{}, prefix, nil)

	_, err = svc.Search(context.Background(), "agents", 3)
	assert.ErrorIs(t, err, collections.ErrNoCurrentCollection)
}

func TestSearch_EmbedderFailure(t *testing.T) {
	svc, emb := setup(t)
	emb.err = indexerr.NewTransportError("embed_query", "m", 503, errors.New("down"))

	_, err := svc.Search(context.Background(), "agents", 3)
	assert.True(t, indexerr.IsTransport(err))
	assert.True(t, indexerr.Retryable(err))
}

func TestHitFromResult(t *testing.T) {
	tests := []struct {
		name  string
		order any
		want  int
	}{
		{name: "int64", order: int64(4), want: 4},
		{name: "int", order: 5, want: 5},
		{name: "float", order: 6.0, want: 6},
		{name: "missing", order: nil, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := hitFromResult(vectorstore.SearchResult{ID: "x", Payload: map[string]any{"order": tt.order}})
			assert.Equal(t, tt.want, h.Order)
		})
	}
}
