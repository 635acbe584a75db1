package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielfsbarreto/crewai-expert/internal/collections"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/pipeline"
	"github.com/danielfsbarreto/crewai-expert/internal/search"
)

func findCommand(t *testing.T, path ...string) *cobra.Command {
	t.Helper()
	cmd, rest, err := rootCmd.Find(path)
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, path[len(path)-1], cmd.Name())
	return cmd
}

func TestCommands_Registered(t *testing.T) {
	tests := []struct {
		path  []string
		flags []string
	}{
		{path: []string{"index"}, flags: []string{"no-progress", "json", "retries"}},
		{path: []string{"search"}, flags: []string{"k", "json"}},
		{path: []string{"current"}},
		{path: []string{"collections", "list"}, flags: []string{"json"}},
		{path: []string{"collections", "prune"}, flags: []string{"json"}},
		{path: []string{"serve"}, flags: []string{"stdio"}},
		{path: []string{"version"}},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.path, " "), func(t *testing.T) {
			cmd := findCommand(t, tt.path...)
			assert.NotEmpty(t, cmd.Short)
			for _, f := range tt.flags {
				assert.NotNil(t, cmd.Flags().Lookup(f), "missing flag --%s", f)
			}
		})
	}

	for _, f := range []string{"config", "env-file"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(f), "missing persistent flag --%s", f)
	}
}

func TestSearchCmd_DefaultK(t *testing.T) {
	cmd := findCommand(t, "search")
	assert.Equal(t, "5", cmd.Flags().Lookup("k").DefValue)
	assert.Equal(t, search.DefaultK, 5)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "docindex "+version)
	assert.Contains(t, out.String(), "Commit:")
}

// executeWithChromem runs the CLI against an empty in-memory store.
func executeWithChromem(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("STORE_BACKEND", "chromem")
	t.Setenv("STORE_CHROMEM_PATH", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		colOutputJSON = false
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestCollectionsList_EmptyStore(t *testing.T) {
	out, err := executeWithChromem(t, "collections", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No collections found")
}

func TestCollectionsList_JSON(t *testing.T) {
	out, err := executeWithChromem(t, "collections", "list", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, "null", strings.TrimSpace(out))
}

func TestCurrent_NoCollection(t *testing.T) {
	_, err := executeWithChromem(t, "current")
	require.Error(t, err)
	assert.ErrorIs(t, err, collections.ErrNoCurrentCollection)
}

func TestRunWithRetry(t *testing.T) {
	transient := indexerr.NewTransportError("fetch", "docs/en/a.mdx", http.StatusBadGateway, errors.New("bad gateway"))
	permanent := indexerr.NewValidationError("prefix", "invalid")

	tests := []struct {
		name      string
		retries   int
		errs      []error
		wantCalls int
		wantErr   error
		wantState pipeline.State
	}{
		{
			name:      "succeeds first time",
			retries:   3,
			errs:      []error{nil},
			wantCalls: 1,
			wantState: pipeline.StateDone,
		},
		{
			name:      "retries transient failure",
			retries:   3,
			errs:      []error{transient, transient, nil},
			wantCalls: 3,
			wantState: pipeline.StateDone,
		},
		{
			name:      "stops on permanent failure",
			retries:   3,
			errs:      []error{permanent},
			wantCalls: 1,
			wantErr:   permanent,
			wantState: pipeline.StateFailed,
		},
		{
			name:      "gives up after retries",
			retries:   2,
			errs:      []error{transient, transient, transient, nil},
			wantCalls: 3,
			wantErr:   transient,
			wantState: pipeline.StateFailed,
		},
		{
			name:      "zero retries runs once",
			retries:   0,
			errs:      []error{transient, nil},
			wantCalls: 1,
			wantErr:   transient,
			wantState: pipeline.StateFailed,
		},
		{
			name:      "negative retries runs once",
			retries:   -1,
			errs:      []error{transient, nil},
			wantCalls: 1,
			wantErr:   transient,
			wantState: pipeline.StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls, notified int
			run := func(context.Context) (*pipeline.Result, error) {
				err := tt.errs[calls]
				calls++
				if err != nil {
					return &pipeline.Result{State: pipeline.StateFailed}, &pipeline.StageError{Stage: pipeline.StateFetching, Err: err}
				}
				return &pipeline.Result{State: pipeline.StateDone}, nil
			}

			res, err := runWithRetry(context.Background(), &backoff.ZeroBackOff{}, tt.retries, run,
				func(error, time.Duration) { notified++ })

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls-1, notified)
			require.NotNil(t, res)
			assert.Equal(t, tt.wantState, res.State)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRunWithRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	run := func(ctx context.Context) (*pipeline.Result, error) {
		calls++
		cancel()
		return &pipeline.Result{State: pipeline.StateFailed}, &pipeline.StageError{Stage: pipeline.StateListing, Err: ctx.Err()}
	}

	res, err := runWithRetry(ctx, &backoff.ZeroBackOff{}, 5, run, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
	require.NotNil(t, res)
}

func TestPrintResult(t *testing.T) {
	done := &pipeline.Result{
		RunID:       "run-1",
		State:       pipeline.StateDone,
		Collection:  "crewai-docs-0190",
		Documents:   3,
		Chunks:      7,
		Points:      7,
		Deleted:     []string{"crewai-docs-0180"},
		SweepFailed: []string{"crewai-docs-0170"},
		Duration:    1500 * time.Millisecond,
	}
	failed := &pipeline.Result{
		RunID:    "run-2",
		State:    pipeline.StateFailed,
		FailedAt: pipeline.StateEmbedding,
		Duration: time.Second,
	}

	tests := []struct {
		name   string
		res    *pipeline.Result
		asJSON bool
		want   []string
	}{
		{name: "done", res: done, want: []string{"Indexed 3 documents into crewai-docs-0190", "7 chunks", "Deleted superseded collection crewai-docs-0180", "Could not delete superseded collection crewai-docs-0170"}},
		{name: "done json", res: done, asJSON: true, want: []string{`"sweep_failed": [`, `"crewai-docs-0170"`}},
		{name: "failed", res: failed, want: []string{"Indexing failed at embedding", "run-2"}},
		{name: "json", res: failed, asJSON: true, want: []string{`"failed_at": "embedding"`, `"run_id": "run-2"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, printResult(&buf, tt.res, tt.asJSON))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
		})
	}
}

func TestPrintSearch(t *testing.T) {
	resp := &search.Response{
		Prompt:     "agents",
		Collection: "crewai-docs-0190",
		Hits: []search.Hit{
			{ID: "a", Score: 0.91, Text: "  Agents are autonomous units.\n", SourceIdentifier: "docs/en/concepts/agents.mdx", Order: 2},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printSearch(&buf, resp, false))
	assert.Contains(t, buf.String(), "1. docs/en/concepts/agents.mdx #2 (score 0.9100)")
	assert.Contains(t, buf.String(), "Agents are autonomous units.\n")

	buf.Reset()
	require.NoError(t, printSearch(&buf, resp, true))
	var decoded search.Response
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, resp.Hits[0].SourceIdentifier, decoded.Hits[0].SourceIdentifier)

	buf.Reset()
	require.NoError(t, printSearch(&buf, &search.Response{Collection: "c"}, false))
	assert.Equal(t, "No results in c\n", buf.String())
}

func TestPrintCollections(t *testing.T) {
	list := []collections.Summary{
		{Name: "crewai-docs-b", CreatedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC), PointCount: 42, Current: true},
		{Name: "crewai-docs-a", PointCount: 40},
	}

	var buf bytes.Buffer
	require.NoError(t, printCollections(&buf, list, false))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.Contains(t, lines[1], "2026-10-01T12:00:00Z")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[1]), "*"))
	assert.Contains(t, lines[2], "-")
}

type fakeServer struct {
	startErr  error
	stopped   chan struct{}
	shutdowns atomic.Int32
}

func newFakeServer(startErr error) *fakeServer {
	return &fakeServer{startErr: startErr, stopped: make(chan struct{})}
}

func (f *fakeServer) Start() error {
	if f.startErr != nil {
		return f.startErr
	}
	<-f.stopped
	return http.ErrServerClosed
}

func (f *fakeServer) Shutdown(context.Context) error {
	if f.shutdowns.Add(1) == 1 {
		close(f.stopped)
	}
	return nil
}

func TestServeUntilDone(t *testing.T) {
	t.Run("shuts down on cancel", func(t *testing.T) {
		srv := newFakeServer(nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- serveUntilDone(ctx, srv, time.Second) }()

		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("serveUntilDone did not return")
		}
		assert.Equal(t, int32(1), srv.shutdowns.Load())
	})

	t.Run("returns start error", func(t *testing.T) {
		srv := newFakeServer(errors.New("address in use"))
		err := serveUntilDone(context.Background(), srv, time.Second)
		require.EqualError(t, err, "address in use")
		assert.Zero(t, srv.shutdowns.Load())
	})
}

func TestProgressReporter(t *testing.T) {
	p := newProgressReporter(io.Discard)
	p.Update(pipeline.StateFetching, 0, 10)
	p.Update(pipeline.StateFetching, 10, 10)
	assert.Equal(t, pipeline.StateFetching, p.stage)

	p.Update(pipeline.StateEmbedding, 1, 4)
	assert.Equal(t, pipeline.StateEmbedding, p.stage)
	assert.Equal(t, int64(4), p.bar.GetMax64())
	p.Finish()
}

func TestProgressReporter_OutOfOrderUpdates(t *testing.T) {
	p := newProgressReporter(io.Discard)

	p.Update(pipeline.StateFetching, 7, 10)
	p.Update(pipeline.StateFetching, 5, 10)
	p.Update(pipeline.StateFetching, 6, 10)
	assert.Equal(t, 7, p.last)
	assert.InDelta(t, 0.7, p.bar.State().CurrentPercent, 1e-9)

	p.Update(pipeline.StateFetching, 9, 10)
	assert.Equal(t, 9, p.last)

	// A new stage starts from zero.
	p.Update(pipeline.StateEmbedding, 2, 4)
	assert.Equal(t, 2, p.last)
	p.Finish()
}
