package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielfsbarreto/crewai-expert/internal/chunker"
	"github.com/danielfsbarreto/crewai-expert/internal/events"
	"github.com/danielfsbarreto/crewai-expert/internal/indexerr"
	"github.com/danielfsbarreto/crewai-expert/internal/pipeline"
	"github.com/danielfsbarreto/crewai-expert/internal/source"
)

var (
	// index command flags
	idxNoProgress bool
	idxOutputJSON bool
	idxRetries    int
)

func init() {
	rootCmd.AddCommand(indexCmd)

	indexCmd.Flags().BoolVar(&idxNoProgress, "no-progress", false, "Disable the progress bar")
	indexCmd.Flags().BoolVar(&idxOutputJSON, "json", false, "Output the run result as JSON")
	indexCmd.Flags().IntVar(&idxRetries, "retries", -1, "Re-run a failed index this many times when the failure is transient (default from pipeline.run_retries)")
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index the documentation into a fresh collection",
	Long: `Index lists the documentation in the configured GitHub repository, fetches
it in batches, chunks and embeds it, and publishes it into a new collection.
The new collection becomes current only when the run succeeds; a failed run
deletes its partial collection and leaves the previous one in place.

Examples:
  # Index with the default configuration
  docindex index

  # Index into a throwaway local store
  STORE_BACKEND=chromem docindex index --json`,
	Args: cobra.NoArgs,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	p, cleanup, err := a.pipeline(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	retries := a.cfg.Pipeline.RunRetries
	if idxRetries >= 0 {
		retries = idxRetries
	}

	res, err := runWithRetry(ctx, backoff.NewExponentialBackOff(), retries, p.Run, func(err error, wait time.Duration) {
		a.logger.Warn(ctx, "indexing run failed, retrying",
			zap.Error(err),
			zap.Duration("wait", wait))
	})
	if res != nil {
		if perr := printResult(cmd.OutOrStdout(), res, idxOutputJSON); perr != nil {
			return perr
		}
	}
	return err
}

// pipeline assembles the indexing pipeline. The cleanup function closes the
// event publisher and finishes the progress bar.
func (a *app) pipeline(ctx context.Context, progressOut io.Writer) (*pipeline.Pipeline, func(), error) {
	zl := a.logger.Underlying()

	src, err := source.NewGitHubSource(ctx, source.GitHubConfig{
		Token:             a.cfg.GitHub.AuthKey,
		Owner:             a.cfg.GitHub.Owner,
		Repo:              a.cfg.GitHub.Repo,
		DocsPath:          a.cfg.GitHub.DocsPath,
		PrimaryLanguage:   a.cfg.GitHub.PrimaryLanguage,
		Extensions:        a.cfg.GitHub.Extensions,
		RequestsPerSecond: a.cfg.GitHub.RequestsPerSecond,
		BaseURL:           a.cfg.GitHub.BaseURL,
	}, zl)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create documentation source: %w", err)
	}

	tokenizer, err := chunker.NewTokenizer(a.cfg.Chunker.Encoding)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create tokenizer: %w", err)
	}

	client, err := a.embeddingClient()
	if err != nil {
		return nil, nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if a.cfg.NATS.URL != "" {
		nats, err := events.NewNATSPublisher(a.cfg.NATS.URL, a.cfg.NATS.Subject, zl)
		if err != nil {
			// Events are advisory; indexing proceeds without them.
			a.logger.Warn(ctx, "collection events disabled", zap.Error(err))
		} else {
			publisher = nats
		}
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(a.logger),
		pipeline.WithPublisher(publisher),
	}
	var bar *progressReporter
	if !idxNoProgress {
		bar = newProgressReporter(progressOut)
		opts = append(opts, pipeline.WithProgress(bar.Update))
	}

	p, err := pipeline.New(pipeline.Config{
		Prefix:           a.prefix(),
		MaxTokens:        a.cfg.Chunker.MaxTokens,
		FetchBatchSize:   a.cfg.Pipeline.FetchBatchSize,
		EmbedBatchSize:   a.cfg.Pipeline.EmbedBatchSize,
		PublishBatchSize: a.cfg.Pipeline.PublishBatchSize,
		EmbeddingModel:   a.cfg.OpenAI.EmbeddingModel,
		FinalizeTimeout:  a.cfg.Pipeline.FinalizeTimeout.Duration(),
	}, src, client, a.store, tokenizer, opts...)
	if err != nil {
		_ = publisher.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if bar != nil {
			bar.Finish()
		}
		if err := publisher.Close(); err != nil {
			a.logger.Warn(ctx, "failed to close event publisher", zap.Error(err))
		}
	}
	return p, cleanup, nil
}

// runWithRetry repeats run while it fails with a retryable error, up to
// retries extra attempts. Each attempt is a complete run into a fresh
// collection. The last attempt's result is returned along with its error.
func runWithRetry(
	ctx context.Context,
	b backoff.BackOff,
	retries int,
	run func(context.Context) (*pipeline.Result, error),
	onRetry func(error, time.Duration),
) (*pipeline.Result, error) {
	if retries < 0 {
		retries = 0
	}

	var last *pipeline.Result
	op := func() (*pipeline.Result, error) {
		res, err := run(ctx)
		last = res
		if err != nil && !indexerr.Retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(retries) + 1),
	}
	if onRetry != nil {
		opts = append(opts, backoff.WithNotify(onRetry))
	}

	res, err := backoff.Retry(ctx, op, opts...)
	if res == nil {
		res = last
	}
	return res, err
}

// printResult writes a run summary, as JSON or as plain text.
func printResult(w io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	if res.State == pipeline.StateDone {
		fmt.Fprintf(w, "Indexed %d documents into %s (%d chunks, %d points) in %s\n",
			res.Documents, res.Collection, res.Chunks, res.Points, res.Duration.Round(time.Millisecond))
		for _, name := range res.Deleted {
			fmt.Fprintf(w, "Deleted superseded collection %s\n", name)
		}
		for _, name := range res.SweepFailed {
			fmt.Fprintf(w, "Could not delete superseded collection %s; run 'collections prune' to retry\n", name)
		}
		return nil
	}
	fmt.Fprintf(w, "Indexing failed at %s after %s (run %s)\n",
		res.FailedAt, res.Duration.Round(time.Millisecond), res.RunID)
	return nil
}

// progressReporter renders pipeline progress as one bar that restarts for
// each stage.
type progressReporter struct {
	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	stage pipeline.State
	last  int
}

func newProgressReporter(w io.Writer) *progressReporter {
	return &progressReporter{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("starting"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		),
	}
}

// Update implements pipeline.ProgressFunc. Stages may report from several
// goroutines, so counts can arrive out of order; the bar never moves back.
func (p *progressReporter) Update(stage pipeline.State, completed, total int) {
	if total <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if stage != p.stage {
		p.stage = stage
		p.last = 0
		p.bar.Reset()
		p.bar.Describe(string(stage))
	}
	p.bar.ChangeMax(total)
	if completed > p.last {
		p.last = completed
		_ = p.bar.Set(completed)
	}
}

// Finish clears the bar.
func (p *progressReporter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}
