// Package logging is the docindex structured logger.
//
// It wraps Zap with context-aware methods that attach the indexing run ID,
// the pipeline stage and the active trace to every entry:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithStage(ctx, "fetching")
//	logger.Info(ctx, "batch fetched", zap.Int("batch", 3))
//
// produces
//
//	{"level":"info","ts":"...","msg":"batch fetched","trace_id":"...",
//	 "run.id":"0192f1c4-...","pipeline.stage":"fetching","batch":3}
//
// Entries go to a console stream (stdout, or stderr when Output.Stderr is
// set) and optionally to an OpenTelemetry LoggerProvider. Credentials are
// redacted on both outputs by field name (api_key, auth_key, token, ...) and
// by value pattern (OpenAI keys, GitHub tokens, bearer headers).
//
// Below error level, entries can be sampled; errors are never dropped.
//
// Tests use NewTestLogger to observe entries:
//
//	tl := logging.NewTestLogger()
//	p, _ := pipeline.New(cfg, src, client, store, tok, pipeline.WithLogger(tl.Logger))
//	tl.AssertLogged(t, zapcore.InfoLevel, "indexing run done")
package logging
