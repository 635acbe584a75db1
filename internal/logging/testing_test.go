package logging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestTestLogger(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithRunID(context.Background(), "run-7")

	tl.Debug(ctx, "stage started")
	tl.Info(ctx, "indexing run done", zap.Int("points", 12))

	assert.Len(t, tl.All(), 2)
	tl.AssertLogged(t, zapcore.DebugLevel, "stage started")
	tl.AssertLogged(t, zapcore.InfoLevel, "run done")
	tl.AssertNotLogged(t, zapcore.ErrorLevel, "indexing run")
	tl.AssertField(t, "indexing run done", "run.id", "run-7")
	tl.AssertField(t, "indexing run done", "points", int64(12))
	assert.Equal(t, 1, tl.FilterMessage("started").Len())

	tl.Reset()
	assert.Empty(t, tl.All())
}

func TestTestLogger_AssertNoSecrets(t *testing.T) {
	tl := NewTestLogger()
	tl.Info(context.Background(), "request failed", zap.Error(errors.New("invalid key sk-abcdefghijklmnopqrstuv")))

	rec := &recordingTB{TB: t}
	tl.AssertNoSecrets(rec)
	assert.True(t, rec.failed)

	clean := NewTestLogger()
	clean.Info(context.Background(), "request failed", zap.String("collection", "crewai-docs"))
	clean.AssertNoSecrets(t)
}

// recordingTB captures failures instead of failing the test.
type recordingTB struct {
	testing.TB
	failed bool
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(string, ...any) { r.failed = true }
