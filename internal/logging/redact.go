package logging

import (
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const redacted = "[REDACTED]"

// redactor masks credentials in entries bound for any output.
//
// Only string-valued fields are inspected by value. Fields named like a
// credential are masked whatever their type.
type redactor struct {
	keys     map[string]struct{}
	patterns []*regexp.Regexp
}

// newRedactor returns nil when redaction is disabled.
func newRedactor(cfg RedactionConfig) (*redactor, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	keys := make(map[string]struct{}, len(cfg.Keys))
	for _, k := range cfg.Keys {
		keys[strings.ToLower(k)] = struct{}{}
	}
	patterns := make([]*regexp.Regexp, 0, len(cfg.Patterns))
	for _, p := range cfg.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", p, err)
		}
		patterns = append(patterns, re)
	}
	return &redactor{keys: keys, patterns: patterns}, nil
}

// sensitive matches a key on its last dotted segment.
func (r *redactor) sensitive(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := r.keys[strings.ToLower(key)]
	return ok
}

// scrub replaces every pattern match inside val.
func (r *redactor) scrub(val string) string {
	for _, re := range r.patterns {
		val = re.ReplaceAllString(val, redacted)
	}
	return val
}

func (r *redactor) maskField(f zapcore.Field) zapcore.Field {
	if r.sensitive(f.Key) {
		return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: redacted}
	}
	switch f.Type {
	case zapcore.StringType:
		f.String = r.scrub(f.String)
	case zapcore.ByteStringType:
		if b, ok := f.Interface.([]byte); ok {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: r.scrub(string(b))}
		}
	case zapcore.ErrorType:
		if err, ok := f.Interface.(error); ok && err != nil {
			return zapcore.Field{Key: f.Key, Type: zapcore.StringType, String: r.scrub(err.Error())}
		}
	}
	return f
}

func (r *redactor) maskFields(fields []zapcore.Field) []zapcore.Field {
	masked := make([]zapcore.Field, len(fields))
	for i, f := range fields {
		masked[i] = r.maskField(f)
	}
	return masked
}

// redactingEncoder applies a redactor to the console output.
type redactingEncoder struct {
	zapcore.Encoder
	*redactor
}

func newRedactingEncoder(base zapcore.Encoder, r *redactor) zapcore.Encoder {
	if r == nil {
		return base
	}
	return &redactingEncoder{Encoder: base, redactor: r}
}

func (e *redactingEncoder) AddString(key, val string) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.scrub(val))
}

func (e *redactingEncoder) AddByteString(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddString(key, e.scrub(string(val)))
}

func (e *redactingEncoder) AddBinary(key string, val []byte) {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return
	}
	e.Encoder.AddBinary(key, val)
}

func (e *redactingEncoder) AddReflected(key string, val interface{}) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddReflected(key, val)
}

func (e *redactingEncoder) AddObject(key string, obj zapcore.ObjectMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddObject(key, obj)
}

func (e *redactingEncoder) AddArray(key string, arr zapcore.ArrayMarshaler) error {
	if e.sensitive(key) {
		e.Encoder.AddString(key, redacted)
		return nil
	}
	return e.Encoder.AddArray(key, arr)
}

func (e *redactingEncoder) Clone() zapcore.Encoder {
	return &redactingEncoder{Encoder: e.Encoder.Clone(), redactor: e.redactor}
}

// EncodeEntry masks the message and the entry's own fields. The wrapped
// encoder adds those fields to a clone of itself, so the Add* overrides above
// only see fields attached with With.
func (e *redactingEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	ent.Message = e.scrub(ent.Message)
	return e.Encoder.EncodeEntry(ent, e.maskFields(fields))
}

// redactingCore applies a redactor to cores that do not encode, such as the
// OpenTelemetry bridge, which converts fields to log attributes itself.
type redactingCore struct {
	zapcore.Core
	r *redactor
}

func newRedactingCore(core zapcore.Core, r *redactor) zapcore.Core {
	if r == nil {
		return core
	}
	return &redactingCore{Core: core, r: r}
}

func (c *redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return &redactingCore{Core: c.Core.With(c.r.maskFields(fields)), r: c.r}
}

func (c *redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c *redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	e.Message = c.r.scrub(e.Message)
	return c.Core.Write(e, c.r.maskFields(fields))
}
