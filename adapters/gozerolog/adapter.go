// Package gozerolog backs the glog logging contracts with zerolog.
package gozerolog

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Options configures the root zerolog logger.
type Options struct {
	Level  string
	Pretty bool
	Output io.Writer
}

// Logger adapts zerolog to glog.Logger. Arguments are alternating key/value
// pairs, matching how the service logs fields.
type Logger struct {
	logger zerolog.Logger
	ctx    context.Context
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return &Logger{
		logger: zerolog.New(out).Level(ParseLevel(opts.Level)).With().Timestamp().Logger(),
	}
}

// Wrap adapts an existing zerolog logger.
func Wrap(logger zerolog.Logger) *Logger {
	return &Logger{logger: logger}
}

// ParseLevel falls back to info for blank or unknown names.
func ParseLevel(name string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(name)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func (l *Logger) Trace(msg string, args ...any) { l.emit(l.logger.Trace(), msg, args) }
func (l *Logger) Debug(msg string, args ...any) { l.emit(l.logger.Debug(), msg, args) }
func (l *Logger) Info(msg string, args ...any)  { l.emit(l.logger.Info(), msg, args) }
func (l *Logger) Warn(msg string, args ...any)  { l.emit(l.logger.Warn(), msg, args) }
func (l *Logger) Error(msg string, args ...any) { l.emit(l.logger.Error(), msg, args) }

// Fatal logs at fatal level without exiting the process.
func (l *Logger) Fatal(msg string, args ...any) {
	l.emit(l.logger.WithLevel(zerolog.FatalLevel), msg, args)
}

// WithContext binds ctx so each entry carries its trace and span ids.
func (l *Logger) WithContext(ctx context.Context) glog.Logger {
	return &Logger{logger: l.logger, ctx: ctx}
}

func (l *Logger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	return &Logger{logger: l.logger.With().Fields(fields).Logger(), ctx: l.ctx}
}

// Zerolog exposes the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}

func (l *Logger) emit(event *zerolog.Event, msg string, args []any) {
	if event == nil {
		return
	}
	if l.ctx != nil {
		if span := trace.SpanFromContext(l.ctx).SpanContext(); span.IsValid() {
			event = event.Str("trace_id", span.TraceID().String()).
				Str("span_id", span.SpanID().String())
		}
	}
	if len(args) > 0 {
		event = event.Fields(pairs(args))
	}
	event.Msg(msg)
}

// pairs turns key/value arguments into a map. A dangling key gets a nil
// value; non-string keys are skipped.
func pairs(args []any) map[string]any {
	fields := make(map[string]any, len(args)/2+1)
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok || key == "" {
			continue
		}
		if i+1 < len(args) {
			fields[key] = args[i+1]
		} else {
			fields[key] = nil
		}
	}
	return fields
}

// Provider hands out child loggers tagged with their name.
type Provider struct {
	root *Logger
}

func NewProvider(root *Logger) *Provider {
	if root == nil {
		root = New(Options{})
	}
	return &Provider{root: root}
}

func (p *Provider) GetLogger(name string) glog.Logger {
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &Logger{logger: p.root.logger.With().Str("logger", name).Logger()}
}

var (
	_ glog.Logger         = (*Logger)(nil)
	_ glog.FieldsLogger   = (*Logger)(nil)
	_ glog.LoggerProvider = (*Provider)(nil)
)
