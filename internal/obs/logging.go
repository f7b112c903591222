package obs

import (
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-pdv/internal/common"
)

// NewLogger builds the process logger. format "console" or "text" selects the human writer.
func NewLogger(format, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(writerFor(format, os.Stdout)).With().Timestamp().Logger()
}

func writerFor(format string, out io.Writer) io.Writer {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "console", "text":
		return zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	default:
		return out
	}
}

// RequestLogger writes one structured line per request.
type RequestLogger struct {
	Logger zerolog.Logger
	// Quiet lists route patterns that are only logged on failure.
	Quiet []string
}

// Middleware logs after the handler returns so the chi route pattern is known.
func (l RequestLogger) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := NewStatusRecorder(w)
		start := time.Now()
		ctx := l.Logger.With().Logger().WithContext(r.Context())
		next.ServeHTTP(recorder, r.WithContext(ctx))

		route := Route(r)
		status := recorder.Status()
		if status < http.StatusBadRequest && l.quiet(route) {
			return
		}

		// Inner middleware annotates the context logger (see Annotate).
		logger := zerolog.Ctx(ctx)
		var evt *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			evt = logger.Error()
		case status >= http.StatusBadRequest:
			evt = logger.Warn()
		default:
			evt = logger.Info()
		}
		evt = evt.
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int64("bytes", recorder.BytesWritten()).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("ip", common.ClientIP(r))
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			evt = evt.Str("trace_id", sc.TraceID().String())
		}
		evt.Msg("http_request")
	})
}

func (l RequestLogger) quiet(route string) bool {
	for _, q := range l.Quiet {
		if q == route {
			return true
		}
	}
	return false
}

// Annotate adds fields to the request logger installed by RequestLogger.
func Annotate(ctx context.Context, fields map[string]string) {
	zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
		for k, v := range fields {
			if v != "" {
				c = c.Str(k, v)
			}
		}
		return c
	})
}
