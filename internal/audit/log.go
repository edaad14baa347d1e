// Package audit writes a structured audit trail entry for each request
// handled by the bridge. The entry accumulates identity and resolution detail
// as the request progresses, and is written exactly once when the request
// completes (including on panic).
package audit

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is the log level used for audit entries.
const Level = zerolog.InfoLevel

// Entry is the audit information collected over the lifetime of a request.
// Handlers may annotate the entry via Log; the middleware writes it when the
// request ends.
type Entry struct {
	// request
	Method    string
	Path      string
	Status    int
	SourceIP  string
	UserAgent string

	// identity
	TenantID      string
	Subdomain     string
	PrincipalName string
	Origin        string

	// resolution
	Destination        string
	RetrievalStrategy  string
	ExchangeStrategy   string
	Authentication     string
	ListedDestinations int
	CacheHit           bool
	Error              string
}

type entryKey struct{}

// Context returns a context holding an audit entry, creating one when the
// context doesn't already carry one.
func Context(ctx context.Context) (context.Context, *Entry) {
	if entry, ok := ctx.Value(entryKey{}).(*Entry); ok {
		return ctx, entry
	}

	entry := &Entry{}
	return context.WithValue(ctx, entryKey{}, entry), entry
}

// Log returns the audit entry for the context. When no entry is present a
// detached entry is returned, allowing handler code to annotate
// unconditionally.
func Log(ctx context.Context) *Entry {
	if entry, ok := ctx.Value(entryKey{}).(*Entry); ok {
		return entry
	}
	return &Entry{}
}

// Middleware establishes an audit entry for each request and writes it when
// the request completes. Panics are recorded and re-raised.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, entry := Context(r.Context())
			entry.Begin(r)

			sw := &statusWriter{ResponseWriter: w}

			end := entry.End(ctx)
			defer func() {
				if sw.status != 0 {
					entry.Status = sw.status
				}

				if p := recover(); p != nil {
					if entry.Error == "" {
						entry.Error = fmt.Sprintf("panic: %v", p)
					} else {
						entry.Error = fmt.Sprintf("%s; panic: %v", entry.Error, p)
					}
					end()
					panic(p)
				}

				end()
			}()

			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}

// Begin captures the request details that are known up front.
func (e *Entry) Begin(r *http.Request) {
	e.Method = r.Method
	e.Path = r.URL.Path
	e.Status = http.StatusOK
	e.UserAgent = r.UserAgent()

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		e.SourceIP = host
	} else {
		e.SourceIP = r.RemoteAddr
	}
}

// End returns a function that writes the audit entry to the context logger.
func (e *Entry) End(ctx context.Context) func() {
	start := time.Now()

	return func() {
		log.Ctx(ctx).WithLevel(Level).
			EmbedObject(e).
			Dur("elapsed", time.Since(start)).
			Msg("audit")
	}
}

// MarshalZerologObject renders the entry as nested dicts, eliding groups
// with no content.
func (e *Entry) MarshalZerologObject(ev *zerolog.Event) {
	request := NewOptionalEvent(nil)
	request.Str("method", e.Method).
		Str("path", e.Path).
		Str("sourceIP", e.SourceIP).
		Str("userAgent", e.UserAgent)
	request.Event().Int("status", e.Status)
	request.Set(ev, "request")

	identity := NewOptionalEvent(nil)
	identity.Str("tenantID", e.TenantID).
		Str("subdomain", e.Subdomain).
		Str("principal", e.PrincipalName).
		Str("origin", e.Origin)
	identity.Set(ev, "identity")

	resolution := NewOptionalEvent(nil)
	resolution.Str("destination", e.Destination).
		Str("retrievalStrategy", e.RetrievalStrategy).
		Str("tokenExchangeStrategy", e.ExchangeStrategy).
		Str("authentication", e.Authentication).
		Int("listed", e.ListedDestinations)
	if e.Destination != "" {
		resolution.Bool("cacheHit", e.CacheHit)
	}
	resolution.Set(ev, "resolution")

	if e.Error != "" {
		ev.Str("error", e.Error)
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}
