package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coopfund/backoffice/internal/middleware"
)

// AuditEntry records one mutating API request.
type AuditEntry struct {
	Time       time.Time `json:"time"`
	TraceID    string    `json:"trace_id,omitempty"`
	User       string    `json:"user"`
	Role       string    `json:"role"`
	Path       string    `json:"path"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
}

// AuditLog keeps the most recent entries in memory and appends every entry
// to an optional JSONL sink.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
	max     int
	sink    io.Writer
}

// NewAuditLog keeps up to max entries. sink may be nil.
func NewAuditLog(max int, sink io.Writer) *AuditLog {
	if max <= 0 {
		max = 200
	}
	return &AuditLog{max: max, sink: sink}
}

// NewFileSink returns a size-rotated JSONL writer, or nil when path is empty.
func NewFileSink(path string) io.WriteCloser {
	if path == "" {
		return nil
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    50,
		MaxBackups: 10,
		MaxAge:     180,
		Compress:   true,
	}
}

func (l *AuditLog) add(entry AuditEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > l.max {
		l.entries = l.entries[len(l.entries)-l.max:]
	}
	if l.sink == nil {
		return
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Persistence failures never fail the request.
	_, _ = l.sink.Write(append(b, '\n'))
}

// List returns up to limit of the newest entries, oldest first.
func (l *AuditLog) List(limit int) []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limit <= 0 || limit > len(l.entries) {
		limit = len(l.entries)
	}
	out := make([]AuditEntry, limit)
	copy(out, l.entries[len(l.entries)-limit:])
	return out
}

// Middleware records every non-safe request after it has been served.
func (l *AuditLog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		rec := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		l.add(AuditEntry{
			Time:       time.Now().UTC(),
			TraceID:    w.Header().Get("X-Trace-ID"),
			User:       middleware.GetUserID(r.Context()),
			Role:       string(middleware.GetUserRole(r.Context())),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
