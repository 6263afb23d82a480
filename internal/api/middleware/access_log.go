package middleware

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"
)

// accessLogEntry is one request as a single JSON log line. The request_id
// field joins it with Sentry traces, workspace_id with the tenant.
type accessLogEntry struct {
	Timestamp   string `json:"ts"`
	Method      string `json:"method"`
	Path        string `json:"path"`
	Status      int    `json:"status"`
	Bytes       int    `json:"bytes"`
	DurationMS  int64  `json:"duration_ms"`
	RequestID   string `json:"request_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	RemoteAddr  string `json:"remote_addr,omitempty"`
	UserAgent   string `json:"user_agent,omitempty"`
}

// loggedWriter captures the status and byte count a handler writes.
type loggedWriter struct {
	http.ResponseWriter
	code    int
	written int
}

func (lw *loggedWriter) WriteHeader(code int) {
	lw.code = code
	lw.ResponseWriter.WriteHeader(code)
}

func (lw *loggedWriter) Write(b []byte) (int, error) {
	// A handler that writes without calling WriteHeader implies 200.
	if lw.code == 0 {
		lw.code = http.StatusOK
	}
	n, err := lw.ResponseWriter.Write(b)
	lw.written += n
	return n, err
}

// AccessLog writes one structured JSON line per request after the handler
// returns.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lw := &loggedWriter{ResponseWriter: w}

		next.ServeHTTP(lw, r)

		status := lw.code
		if status == 0 {
			status = http.StatusOK
		}

		workspaceID := GetWorkspaceID(r.Context())
		if workspaceID == "" {
			workspaceID = r.Header.Get("X-Workspace-ID")
		}

		emit(accessLogEntry{
			Timestamp:   start.UTC().Format(time.RFC3339Nano),
			Method:      r.Method,
			Path:        r.URL.Path,
			Status:      status,
			Bytes:       lw.written,
			DurationMS:  time.Since(start).Milliseconds(),
			RequestID:   GetRequestID(r.Context()),
			WorkspaceID: workspaceID,
			RemoteAddr:  clientIP(r),
			UserAgent:   r.UserAgent(),
		})
	})
}

func emit(entry accessLogEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		log.Printf("access_log_marshal_error: %v", err)
		return
	}
	log.Println(string(payload))
}

// clientIP prefers proxy-set headers over the socket peer address.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
