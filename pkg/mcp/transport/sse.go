package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	session "github.com/vxmcp/mcp-host/pkg/mcp/session"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// SSE implements the legacy Server-Sent-Events transport (spec.md 4.D):
// POST ingress on /messages, GET stream on /sse with an initial "endpoint"
// event carrying a session_id, a 15s keep-alive comment, and permissive
// CORS. Grounded on the client-channel/flush pattern in
// b3c8bea2_SetiabudiResearch-mcp-go-sdk's SSETransport, and on the
// original_source SseTransport handshake semantics.
type SSE struct {
	addr string
	port int
	mux  *http.ServeMux
	srv  *http.Server

	ingress chan string // request bodies awaiting dispatch
	egress  chan string // responses/notifications awaiting the stream

	connected atomic.Bool
	sessionID string

	stopOnce sync.Once
	stopCh   chan struct{}
}

var _ Transport = (*SSE)(nil)

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewSSE creates an SSE transport bound to addr (host:port).
func NewSSE(addr string, port int) *SSE {
	t := &SSE{
		addr:      addr,
		port:      port,
		ingress:   make(chan string, 64),
		egress:    make(chan string, 64),
		sessionID: session.Generate(),
		stopCh:    make(chan struct{}),
	}
	t.mux = http.NewServeMux()
	t.mux.HandleFunc("/sse", t.handleSSE)
	t.mux.HandleFunc("/messages", t.handleMessages)
	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/", t.handleOptions)
	t.srv = &http.Server{Addr: addr, Handler: t.mux}
	return t
}

// ListenAndServe starts the HTTP listener; it blocks until Stop is called
// or the listener fails.
func (t *SSE) ListenAndServe() error {
	err := t.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (t *SSE) Name() string    { return "sse" }
func (t *SSE) Version() string { return "0.1" }
func (t *SSE) Port() int       { return t.port }

func (t *SSE) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.srv.Shutdown(ctx)
	})
}

// Read blocks on the ingress queue filled by POST /messages.
func (t *SSE) Read(ctx context.Context) (int, string, error) {
	select {
	case <-t.stopCh:
		return 0, "", nil
	case <-ctx.Done():
		return 0, "", ctx.Err()
	case payload := <-t.ingress:
		return len(payload), payload, nil
	}
}

// Write enqueues data onto the egress queue, drained by the /sse content
// provider as "data: <json>\n\n" frames. Dropped silently if no client is
// connected, matching spec.md 4.E's "no active stream" rule reused here.
func (t *SSE) Write(ctx context.Context, data string) error {
	if !t.connected.Load() {
		return nil
	}
	select {
	case t.egress <- data:
		return nil
	case <-t.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *SSE) ReadAsync(ctx context.Context) <-chan ReadResult {
	ch := make(chan ReadResult, 1)
	go func() {
		n, payload, err := t.Read(ctx)
		ch <- ReadResult{N: n, Payload: payload, Err: err}
	}()
	return ch
}

func (t *SSE) WriteAsync(ctx context.Context, data string) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- t.Write(ctx, data)
	}()
	return ch
}

////////////////////////////////////////////////////////////////////////////
// HTTP HANDLERS

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key")
}

func (t *SSE) handleOptions(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.NotFound(w, r)
}

func (t *SSE) handleHealth(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

// handleSSE opens the event stream. The first write is the "endpoint"
// handshake event; thereafter the stream relays egress frames and a
// 15s keep-alive comment.
func (t *SSE) handleSSE(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusInternalServerError), "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: endpoint\ndata: /messages?session_id=%s\n\n", t.sessionID)
	flusher.Flush()
	t.connected.Store(true)
	defer t.connected.Store(false)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case data := <-t.egress:
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleMessages accepts a JSON-RPC message to be dispatched.
func (t *SSE) handleMessages(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	if r.Method != http.MethodPost {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), "method not allowed")
		return
	}
	if !t.connected.Load() {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusServiceUnavailable), "no client stream open")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusBadRequest), "failed to read body")
		return
	}
	if len(body) == 0 {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusBadRequest), "empty body")
		return
	}

	select {
	case t.ingress <- string(body):
	case <-t.stopCh:
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusServiceUnavailable), "server stopping")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `{"status":"received"}`)
}
