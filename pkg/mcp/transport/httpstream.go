package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	httpresponse "github.com/mutablelogic/go-server/pkg/httpresponse"
	session "github.com/vxmcp/mcp-host/pkg/mcp/session"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// HTTPStream implements the streamable HTTP transport (spec.md 4.E): POST
// /mcp for requests/notifications with per-request response correlation,
// GET /mcp for server-initiated SSE push, DELETE /mcp to end the session,
// and Mcp-Session-Id enforcement. Grounded on
// da844fc4_modelcontextprotocol-go-sdk's StreamableServerTransport,
// simplified to this spec's single-session-per-transport-instance model.
type HTTPStream struct {
	addr string
	port int
	mux  *http.ServeMux
	srv  *http.Server

	ingress chan string

	mu            sync.Mutex
	sessionID     string
	sessionActive bool

	pendingMu sync.Mutex
	pending   map[string]chan string

	pushActive atomic.Bool
	pushQueue  chan string

	stopCh   chan struct{}
	stopOnce sync.Once
}

var _ Transport = (*HTTPStream)(nil)

const pendingResponseTimeout = 30 * time.Second

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// NewHTTPStream creates a streamable HTTP transport bound to addr.
func NewHTTPStream(addr string, port int) *HTTPStream {
	t := &HTTPStream{
		addr:      addr,
		port:      port,
		ingress:   make(chan string, 64),
		pending:   make(map[string]chan string),
		pushQueue: make(chan string, 64),
		stopCh:    make(chan struct{}),
	}
	t.mux = http.NewServeMux()
	t.mux.HandleFunc("/mcp", t.handleMCP)
	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/", t.handleOptions)
	t.srv = &http.Server{Addr: addr, Handler: t.mux}
	return t
}

// ListenAndServe starts the HTTP listener; it blocks until Stop is called
// or the listener fails.
func (t *HTTPStream) ListenAndServe() error {
	err := t.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

////////////////////////////////////////////////////////////////////////////
// PUBLIC METHODS

func (t *HTTPStream) Name() string    { return "http-stream" }
func (t *HTTPStream) Version() string { return "0.1" }
func (t *HTTPStream) Port() int       { return t.port }

// Handler returns the transport's HTTP mux, for embedding in a caller's
// own server or for exercising the /mcp, /health and OPTIONS routes
// directly in tests without binding a real listener.
func (t *HTTPStream) Handler() http.Handler { return t.mux }

func (t *HTTPStream) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopCh)
		t.pendingMu.Lock()
		for id, ch := range t.pending {
			ch <- ""
			delete(t.pending, id)
		}
		t.pendingMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.srv.Shutdown(ctx)
	})
}

func (t *HTTPStream) Read(ctx context.Context) (int, string, error) {
	select {
	case <-t.stopCh:
		return 0, "", nil
	case <-ctx.Done():
		return 0, "", ctx.Err()
	case payload := <-t.ingress:
		return len(payload), payload, nil
	}
}

// Write routes a dispatcher-produced JSON message either to the pending
// POST slot awaiting that id's response, or, if it carries no completable
// id, to the SSE push queue as a server-initiated notification. Pushes are
// dropped silently if no GET stream is active.
func (t *HTTPStream) Write(ctx context.Context, data string) error {
	var probe struct {
		ID     json.RawMessage `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &probe); err == nil && len(probe.ID) > 0 && (len(probe.Result) > 0 || len(probe.Error) > 0) {
		key := normalizeID(probe.ID)
		t.pendingMu.Lock()
		ch, ok := t.pending[key]
		if ok {
			delete(t.pending, key)
		}
		t.pendingMu.Unlock()
		if ok {
			ch <- data
			return nil
		}
	}

	if !t.pushActive.Load() {
		return nil
	}
	select {
	case t.pushQueue <- data:
	case <-t.stopCh:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Push queue full: drop rather than block the writer.
	}
	return nil
}

func (t *HTTPStream) ReadAsync(ctx context.Context) <-chan ReadResult {
	ch := make(chan ReadResult, 1)
	go func() {
		n, payload, err := t.Read(ctx)
		ch <- ReadResult{N: n, Payload: payload, Err: err}
	}()
	return ch
}

func (t *HTTPStream) WriteAsync(ctx context.Context, data string) <-chan error {
	ch := make(chan error, 1)
	go func() {
		ch <- t.Write(ctx, data)
	}()
	return ch
}

////////////////////////////////////////////////////////////////////////////
// HTTP HANDLERS

func (t *HTTPStream) handleOptions(w http.ResponseWriter, r *http.Request) {
	setHTTPStreamCORSHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.NotFound(w, r)
}

func (t *HTTPStream) handleHealth(w http.ResponseWriter, r *http.Request) {
	setHTTPStreamCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, `{"status":"ok"}`)
}

func setHTTPStreamCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, x-api-key, Mcp-Session-Id")
	w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
}

func (t *HTTPStream) handleMCP(w http.ResponseWriter, r *http.Request) {
	setHTTPStreamCORSHeaders(w)
	switch r.Method {
	case http.MethodPost:
		t.servePOST(w, r)
	case http.MethodGet:
		t.serveGET(w, r)
	case http.MethodDelete:
		t.serveDELETE(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusMethodNotAllowed), "method not allowed")
	}
}

func (t *HTTPStream) servePOST(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusUnsupportedMediaType), "Content-Type must be application/json")
		return
	}
	if accept := r.Header.Get("Accept"); accept != "" && !strings.Contains(accept, "application/json") {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusNotAcceptable), "Accept must include application/json")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusBadRequest), "failed to read body")
		return
	}
	if len(body) == 0 || !json.Valid(body) {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusBadRequest), "body must be valid JSON")
		return
	}

	var probe struct {
		Method string          `json:"method"`
		ID     json.RawMessage `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)

	if probe.Method == "initialize" {
		t.mu.Lock()
		if !t.sessionActive {
			t.sessionID = session.Generate()
			t.sessionActive = true
		}
		sid := t.sessionID
		t.mu.Unlock()
		w.Header().Set("Mcp-Session-Id", sid)
	} else if !t.checkSession(w, r) {
		return
	}

	isNotification := len(probe.ID) == 0 || string(probe.ID) == "null"

	if isNotification {
		select {
		case t.ingress <- string(body):
		case <-t.stopCh:
			_ = httpresponse.Error(w, httpresponse.Err(http.StatusServiceUnavailable), "server stopping")
			return
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	key := normalizeID(probe.ID)
	respCh := make(chan string, 1)
	t.pendingMu.Lock()
	t.pending[key] = respCh
	t.pendingMu.Unlock()

	select {
	case t.ingress <- string(body):
	case <-t.stopCh:
		t.pendingMu.Lock()
		delete(t.pending, key)
		t.pendingMu.Unlock()
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusServiceUnavailable), "server stopping")
		return
	}

	select {
	case resp := <-respCh:
		if resp == "" {
			_ = httpresponse.Error(w, httpresponse.Err(http.StatusInternalServerError), "internal error")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, resp)
	case <-time.After(pendingResponseTimeout):
		t.pendingMu.Lock()
		delete(t.pending, key)
		t.pendingMu.Unlock()
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusGatewayTimeout), "response timeout")
	}
}

func (t *HTTPStream) serveGET(w http.ResponseWriter, r *http.Request) {
	if !t.checkSession(w, r) {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusInternalServerError), "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	t.pushActive.Store(true)
	defer t.pushActive.Store(false)

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
		case data := <-t.pushQueue:
			if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (t *HTTPStream) serveDELETE(w http.ResponseWriter, r *http.Request) {
	if !t.checkSession(w, r) {
		return
	}
	t.mu.Lock()
	t.sessionActive = false
	t.mu.Unlock()

	t.pendingMu.Lock()
	for id, ch := range t.pending {
		ch <- ""
		delete(t.pending, id)
	}
	t.pendingMu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// checkSession enforces the Mcp-Session-Id header against the active
// session, writing a 404 and returning false on mismatch or absence.
func (t *HTTPStream) checkSession(w http.ResponseWriter, r *http.Request) bool {
	t.mu.Lock()
	sid, active := t.sessionID, t.sessionActive
	t.mu.Unlock()

	header := r.Header.Get("Mcp-Session-Id")
	if !active || header == "" || header != sid {
		_ = httpresponse.Error(w, httpresponse.Err(http.StatusNotFound), "session not found")
		return false
	}
	return true
}

// normalizeID maps a JSON-RPC id (string or number) to a stable map key.
func normalizeID(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}
