// Package server implements the mcp host's request/response/notification
// state machine (spec.md 4.A, 4.G): a method table dispatching JSON-RPC
// requests read from a transport.Transport, and a single-writer
// notification pump multiplexing responses and asynchronous notifications
// onto the transport's one output stream. Grounded on the teacher's
// pkg/mcp/server/server.go (the handler-table/processRequest shape) and
// original_source's Server.h (the parser-error budget and single-writer
// discipline).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	errgroup "golang.org/x/sync/errgroup"
	trace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	protocol "github.com/vxmcp/mcp-host/pkg/mcp/protocol"
	registry "github.com/vxmcp/mcp-host/pkg/mcp/registry"
	transport "github.com/vxmcp/mcp-host/pkg/mcp/transport"
)

///////////////////////////////////////////////////////////////////////
// TYPES

// Handler processes one decoded request's params and returns its result,
// or an error translated to a JSON-RPC error object by the caller.
type Handler func(ctx context.Context, params json.RawMessage) (any, error)

// maxParserErrors is the last consecutive malformed frame still tolerated
// before a read loop gives up on the 51st, mirroring original_source
// Server.h's MAX_PARSER_ERRORS (50) and Server.cpp's `> MAX_PARSER_ERRORS`
// trip condition.
const maxParserErrors = 50

// Logger is the subset of go-server's Logger interface the dispatcher
// needs, matching how the teacher's cmd/llm actually calls it
// (ctx.logger.Print/Printf, context-first).
type Logger interface {
	Print(ctx context.Context, v ...any)
	Printf(ctx context.Context, format string, v ...any)
}

// Server is the MCP request dispatcher: it owns the method table, the
// extension registry, and the single-writer notification pump that
// serialises every outbound frame onto the transport.
type Server struct {
	name    string
	version string
	logger  Logger

	mu          sync.RWMutex
	handlers    map[string]Handler
	initialized bool

	registry *registry.Registry

	out      chan string
	stopCh   chan struct{}
	stopOnce sync.Once

	parserErrMu    sync.Mutex
	parserErrCount int

	tracer trace.Tracer

	onParseError func()
	onToolCall   func(name string)
}

///////////////////////////////////////////////////////////////////////
// LIFECYCLE

// Opt configures a Server at construction time, following the teacher's
// functional-options convention (pkg/mcp/opt.go).
type Opt func(*Server) error

// WithRegistry attaches the extension registry backing tools/prompts/resources.
func WithRegistry(r *registry.Registry) Opt {
	return func(s *Server) error {
		s.registry = r
		return nil
	}
}

// WithLogger attaches a logger; if omitted, the server logs nothing.
func WithLogger(l Logger) Opt {
	return func(s *Server) error {
		s.logger = l
		return nil
	}
}

// WithParseErrorHook registers a callback invoked each time a frame fails
// to parse, for metrics (spec.md's telemetry counters).
func WithParseErrorHook(fn func()) Opt {
	return func(s *Server) error {
		s.onParseError = fn
		return nil
	}
}

// WithToolCallHook registers a callback invoked on every successful
// tools/call dispatch, for metrics.
func WithToolCallHook(fn func(name string)) Opt {
	return func(s *Server) error {
		s.onToolCall = fn
		return nil
	}
}

// WithTracer attaches the tracer used to span every dispatched request
// (SPEC_FULL.md's DOMAIN STACK: "spans around dispatch and extension
// handle() calls"). If omitted, a no-op tracer is used.
func WithTracer(tracer trace.Tracer) Opt {
	return func(s *Server) error {
		if tracer != nil {
			s.tracer = tracer
		}
		return nil
	}
}

// New creates a dispatcher identifying itself as name/version in
// initialize responses, with the built-in MCP method table installed.
func New(name, version string, opts ...Opt) (*Server, error) {
	s := &Server{
		name:     name,
		version:  version,
		handlers: make(map[string]Handler),
		out:      make(chan string, 256),
		stopCh:   make(chan struct{}),
		tracer:   tracenoop.NewTracerProvider().Tracer("mcp-host/server"),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.installBuiltins()
	return s, nil
}

// Override replaces the handler for an already-registered method, for
// callers that want to customise built-in behaviour (tests, or a host
// embedding extra logic). It fails if method has no existing entry: the
// method table is fixed to the MCP method set, not an open registry.
func (s *Server) Override(method string, h Handler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.handlers[method]; !ok {
		return false
	}
	s.handlers[method] = h
	return true
}

func (s *Server) handlerFunc(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// AttachRegistry sets the extension registry backing tools/prompts/
// resources after construction. Exists alongside WithRegistry because the
// registry itself needs the server as its Notifier before extensions are
// loaded, so callers typically build the server first, then the registry
// (passing the server in as the notifier), then attach it here.
func (s *Server) AttachRegistry(r *registry.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

///////////////////////////////////////////////////////////////////////
// NOTIFICATIONS

// Notify pushes notificationJSON onto the outbound pump, tagged as coming
// from extensionName. It satisfies registry.Notifier so extensions can
// push asynchronous notifications (spec.md 4.H).
func (s *Server) Notify(extensionName, notificationJSON string) {
	if s.logger != nil {
		s.logger.Printf(context.Background(), "notification from %s: %s", extensionName, notificationJSON)
	}
	s.enqueue(notificationJSON)
}

// SendNotification marshals and enqueues a built-in notification (e.g.
// progress or log) for delivery by the writer pump.
func (s *Server) SendNotification(n *protocol.Notification) error {
	data, err := n.Marshal()
	if err != nil {
		return err
	}
	s.enqueue(data)
	return nil
}

func (s *Server) enqueue(data string) {
	select {
	case s.out <- data:
	case <-s.stopCh:
	}
}

///////////////////////////////////////////////////////////////////////
// RUN LOOP

// Run drives t until ctx is cancelled, the transport stops, or the
// parser-error budget is exhausted. The writer pump and the reader loop
// are two independent long-running goroutines; an errgroup.Group
// supervises both so that the reader exiting (a read error, a stopped
// transport, ctx cancellation) tears the writer down too, instead of
// leaking a writer with nobody left to feed it. A failed write is only
// logged; the writer keeps running.
func (s *Server) Run(ctx context.Context, t transport.Transport) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.runWriter(gctx, t)
		return nil
	})

	g.Go(func() error {
		defer s.stopOnce.Do(func() { close(s.stopCh) })
		return s.runReader(gctx, t)
	})

	err := g.Wait()
	s.stopOnce.Do(func() { close(s.stopCh) })
	return err
}

// runReader reads frames and dispatches each on its own goroutine so that
// a slow tool call never blocks the next read.
func (s *Server) runReader(ctx context.Context, t transport.Transport) error {
	var reqWG sync.WaitGroup
	defer reqWG.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, payload, err := t.Read(ctx)
		if err != nil {
			return err
		}
		if n == 0 && payload == "" {
			// Transport stopped (EOF, or Stop() called).
			return nil
		}

		reqWG.Add(1)
		go func(payload string) {
			defer reqWG.Done()
			s.processFrame(ctx, t, payload)
		}(payload)
	}
}

// runWriter is the sole goroutine that ever calls t.Write, serialising
// responses and notifications onto one output stream (spec.md 4.G).
func (s *Server) runWriter(ctx context.Context, t transport.Transport) {
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case data := <-s.out:
			if err := t.Write(ctx, data); err != nil && s.logger != nil {
				s.logger.Printf(ctx, "write failed: %v", err)
			}
		}
	}
}

// processFrame decodes one frame and dispatches it, counting consecutive
// parse failures against the parser-error budget.
func (s *Server) processFrame(ctx context.Context, t transport.Transport, payload string) {
	var req protocol.Request
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		if s.onParseError != nil {
			s.onParseError()
		}
		s.recordParseError()
		s.enqueue(mustMarshal(protocol.NewError(nil, protocol.CodeParseError, "parse error: "+err.Error())))
		if s.budgetExhausted() {
			if s.logger != nil {
				s.logger.Printf(ctx, "%d consecutive parse errors, stopping transport %s", s.parseErrorCount(), t.Name())
			}
			t.Stop()
		}
		return
	}
	s.resetParseErrors()

	resp := s.dispatch(ctx, &req)
	if resp == nil {
		return // notification: no reply
	}
	s.enqueue(mustMarshal(resp))
}

func (s *Server) recordParseError() {
	s.parserErrMu.Lock()
	s.parserErrCount++
	s.parserErrMu.Unlock()
}

func (s *Server) resetParseErrors() {
	s.parserErrMu.Lock()
	s.parserErrCount = 0
	s.parserErrMu.Unlock()
}

func (s *Server) parseErrorCount() int {
	s.parserErrMu.Lock()
	defer s.parserErrMu.Unlock()
	return s.parserErrCount
}

// budgetExhausted trips on the 51st consecutive parse error (maxParserErrors
// itself, 50, is still tolerated), matching original_source Server.cpp's
// `if (++parserErrors_ > MAX_PARSER_ERRORS)`.
func (s *Server) budgetExhausted() bool {
	s.parserErrMu.Lock()
	defer s.parserErrMu.Unlock()
	return s.parserErrCount > maxParserErrors
}

func mustMarshal(resp *protocol.Response) string {
	data, err := json.Marshal(resp)
	if err != nil {
		// Marshalling our own Response type cannot fail in practice.
		return `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`
	}
	return string(data)
}

///////////////////////////////////////////////////////////////////////
// DISPATCH

// dispatch routes a decoded request to its handler. It returns nil for
// notifications (no reply is ever sent) and a Response for everything
// else, success or failure.
func (s *Server) dispatch(ctx context.Context, req *protocol.Request) *protocol.Response {
	ctx, span := s.tracer.Start(ctx, "mcp.dispatch."+req.Method)
	defer span.End()

	if req.IsNotification() {
		// Inbound notifications are accepted silently whether or not this
		// host does anything with them; unknown ones are ignored too, per
		// JSON-RPC 2.0's "no reply to notifications" rule.
		if h := s.lookup(req.Method); h != nil {
			_, _ = h(ctx, req.Params)
		}
		return nil
	}

	h := s.lookup(req.Method)
	if h == nil {
		return protocol.NewError(req.ID, protocol.CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}

	result, err := h(ctx, req.Params)
	if err != nil {
		span.RecordError(err)
		return protocol.NewError(req.ID, protocol.CodeInternalError, err.Error())
	}
	return protocol.NewResult(req.ID, result)
}

func (s *Server) lookup(method string) Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handlers[method]
}
