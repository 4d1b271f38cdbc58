package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"path/filepath"
	"plugin"
	"runtime"
	"sync"

	jsonschema "github.com/google/jsonschema-go/jsonschema"
	uuid "github.com/google/uuid"
	attribute "go.opentelemetry.io/otel/attribute"
	trace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	mcperr "github.com/vxmcp/mcp-host/pkg/mcp/mcperr"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

// sharedObjectExt is the file extension the host scans for on this
// platform, mirroring the #ifdef ladder in PluginsLoader.cpp::LoadPlugins.
// Windows .dll extensions are not supported: Go's plugin package only
// implements Open on linux and darwin.
var sharedObjectExt = map[string]string{
	"linux":  ".so",
	"darwin": ".dylib",
}

// entry pairs a loaded extension with the shared object it came from,
// mirroring original_source's PluginEntry. id is a registry-local
// identifier distinct from the opaque session id of pkg/mcp/session,
// surfaced in dispatch span attributes and load/shutdown log lines so an
// operator can tell two same-named extensions loaded from different
// shared objects apart; it plays no part in matching, which still goes
// by tool/prompt/resource name in discovery order.
type entry struct {
	id         string
	path       string
	lib        *plugin.Plugin // nil for statically registered descriptors
	descriptor Descriptor
}

// Logger is the subset of go-server's Logger interface the registry needs
// for load/shutdown diagnostics, matching pkg/mcp/server's Logger.
type Logger interface {
	Printf(ctx context.Context, format string, v ...any)
}

// Registry discovers extension modules, keeps them in discovery order for
// deterministic first-match dispatch, and owns their Initialize/Shutdown
// lifecycle.
type Registry struct {
	mu       sync.RWMutex
	entries  []*entry
	notifier Notifier
	tracer   trace.Tracer
	logger   Logger
}

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE

// New creates an empty registry. notifier is handed to every extension's
// Initialize so it can push client notifications.
func New(notifier Notifier) *Registry {
	return &Registry{notifier: notifier, tracer: tracenoop.NewTracerProvider().Tracer("mcp-host/registry")}
}

// SetTracer attaches the tracer used to span each extension dispatch
// (SPEC_FULL.md's DOMAIN STACK: "spans around dispatch and extension
// handle() calls"). Safe to leave unset: a registry built by New already
// carries a no-op tracer.
func (r *Registry) SetTracer(tracer trace.Tracer) {
	if tracer == nil {
		return
	}
	r.mu.Lock()
	r.tracer = tracer
	r.mu.Unlock()
}

// SetLogger attaches the logger used for load/shutdown diagnostics.
func (r *Registry) SetLogger(logger Logger) {
	r.mu.Lock()
	r.logger = logger
	r.mu.Unlock()
}

// Load walks dir recursively and loads every shared object found, in the
// order the filesystem yields them. A single bad extension is skipped and
// its error is returned in the first result; Load only fails if the walk
// itself cannot proceed.
func (r *Registry) Load(dir string) ([]error, error) {
	ext, ok := sharedObjectExt[runtime.GOOS]
	if !ok {
		return nil, mcperr.ErrNotImplemented.Withf("extension loading is unsupported on %s", runtime.GOOS)
	}

	var loadErrs []error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ext {
			return nil
		}
		id, lerr := r.loadOne(path)
		if lerr != nil {
			loadErrs = append(loadErrs, fmt.Errorf("%s: %w", path, lerr))
			return nil
		}
		if r.logger != nil {
			r.logger.Printf(context.Background(), "loaded extension %s from %s", id, path)
		}
		return nil
	})
	if err != nil {
		return loadErrs, err
	}
	return loadErrs, nil
}

// loadOne opens a single shared object, resolves its CreateExtension
// symbol, and initializes the resulting descriptor. Mirrors
// PluginsLoader::LoadPlugin. It returns the registry-local id assigned to
// the new entry, so callers can log which instance of a (possibly
// duplicate-named) extension just loaded.
func (r *Registry) loadOne(path string) (string, error) {
	lib, err := plugin.Open(path)
	if err != nil {
		return "", fmt.Errorf("open: %w", err)
	}

	sym, err := lib.Lookup("CreateExtension")
	if err != nil {
		return "", fmt.Errorf("missing CreateExtension symbol: %w", err)
	}
	create, ok := sym.(func() Descriptor)
	if !ok {
		return "", fmt.Errorf("CreateExtension has the wrong signature")
	}

	descriptor := create()
	if err := descriptor.Initialize(r.notifier); err != nil {
		return "", fmt.Errorf("initialize %s: %w", descriptor.Name(), err)
	}
	if err := validateToolSchemas(descriptor); err != nil {
		return "", fmt.Errorf("%s: %w", descriptor.Name(), err)
	}

	id := uuid.NewString()
	r.mu.Lock()
	r.entries = append(r.entries, &entry{id: id, path: path, lib: lib, descriptor: descriptor})
	r.mu.Unlock()
	return id, nil
}

// Register adds a descriptor directly, bypassing shared-object discovery.
// Used for extensions linked statically into the host binary and for
// tests.
func (r *Registry) Register(descriptor Descriptor) error {
	if err := descriptor.Initialize(r.notifier); err != nil {
		return mcperr.ErrInternalServerError.Withf("initialize %s: %v", descriptor.Name(), err)
	}
	if err := validateToolSchemas(descriptor); err != nil {
		return mcperr.ErrBadParameter.Withf("%s: %v", descriptor.Name(), err)
	}
	r.mu.Lock()
	r.entries = append(r.entries, &entry{id: uuid.NewString(), path: "", lib: nil, descriptor: descriptor})
	r.mu.Unlock()
	return nil
}

// validateToolSchemas rejects a descriptor up front if any tool it
// declares carries a malformed input schema, so tools/list never
// advertises something a client's JSON Schema validator would choke on.
func validateToolSchemas(descriptor Descriptor) error {
	for _, t := range descriptor.Tools() {
		if t.InputSchema == "" {
			continue
		}
		var s jsonschema.Schema
		if err := json.Unmarshal([]byte(t.InputSchema), &s); err != nil {
			return fmt.Errorf("tool %q: invalid input schema: %w", t.Name, err)
		}
	}
	return nil
}

// Shutdown tears every extension down in reverse discovery order,
// mirroring PluginsLoader::UnloadPlugins. Go's plugin package has no
// unload primitive, so the shared object itself stays mapped for the
// process lifetime; only Shutdown() is invoked.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.entries) - 1; i >= 0; i-- {
		e := r.entries[i]
		if r.logger != nil {
			r.logger.Printf(context.Background(), "shutting down extension %s (%s)", e.id, e.descriptor.Name())
		}
		e.descriptor.Shutdown()
	}
	r.entries = nil
}

////////////////////////////////////////////////////////////////////////////
// ENUMERATION

// Tools returns every tool exposed by every loaded extension, in
// discovery order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Tool
	for _, e := range r.entries {
		out = append(out, e.descriptor.Tools()...)
	}
	return out
}

// Prompts returns every prompt exposed by every loaded extension, in
// discovery order.
func (r *Registry) Prompts() []Prompt {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Prompt
	for _, e := range r.entries {
		out = append(out, e.descriptor.Prompts()...)
	}
	return out
}

// Resources returns every resource exposed by every loaded extension, in
// discovery order.
func (r *Registry) Resources() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Resource
	for _, e := range r.entries {
		out = append(out, e.descriptor.Resources()...)
	}
	return out
}

////////////////////////////////////////////////////////////////////////////
// DISPATCH

// CallTool finds the first loaded extension exposing a tool named name
// and forwards request to it.
func (r *Registry) CallTool(ctx context.Context, name, request string) (result string, owner string, err error) {
	return r.dispatch(ctx, func(e *entry) bool {
		for _, t := range e.descriptor.Tools() {
			if t.Name == name {
				return true
			}
		}
		return false
	}, request, "tool", name)
}

// GetPrompt finds the first loaded extension exposing a prompt named name
// and forwards request to it.
func (r *Registry) GetPrompt(ctx context.Context, name, request string) (result string, owner string, err error) {
	return r.dispatch(ctx, func(e *entry) bool {
		for _, p := range e.descriptor.Prompts() {
			if p.Name == name {
				return true
			}
		}
		return false
	}, request, "prompt", name)
}

// ReadResource finds the first loaded extension exposing a resource with
// the given URI and forwards request to it.
func (r *Registry) ReadResource(ctx context.Context, uri, request string) (result string, owner string, err error) {
	return r.dispatch(ctx, func(e *entry) bool {
		for _, res := range e.descriptor.Resources() {
			if res.URI == uri {
				return true
			}
		}
		return false
	}, request, "resource", uri)
}

func (r *Registry) dispatch(ctx context.Context, match func(*entry) bool, request, kindLabel, name string) (result string, owner string, err error) {
	r.mu.RLock()
	var found *entry
	for _, e := range r.entries {
		if match(e) {
			found = e
			break
		}
	}
	tracer := r.tracer
	r.mu.RUnlock()

	if found == nil {
		return "", "", mcperr.ErrNotFound.Withf("%s %q not found", kindLabel, name)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	_, span := tracer.Start(ctx, "registry.dispatch."+kindLabel,
		trace.WithAttributes(
			attribute.String("mcp.extension.name", found.descriptor.Name()),
			attribute.String("mcp.extension.id", found.id),
			attribute.String("mcp."+kindLabel+".name", name),
		))
	defer span.End()

	// Extension code is foreign and untrusted: a panic inside
	// HandleRequest must not take the host down with it.
	defer func() {
		if rec := recover(); rec != nil {
			err = mcperr.ErrInternalServerError.Withf("extension %s panicked handling %s %q: %v", found.descriptor.Name(), kindLabel, name, rec)
			span.RecordError(err)
		}
	}()

	result = found.descriptor.HandleRequest(request)
	return result, found.descriptor.Name(), nil
}
