// Package registry discovers and dispatches to extension modules: shared
// objects loaded at runtime via Go's plugin package, each exporting tools,
// prompts, and/or resources to the host (spec.md 4.F). Grounded on
// original_source's PluginAPI.h (the vtable contract) and
// PluginsLoader.h/.cpp (discovery and lifecycle).
package registry

// Kind mirrors original_source's PluginType enum: an extension declares
// the single facet of the protocol it contributes to.
type Kind int

const (
	KindTools Kind = iota
	KindPrompts
	KindResources
)

func (k Kind) String() string {
	switch k {
	case KindTools:
		return "tools"
	case KindPrompts:
		return "prompts"
	case KindResources:
		return "resources"
	default:
		return "unknown"
	}
}

// Tool describes one callable tool contributed by an extension, mirroring
// original_source's PluginTool.
type Tool struct {
	Name        string
	Description string
	InputSchema string // JSON Schema, as text
}

// Prompt describes one prompt template contributed by an extension,
// mirroring original_source's PluginPrompt.
type Prompt struct {
	Name        string
	Description string
	Arguments   string // JSON array of argument descriptors, as text
}

// Resource describes one readable resource contributed by an extension,
// mirroring original_source's PluginResource.
type Resource struct {
	Name        string
	Description string
	URI         string
	MimeType    string
}

// Notifier is the callback surface extensions use to push client
// notifications asynchronously, standing in for original_source's
// NotificationSystem.SendToClient function pointer.
type Notifier interface {
	Notify(extensionName, notificationJSON string)
}

// Descriptor is the Go analog of original_source's PluginAPI vtable: the
// full contract an extension module must satisfy. A shared object loaded
// by the registry exports a CreateExtension func() Descriptor symbol (and
// may export DestroyExtension func(Descriptor) for symmetry, though Go's
// plugin package has no unload primitive to pair it with).
type Descriptor interface {
	Name() string
	Version() string
	Kind() Kind

	// Initialize prepares the extension for use. notifier lets the
	// extension push asynchronous notifications to connected clients;
	// the host supplies it before the first call.
	Initialize(notifier Notifier) error

	// HandleRequest dispatches one JSON-encoded call into the extension
	// and returns its JSON-encoded result as text, mirroring
	// PluginAPI.HandleRequest's char*(const char*) signature.
	HandleRequest(request string) string

	Shutdown()

	Tools() []Tool
	Prompts() []Prompt
	Resources() []Resource
}
