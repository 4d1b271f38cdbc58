package server

import (
	"context"
	"encoding/json"
	"fmt"

	protocol "github.com/vxmcp/mcp-host/pkg/mcp/protocol"
)

////////////////////////////////////////////////////////////////////////////
// CAPABILITIES

// capabilities describes what this host advertises in its initialize
// response. handleInitialize sets resources.subscribe to true and an empty
// logging object, even though resources/subscribe and logging/setLevel
// have no handler and answer MethodNotFound.
type capabilities struct {
	Prompts   map[string]any `json:"prompts"`
	Tools     map[string]any `json:"tools"`
	Resources map[string]any `json:"resources"`
	Logging   map[string]any `json:"logging"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type initializeResult struct {
	ProtocolVersion string       `json:"protocolVersion"`
	Capabilities    capabilities `json:"capabilities"`
	ServerInfo      serverInfo   `json:"serverInfo"`
}

////////////////////////////////////////////////////////////////////////////
// INSTALLATION

// installBuiltins populates the fixed MCP method table. Methods the spec
// marks as Non-goals (resources/subscribe, resources/unsubscribe,
// logging/setLevel, completion/complete, roots/list) are deliberately
// absent: dispatch falls through to MethodNotFound for them, exactly as
// it would for any unrecognised method.
func (s *Server) installBuiltins() {
	s.handlerFunc("initialize", s.handleInitialize)
	s.handlerFunc("ping", s.handlePing)
	s.handlerFunc("tools/list", s.handleToolsList)
	s.handlerFunc("tools/call", s.handleToolsCall)
	s.handlerFunc("prompts/list", s.handlePromptsList)
	s.handlerFunc("prompts/get", s.handlePromptsGet)
	s.handlerFunc("resources/list", s.handleResourcesList)
	s.handlerFunc("resources/read", s.handleResourcesRead)
	s.handlerFunc("notifications/initialized", s.handleInitialized)
}

////////////////////////////////////////////////////////////////////////////
// LIFECYCLE METHODS

type initializeParams struct {
	ProtocolVersion string `json:"protocolVersion"`
}

// handleInitialize echoes the client's requested protocolVersion back
// verbatim (spec.md 4.G) rather than asserting this host's own constant,
// and advertises capabilities in the literal shape original_source's
// Server.cpp builds them: empty-object tools/prompts, resources with
// subscribe:true (subscriptions themselves are unimplemented — the
// advertised capability and the actual resources/subscribe handler are
// tracked separately, see DESIGN.md), and an empty logging object.
func (s *Server) handleInitialize(ctx context.Context, params json.RawMessage) (any, error) {
	var p initializeParams
	_ = json.Unmarshal(params, &p)

	result := initializeResult{
		ProtocolVersion: p.ProtocolVersion,
		ServerInfo:      serverInfo{Name: s.name, Version: s.version},
	}
	result.Capabilities.Tools = map[string]any{}
	result.Capabilities.Prompts = map[string]any{}
	result.Capabilities.Resources = map[string]any{"subscribe": true}
	result.Capabilities.Logging = map[string]any{}
	return result, nil
}

func (s *Server) handleInitialized(ctx context.Context, params json.RawMessage) (any, error) {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil, nil
}

func (s *Server) handlePing(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]any{}, nil
}

////////////////////////////////////////////////////////////////////////////
// TOOLS

func (s *Server) handleToolsList(ctx context.Context, params json.RawMessage) (any, error) {
	tools := s.registry.Tools()
	out := make([]map[string]any, 0, len(tools))
	for _, t := range tools {
		entry := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if t.InputSchema != "" {
			var schema any
			if err := json.Unmarshal([]byte(t.InputSchema), &schema); err == nil {
				entry["inputSchema"] = schema
			}
		}
		out = append(out, entry)
	}
	return map[string]any{"tools": out}, nil
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// toolCallResult is the tools/call result envelope, following MCPBuilder's
// content-array convention.
type toolCallResult struct {
	Content []*protocol.Content `json:"content"`
	IsError bool                `json:"isError,omitempty"`
}

func (s *Server) handleToolsCall(ctx context.Context, params json.RawMessage) (any, error) {
	var p toolCallParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("invalid params: name is required")
	}

	args := string(p.Arguments)
	if args == "" {
		args = "{}"
	}

	raw, owner, err := s.registry.CallTool(ctx, p.Name, args)
	if err != nil {
		return nil, err
	}
	if s.onToolCall != nil {
		s.onToolCall(p.Name)
	}

	var content []*protocol.Content
	if jsonErr := json.Unmarshal([]byte(raw), &content); jsonErr != nil {
		// The extension's output did not decode as a content array: report
		// this back to the client as a tool-level error rather than
		// failing the whole request, per spec.md's malformed-extension-
		// output handling.
		if s.logger != nil {
			s.logger.Printf(ctx, "extension %s returned malformed tool output for %q: %v", owner, p.Name, jsonErr)
		}
		return toolCallResult{
			Content: []*protocol.Content{protocol.TextContent(fmt.Sprintf("extension %s returned malformed output", owner))},
			IsError: true,
		}, nil
	}

	return toolCallResult{Content: content}, nil
}

////////////////////////////////////////////////////////////////////////////
// PROMPTS

func (s *Server) handlePromptsList(ctx context.Context, params json.RawMessage) (any, error) {
	prompts := s.registry.Prompts()
	out := make([]map[string]any, 0, len(prompts))
	for _, p := range prompts {
		entry := map[string]any{
			"name":        p.Name,
			"description": p.Description,
		}
		if p.Arguments != "" {
			var args any
			if err := json.Unmarshal([]byte(p.Arguments), &args); err == nil {
				entry["arguments"] = args
			}
		}
		out = append(out, entry)
	}
	return map[string]any{"prompts": out}, nil
}

type promptGetParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handlePromptsGet(ctx context.Context, params json.RawMessage) (any, error) {
	var p promptGetParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.Name == "" {
		return nil, fmt.Errorf("invalid params: name is required")
	}

	args := string(p.Arguments)
	if args == "" {
		args = "{}"
	}

	raw, owner, err := s.registry.GetPrompt(ctx, p.Name, args)
	if err != nil {
		return nil, err
	}

	var result map[string]any
	if jsonErr := json.Unmarshal([]byte(raw), &result); jsonErr != nil {
		if s.logger != nil {
			s.logger.Printf(ctx, "extension %s returned malformed prompt output for %q: %v", owner, p.Name, jsonErr)
		}
		return map[string]any{"description": "", "messages": []any{}}, nil
	}
	return result, nil
}

////////////////////////////////////////////////////////////////////////////
// RESOURCES

func (s *Server) handleResourcesList(ctx context.Context, params json.RawMessage) (any, error) {
	resources := s.registry.Resources()
	out := make([]map[string]any, 0, len(resources))
	for _, r := range resources {
		out = append(out, map[string]any{
			"name":        r.Name,
			"description": r.Description,
			"uri":         r.URI,
			"mimeType":    r.MimeType,
		})
	}
	return map[string]any{"resources": out}, nil
}

type resourcesReadParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleResourcesRead(ctx context.Context, params json.RawMessage) (any, error) {
	var p resourcesReadParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	if p.URI == "" {
		return nil, fmt.Errorf("invalid params: uri is required")
	}

	raw, owner, err := s.registry.ReadResource(ctx, p.URI, "{}")
	if err != nil {
		return nil, err
	}

	var contents []*protocol.Resource
	if jsonErr := json.Unmarshal([]byte(raw), &contents); jsonErr != nil {
		if s.logger != nil {
			s.logger.Printf(ctx, "extension %s returned malformed resource output for %q: %v", owner, p.URI, jsonErr)
		}
		return map[string]any{"contents": []any{}}, nil
	}
	return map[string]any{"contents": contents}, nil
}
