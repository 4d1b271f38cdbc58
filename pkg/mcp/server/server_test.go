package server_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	assert "github.com/stretchr/testify/assert"
	registry "github.com/vxmcp/mcp-host/pkg/mcp/registry"
	server "github.com/vxmcp/mcp-host/pkg/mcp/server"
	transport "github.com/vxmcp/mcp-host/pkg/mcp/transport"
)

////////////////////////////////////////////////////////////////////////////
// FAKE TRANSPORT

type fakeTransport struct {
	in  chan string
	out chan string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan string, 8), out: make(chan string, 8)}
}

func (f *fakeTransport) Read(ctx context.Context) (int, string, error) {
	select {
	case payload, ok := <-f.in:
		if !ok {
			return 0, "", nil
		}
		return len(payload), payload, nil
	case <-ctx.Done():
		return 0, "", ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, data string) error {
	f.out <- data
	return nil
}

func (f *fakeTransport) ReadAsync(ctx context.Context) <-chan transport.ReadResult {
	ch := make(chan transport.ReadResult, 1)
	go func() {
		n, payload, err := f.Read(ctx)
		ch <- transport.ReadResult{N: n, Payload: payload, Err: err}
	}()
	return ch
}

func (f *fakeTransport) WriteAsync(ctx context.Context, data string) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- f.Write(ctx, data) }()
	return ch
}

func (f *fakeTransport) Name() string    { return "fake" }
func (f *fakeTransport) Version() string { return "0.1" }
func (f *fakeTransport) Port() int       { return 0 }
func (f *fakeTransport) Stop()           { close(f.in) }

////////////////////////////////////////////////////////////////////////////
// FAKE DESCRIPTOR

type fakeDescriptor struct{}

func (fakeDescriptor) Name() string                              { return "demo" }
func (fakeDescriptor) Version() string                           { return "1.0" }
func (fakeDescriptor) Kind() registry.Kind                        { return registry.KindTools }
func (fakeDescriptor) Initialize(registry.Notifier) error         { return nil }
func (fakeDescriptor) Shutdown()                                  {}
func (fakeDescriptor) Tools() []registry.Tool {
	return []registry.Tool{{Name: "echo", Description: "echoes input"}}
}
func (fakeDescriptor) Prompts() []registry.Prompt     { return nil }
func (fakeDescriptor) Resources() []registry.Resource { return nil }
func (fakeDescriptor) HandleRequest(request string) string {
	return `[{"type":"text","text":"ok"}]`
}

////////////////////////////////////////////////////////////////////////////
// TESTS

func newTestServer(t *testing.T) (*server.Server, *fakeTransport) {
	t.Helper()
	reg := registry.New(nil)
	assert.NoError(t, reg.Register(fakeDescriptor{}))

	s, err := server.New("mcp-host", "0.1.0", server.WithRegistry(reg))
	assert.NoError(t, err)

	ft := newFakeTransport()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.Run(ctx, ft)

	return s, ft
}

func readResponse(t *testing.T, ft *fakeTransport) map[string]any {
	t.Helper()
	select {
	case data := <-ft.out:
		var m map[string]any
		assert.NoError(t, json.Unmarshal([]byte(data), &m))
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for response")
		return nil
	}
}

func Test_server_001(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`
	resp := readResponse(t, ft)

	assert.Equal(float64(1), resp["id"])
	result, ok := resp["result"].(map[string]any)
	assert.True(ok)
	assert.NotNil(result["serverInfo"])
}

func Test_server_002(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","id":"abc","method":"ping"}`
	resp := readResponse(t, ft)
	assert.Equal("abc", resp["id"])
	assert.NotContains(resp, "error")
}

func Test_server_003(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`
	resp := readResponse(t, ft)

	result := resp["result"].(map[string]any)
	tools := result["tools"].([]any)
	assert.Len(tools, 1)
}

func Test_server_004(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{}}}`
	resp := readResponse(t, ft)

	result := resp["result"].(map[string]any)
	content := result["content"].([]any)
	assert.Len(content, 1)
}

func Test_server_005(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","id":4,"method":"resources/subscribe"}`
	resp := readResponse(t, ft)

	errObj := resp["error"].(map[string]any)
	assert.Equal(float64(-32601), errObj["code"])
}

func Test_server_006(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `{"jsonrpc":"2.0","method":"notifications/initialized"}`

	select {
	case <-ft.out:
		assert.Fail("notification must not produce a reply")
	case <-time.After(200 * time.Millisecond):
	}
}

func Test_server_007(t *testing.T) {
	assert := assert.New(t)
	_, ft := newTestServer(t)

	ft.in <- `not json`
	resp := readResponse(t, ft)
	errObj := resp["error"].(map[string]any)
	assert.Equal(float64(-32700), errObj["code"])
}
