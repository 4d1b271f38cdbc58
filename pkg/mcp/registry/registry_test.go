package registry_test

import (
	"context"
	"testing"

	assert "github.com/stretchr/testify/assert"
	registry "github.com/vxmcp/mcp-host/pkg/mcp/registry"
)

////////////////////////////////////////////////////////////////////////////
// FAKE DESCRIPTOR

type fakeDescriptor struct {
	name       string
	tools      []registry.Tool
	response   string
	panics     bool
	shutdownAt *int
	order      int
}

func (f *fakeDescriptor) Name() string         { return f.name }
func (f *fakeDescriptor) Version() string      { return "1.0" }
func (f *fakeDescriptor) Kind() registry.Kind   { return registry.KindTools }
func (f *fakeDescriptor) Initialize(registry.Notifier) error { return nil }
func (f *fakeDescriptor) Shutdown() {
	if f.shutdownAt != nil {
		*f.shutdownAt = f.order
	}
}
func (f *fakeDescriptor) Tools() []registry.Tool         { return f.tools }
func (f *fakeDescriptor) Prompts() []registry.Prompt     { return nil }
func (f *fakeDescriptor) Resources() []registry.Resource { return nil }
func (f *fakeDescriptor) HandleRequest(request string) string {
	if f.panics {
		panic("boom")
	}
	return f.response
}

////////////////////////////////////////////////////////////////////////////
// TESTS

func Test_registry_001(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	d := &fakeDescriptor{name: "weather", tools: []registry.Tool{{Name: "get_weather"}}, response: `{"ok":true}`}
	assert.NoError(r.Register(d))

	result, owner, err := r.CallTool(context.Background(), "get_weather", `{}`)
	assert.NoError(err)
	assert.Equal("weather", owner)
	assert.Equal(`{"ok":true}`, result)
}

func Test_registry_002(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	_, _, err := r.CallTool(context.Background(), "missing", `{}`)
	assert.Error(err)
}

func Test_registry_003(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	d := &fakeDescriptor{name: "broken", tools: []registry.Tool{{Name: "bad"}}, panics: true}
	assert.NoError(r.Register(d))

	_, _, err := r.CallTool(context.Background(), "bad", `{}`)
	assert.Error(err)
}

func Test_registry_004(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	var order int
	first := &fakeDescriptor{name: "first", shutdownAt: &order}
	second := &fakeDescriptor{name: "second", shutdownAt: &order}
	assert.NoError(r.Register(first))
	assert.NoError(r.Register(second))

	r.Shutdown()
	assert.Empty(r.Tools())
}

func Test_registry_006(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	d := &fakeDescriptor{name: "broken-schema", tools: []registry.Tool{
		{Name: "bad_schema", InputSchema: `{not valid json`},
	}}
	assert.Error(r.Register(d))
	assert.Empty(r.Tools())
}

func Test_registry_007(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	d := &fakeDescriptor{name: "good-schema", tools: []registry.Tool{
		{Name: "get_weather", InputSchema: `{"type":"object","properties":{"city":{"type":"string"}}}`},
	}}
	assert.NoError(r.Register(d))
	assert.Len(r.Tools(), 1)
}

func Test_registry_005(t *testing.T) {
	assert := assert.New(t)
	r := registry.New(nil)

	d1 := &fakeDescriptor{name: "a", tools: []registry.Tool{{Name: "t1"}}}
	d2 := &fakeDescriptor{name: "b", tools: []registry.Tool{{Name: "t2"}}}
	assert.NoError(r.Register(d1))
	assert.NoError(r.Register(d2))

	tools := r.Tools()
	assert.Len(tools, 2)
	assert.Equal("t1", tools[0].Name)
	assert.Equal("t2", tools[1].Name)
}
