package telemetry_test

import (
	"context"
	"testing"

	assert "github.com/stretchr/testify/assert"
	telemetry "github.com/vxmcp/mcp-host/pkg/mcp/telemetry"
)

func Test_telemetry_001(t *testing.T) {
	assert := assert.New(t)
	p, err := telemetry.New(context.Background(), "", "", "mcp-host-test")
	assert.NoError(err)
	assert.NotNil(p.Tracer())

	// No-op provider: these must not panic even though no collector exists.
	p.IncParseError()
	p.IncToolCall("echo")
	assert.NoError(p.Shutdown(context.Background()))
}

func Test_telemetry_002(t *testing.T) {
	assert := assert.New(t)
	var p *telemetry.Provider
	assert.NotPanics(func() {
		p.IncParseError()
		p.IncToolCall("echo")
	})
	assert.NoError(p.Shutdown(context.Background()))
}
