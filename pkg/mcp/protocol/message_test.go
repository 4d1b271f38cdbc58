package protocol_test

import (
	"encoding/json"
	"testing"

	assert "github.com/stretchr/testify/assert"
	protocol "github.com/vxmcp/mcp-host/pkg/mcp/protocol"
)

func Test_message_001(t *testing.T) {
	assert := assert.New(t)
	resp := protocol.NewResult(json.RawMessage(`1`), map[string]any{"a": 1})
	assert.Equal(protocol.RPCVersion, resp.Version)
	assert.Nil(resp.Error)
	assert.NotNil(resp.Result)
}

func Test_message_002(t *testing.T) {
	assert := assert.New(t)
	resp := protocol.NewError(json.RawMessage(`2`), protocol.CodeMethodNotFound, "Method not found")
	assert.Nil(resp.Result)
	assert.NotNil(resp.Error)
	assert.Equal(protocol.CodeMethodNotFound, resp.Error.Code)
}

func Test_message_003(t *testing.T) {
	assert := assert.New(t)
	resp := protocol.NewError(nil, protocol.CodeParseError, "Parse error")
	assert.Equal(json.RawMessage("null"), resp.ID)
}

func Test_message_004(t *testing.T) {
	assert := assert.New(t)
	req := &protocol.Request{Method: "notifications/initialized"}
	assert.True(req.IsNotification())

	req2 := &protocol.Request{Method: "ping", ID: json.RawMessage(`1`)}
	assert.False(req2.IsNotification())
}
