package session_test

import (
	"testing"

	assert "github.com/stretchr/testify/assert"
	session "github.com/vxmcp/mcp-host/pkg/mcp/session"
)

func Test_session_001(t *testing.T) {
	assert := assert.New(t)
	a := session.Generate()
	b := session.Generate()
	assert.NotEmpty(a)
	assert.NotEqual(a, b)
	assert.Contains(a, "-")
}
