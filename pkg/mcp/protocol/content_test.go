package protocol_test

import (
	"testing"

	assert "github.com/stretchr/testify/assert"
	protocol "github.com/vxmcp/mcp-host/pkg/mcp/protocol"
)

func Test_content_001(t *testing.T) {
	assert := assert.New(t)
	c := protocol.TextContent("hello")
	assert.Equal("text", c.Type)
	assert.Equal("hello", c.Text)
}

func Test_content_002(t *testing.T) {
	assert := assert.New(t)
	c := protocol.ImageContent([]byte("abc"), "image/png")
	assert.Equal("image", c.Type)
	assert.Equal("image/png", c.MimeType)
	assert.NotEmpty(c.Data)
}

func Test_content_003(t *testing.T) {
	assert := assert.New(t)
	c := protocol.ResourceContent("file:///a.txt", "text/plain", "body")
	assert.Equal("resource", c.Type)
	assert.Equal("file:///a.txt", c.Resource.URI)
}
