package protocol_test

import (
	"testing"

	assert "github.com/stretchr/testify/assert"
	protocol "github.com/vxmcp/mcp-host/pkg/mcp/protocol"
)

func Test_notification_001(t *testing.T) {
	assert := assert.New(t)
	n := protocol.NotificationProgress("tok", 10, 100, "working")
	data, err := n.Marshal()
	assert.NoError(err)
	assert.Contains(data, `"progressToken":"tok"`)
	assert.Contains(data, `"method":"notifications/progress"`)
}

func Test_notification_002(t *testing.T) {
	assert := assert.New(t)
	assert.True(protocol.IsInboundNotification("notifications/initialized"))
	assert.False(protocol.IsInboundNotification("tools/list"))
}
