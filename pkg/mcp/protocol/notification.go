package protocol

import "encoding/json"

////////////////////////////////////////////////////////////////////////////
// TYPES

// Notification is an outbound JSON-RPC 2.0 message without an id. Per the
// JSON-RPC spec, recipients MUST NOT reply to it.
type Notification struct {
	Version string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

////////////////////////////////////////////////////////////////////////////
// BUILDERS

// NotificationLog builds a notifications/message envelope.
func NotificationLog(level, data string) *Notification {
	return &Notification{
		Version: RPCVersion,
		Method:  "notifications/message",
		Params: map[string]any{
			"level": level,
			"data":  data,
		},
	}
}

// NotificationProgress builds a notifications/progress envelope.
func NotificationProgress(token string, progress, total int, message string) *Notification {
	return &Notification{
		Version: RPCVersion,
		Method:  "notifications/progress",
		Params: map[string]any{
			"progressToken": token,
			"progress":      progress,
			"total":         total,
			"message":       message,
		},
	}
}

// Marshal serializes the notification to a JSON string.
func (n *Notification) Marshal() (string, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// inboundNotificationMethods lists the MCP client->server notifications the
// dispatcher accepts without producing a reply (spec.md 6).
var inboundNotificationMethods = map[string]bool{
	"notifications/initialized":            true,
	"notifications/cancelled":              true,
	"notifications/progress":               true,
	"notifications/roots/list_changed":     true,
	"notifications/resources/list_changed": true,
	"notifications/resources/updated":      true,
	"notifications/prompts/list_changed":   true,
	"notifications/tools/list_changed":     true,
	"notifications/message":                true,
}

// IsInboundNotification reports whether method is one of the no-reply
// notifications accepted from the client.
func IsInboundNotification(method string) bool {
	return inboundNotificationMethods[method]
}
