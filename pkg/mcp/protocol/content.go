package protocol

import "encoding/base64"

////////////////////////////////////////////////////////////////////////////
// TYPES

// Content is a single piece of tool/prompt/resource content, as returned
// in a tools/call result's "content" array.
type Content struct {
	Type     string    `json:"type"` // "text", "image", "audio", "resource"
	Text     string    `json:"text,omitempty"`
	Data     string    `json:"data,omitempty"`     // base64, for image/audio
	MimeType string    `json:"mimeType,omitempty"` // for image/audio/resource
	Resource *Resource `json:"resource,omitempty"`
}

// Resource is an embedded resource reference inside a Content item.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
}

////////////////////////////////////////////////////////////////////////////
// BUILDERS

// TextContent builds a text content item.
func TextContent(text string) *Content {
	return &Content{Type: "text", Text: text}
}

// ImageContent base64-encodes data and builds an image content item.
func ImageContent(data []byte, mimeType string) *Content {
	return &Content{
		Type:     "image",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// AudioContent base64-encodes data and builds an audio content item.
func AudioContent(data []byte, mimeType string) *Content {
	return &Content{
		Type:     "audio",
		Data:     base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
	}
}

// ResourceContent builds a resource content item carrying inline text.
func ResourceContent(uri, mimeType, text string) *Content {
	return &Content{
		Type: "resource",
		Resource: &Resource{
			URI:      uri,
			MimeType: mimeType,
			Text:     text,
		},
	}
}
