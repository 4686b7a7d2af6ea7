package telegram

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMediaContentTag_RoundTrips(t *testing.T) {
	tag := mediaContentTag("photo", "file123", "a caption")
	kind, fileID, caption, ok := parseMediaContentTag(tag)

	assert.True(t, ok)
	assert.Equal(t, "photo", kind)
	assert.Equal(t, "file123", fileID)
	assert.Equal(t, "a caption", caption)
}

func TestParseMediaContentTag_PlainText_NotRecognized(t *testing.T) {
	_, _, _, ok := parseMediaContentTag("just a regular message")
	assert.False(t, ok)
}

func TestParseMediaContentTag_NoCaption(t *testing.T) {
	kind, fileID, caption, ok := parseMediaContentTag("telegram-media:voice:file456:")
	assert.True(t, ok)
	assert.Equal(t, "voice", kind)
	assert.Equal(t, "file456", fileID)
	assert.Empty(t, caption)
}
