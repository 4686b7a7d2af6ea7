package ws

import (
	"testing"

	"anonchat/internal/models"

	"github.com/stretchr/testify/assert"
)

func newTestClient() *Client {
	return &Client{
		userID: "user-1",
		send:   make(chan models.Envelope, 2),
	}
}

func TestSend_EnqueuesWithinCapacity(t *testing.T) {
	c := newTestClient()
	err := c.Send(models.Envelope{Kind: models.EvSearchStatus})
	assert.NoError(t, err)
	assert.Len(t, c.send, 1)
}

func TestSend_BufferFull_ClosesAndErrors(t *testing.T) {
	c := newTestClient()
	assert.NoError(t, c.Send(models.Envelope{Kind: models.EvSearchStatus}))
	assert.NoError(t, c.Send(models.Envelope{Kind: models.EvSearchStatus}))

	err := c.Send(models.Envelope{Kind: models.EvSearchStatus})
	assert.Error(t, err)
}

func TestUserID_ReturnsConstructorValue(t *testing.T) {
	c := newTestClient()
	assert.Equal(t, "user-1", c.UserID())
}

func TestSetSessionID_UpdatesSessionID(t *testing.T) {
	c := newTestClient()
	c.SetSessionID("sess-42")
	assert.Equal(t, "sess-42", c.sessionID)
}

func TestOnClose_RegistersCallback(t *testing.T) {
	c := newTestClient()
	called := false
	c.OnClose(func() { called = true })
	c.Close()
	// Close only closes the send channel; the readPump invokes onClose, not
	// Close itself, so the callback fires via a direct call here instead.
	c.onClose()
	assert.True(t, called)
}
