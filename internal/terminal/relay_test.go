package terminal

import (
	"errors"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

func TestCloseReason_WebsocketCloseError(t *testing.T) {
	err := &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}
	assert.Equal(t, "bye", closeReason(err))
}

func TestCloseReason_PlainError(t *testing.T) {
	err := errors.New("connection reset")
	assert.Equal(t, "connection reset", closeReason(err))
}
