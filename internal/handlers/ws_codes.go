// internal/handlers/ws_codes.go
package handlers

import "github.com/coder/websocket"

// Custom WebSocket close codes used by the chat handler.
const (
	BadSubprotocolError websocket.StatusCode = 3000 // Client connected without the chat subprotocol.
	SlowConsumerError   websocket.StatusCode = 3001 // Outbox overflowed; the client could not keep up.
)

const chatSubprotocol = "chat"
