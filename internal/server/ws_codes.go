// internal/server/ws_codes.go
package server

// Custom WebSocket close codes used by the /ws handler. These give the
// client a more specific reason for closure than the standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	TooManyRequests     = 3001 // Client exceeded the inbound message rate limit.
)
