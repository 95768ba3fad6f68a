package ws

import "errors"

const (
	// client - server
	MsgPing = "ping"

	// server - client
	MsgPong = "pong"
)

// CloseUnauthenticated is sent when the connection carried no valid token.
const CloseUnauthenticated = 4001

var invalidJSONFrame = []byte(`{"error":"Invalid JSON"}`)

type inbound struct {
	Type string `json:"type"`
}

type outbound struct {
	Type string `json:"type"`
}

var errMissingToken = errors.New("token required")
