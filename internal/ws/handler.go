package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Authenticator resolves a bearer token to the id of an existing user.
type Authenticator func(ctx context.Context, token string) (int64, error)

// HandleWS upgrades every request. A missing or invalid token gets an
// immediate close with CloseUnauthenticated and never joins a group.
func HandleWS(hub *Hub, auth Authenticator, allowedOrigin string) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowedOrigin == "" {
				return true
			}
			return r.Header.Get("Origin") == allowedOrigin
		},
	}

	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Warn("ws upgrade error", "error", err)
			return
		}

		userID, err := authenticate(c.Request.Context(), auth, c.Query("token"))
		if err != nil {
			closeUnauthenticated(conn)
			return
		}

		client := NewClient(userID, conn, hub)
		go client.Run()
	}
}

func authenticate(ctx context.Context, auth Authenticator, token string) (int64, error) {
	if token == "" {
		return 0, errMissingToken
	}
	return auth(ctx, token)
}

func closeUnauthenticated(conn *websocket.Conn) {
	msg := websocket.FormatCloseMessage(CloseUnauthenticated, "authentication required")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
