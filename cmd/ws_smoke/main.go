package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"task_tracker/internal/logger"
	"task_tracker/internal/service"

	"github.com/gorilla/websocket"
)

// ws_smoke connects as one user, checks the ping and malformed-frame
// replies, then prints every pushed frame until the duration elapses.
func main() {
	token := flag.String("token", "", "access token (default: sign one for -user with JWT_SECRET)")
	userID := flag.Int64("user", 1, "user id to sign a token for")
	duration := flag.Duration("duration", 30*time.Second, "how long to listen for frames")
	flag.Parse()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	if *token == "" {
		service.InitJWT(os.Getenv("JWT_SECRET"), 0, 0)
		pair, err := service.GenerateTokenPair(*userID)
		if err != nil {
			logger.Fatal("gen token", "error", err)
		}
		*token = pair.Access
	}

	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	url := fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, *token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logger.Fatal("dial", "error", err)
	}
	defer conn.Close()

	for _, msg := range []string{`{"type":"ping"}`, `{oops`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			logger.Fatal("write", "error", err)
		}
	}

	deadline := time.Now().Add(*duration)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(deadline)
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ce, ok := err.(*websocket.CloseError); ok {
				fmt.Printf("closed: code=%d text=%q\n", ce.Code, ce.Text)
				return
			}
			break
		}
		fmt.Printf("got: %s\n", msg)
	}

	fmt.Println("smoke test finished")
}
