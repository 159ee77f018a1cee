package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Browsers connect from pages served elsewhere
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWebSocket renders every text message of the connection as a
// template and replies with the output or "error: <msg>".
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	for {
		src, err := receive(conn)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug().Msg("websocket closed")
			} else {
				logger.Debug().Err(err).Msg("websocket read")
			}
			return
		}

		reply, err := s.render(r.Context(), "ws", src)
		if err != nil {
			reply = "error: " + err.Error()
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
			logger.Debug().Err(err).Msg("websocket write")
			return
		}
	}
}

func receive(conn *websocket.Conn) (string, error) {
	msgType, msg, err := conn.ReadMessage()
	if err != nil {
		return "", err
	}
	if msgType != websocket.TextMessage {
		return "", fmt.Errorf("unexpected message type: %d", msgType)
	}
	return string(msg), nil
}
