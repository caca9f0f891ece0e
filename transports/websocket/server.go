package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yessika-commits/realish-time-llm-chat/core"
	"github.com/yessika-commits/realish-time-llm-chat/pipeline"
	"github.com/yessika-commits/realish-time-llm-chat/protocol"
)

const writeTimeout = 10 * time.Second

// Server exposes the turn pipeline over a WebSocket endpoint. Each
// connection processes one turn at a time: a new request is only read after
// the previous turn has fully finished, so chunk order on the wire matches
// pipeline order.
type Server struct {
	coordinator *pipeline.Coordinator
	upgrader    websocket.Upgrader
	logger      *core.Logger
}

func NewServer(coordinator *pipeline.Coordinator, logger *core.Logger) *Server {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Server{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Register mounts the chat endpoint on the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/chat", s.handleChat)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.With(map[string]any{"error": err}).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.With(map[string]any{"remote": conn.RemoteAddr().String()})
	log.Info("chat connection opened")
	defer log.Info("chat connection closed")

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.With(map[string]any{"error": err}).Warn("connection read failed")
			}
			return
		}
		if msgType != websocket.TextMessage {
			s.writeError(conn, protocol.ErrInvalidPayload)
			continue
		}

		req, err := protocol.DecodeTurnRequest(data)
		if err != nil {
			s.writeError(conn, protocol.ErrInvalidPayload)
			continue
		}
		if code := req.Validate(); code != "" {
			s.writeError(conn, code)
			continue
		}

		if err := s.runTurn(r.Context(), conn, req, log); err != nil {
			return
		}
	}
}

// runTurn drives one request through the coordinator, forwarding every chunk
// to the connection. A write failure aborts the turn and the connection;
// pipeline failures are reported in-band and keep the connection open.
func (s *Server) runTurn(ctx context.Context, conn *websocket.Conn, req protocol.TurnRequest, log *core.Logger) error {
	emit := func(chunk core.StreamChunk) error {
		data, err := protocol.EncodeChunk(chunk)
		if err != nil {
			return err
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	var err error
	switch req.Type {
	case protocol.TurnTypeAudio:
		err = s.coordinator.HandleVoiceTurn(ctx, pipeline.VoiceTurn{
			ConversationID: req.ConversationID,
			AudioPath:      req.AudioPath,
		}, emit)
	default:
		err = s.coordinator.HandleTextTurn(ctx, pipeline.TextTurn{
			ConversationID: req.ConversationID,
			Text:           req.Text,
			ImagePath:      req.ImagePath,
		}, emit)
	}
	if err != nil {
		log.With(map[string]any{"conversation_id": req.ConversationID, "error": err}).Error("turn failed")
		if writeErr := s.writeError(conn, protocol.ErrTurnFailed); writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func (s *Server) writeError(conn *websocket.Conn, code string) error {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, protocol.EncodeError(code))
}
