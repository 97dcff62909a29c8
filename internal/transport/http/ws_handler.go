package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, hub *Hub) *WSHandler {
	return &WSHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type createSessionPayload struct {
	QuizID     string `json:"quizId"`
	HostUserID string `json:"hostUserId,omitempty"`
}

type joinPayload struct {
	PIN      string `json:"pin"`
	Nickname string `json:"nickname"`
	UserID   string `json:"userId,omitempty"`
}

type togglePayload struct {
	PIN     string `json:"pin"`
	Enabled bool   `json:"enabled"`
}

type pinPayload struct {
	PIN string `json:"pin"`
}

type answerPayload struct {
	PIN           string `json:"pin"`
	AnswerIndices []int  `json:"answerIndices"`
}

// ServeWS upgrades the request and pumps inbound events into the orchestrator.
// Outbound traffic flows through the hub; a dedicated writer goroutine keeps
// websocket writes serialized.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan envelope, 32),
	}
	h.hub.register(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws %s: write: %v", c.id, err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.dispatch(r, c.id, inbound)
	}

	// A dropped connection leaves any joined session untouched; only the hub
	// forgets the socket. Unregistering closes the send channel, which stops
	// the writer.
	h.hub.unregister(c.id)
	<-writerDone
}

func (h *WSHandler) dispatch(r *http.Request, connID string, msg inboundMessage) {
	switch msg.Type {
	case domain.EvtCreateSession:
		var p createSessionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		pin, err := h.service.CreateSession(r.Context(), p.QuizID, connID, p.HostUserID)
		if err != nil {
			log.Printf("ws %s: create session: %v", connID, err)
			return
		}
		h.hub.JoinRoom(pin, connID)

	case domain.EvtJoinSession:
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		if err := h.service.Join(p.PIN, connID, p.Nickname, p.UserID); err != nil {
			log.Printf("ws %s: join %s: %v", connID, p.PIN, err)
			return
		}
		h.hub.JoinRoom(p.PIN, connID)

	case domain.EvtStartSession:
		var p pinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		if err := h.service.Start(r.Context(), p.PIN, connID); err != nil {
			log.Printf("ws %s: start %s: %v", connID, p.PIN, err)
		}

	case domain.EvtSubmitAnswer:
		var p answerPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		// Late, duplicate, and stray submissions are discarded by design.
		if err := h.service.SubmitAnswer(p.PIN, connID, p.AnswerIndices); err != nil && !isStraySubmission(err) {
			log.Printf("ws %s: answer %s: %v", connID, p.PIN, err)
		}

	case domain.EvtAdvanceQuestion:
		var p pinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		if err := h.service.Advance(p.PIN, connID); err != nil {
			log.Printf("ws %s: advance %s: %v", connID, p.PIN, err)
		}

	case domain.EvtToggleAutoAdvance:
		var p togglePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			log.Printf("ws %s: bad %s payload: %v", connID, msg.Type, err)
			return
		}
		if err := h.service.ToggleAutoAdvance(p.PIN, connID, p.Enabled); err != nil {
			log.Printf("ws %s: toggle %s: %v", connID, p.PIN, err)
		}

	default:
		log.Printf("ws %s: unsupported message type %q", connID, msg.Type)
	}
}

func isStraySubmission(err error) bool {
	return errors.Is(err, domain.ErrAnswerClosed) ||
		errors.Is(err, domain.ErrAlreadyAnswered) ||
		errors.Is(err, domain.ErrSessionNotFound) ||
		errors.Is(err, domain.ErrPlayerNotFound)
}
