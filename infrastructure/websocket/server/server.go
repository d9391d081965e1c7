// Package server is the live surface: room subscriptions, presence and chat
// actions over a websocket.
package server

import (
	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"campus-chat/runtime"
	"campus-chat/services"
	"campus-chat/sink"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/time/rate"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

type Server struct {
	log              *slog.Logger
	chatService      services.IChatService
	registry         *runtime.Registry
	presence         *runtime.Presence
	upgrader         websocket.Upgrader
	bufferSize       int
	actionsPerSecond rate.Limit
	burst            int
}

func NewServer(log *slog.Logger, chatService services.IChatService,
	registry *runtime.Registry, presence *runtime.Presence,
	bufferSize int, actionsPerSecond float64, burst int) *Server {
	return &Server{
		log:         log,
		chatService: chatService,
		registry:    registry,
		presence:    presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Tokens are checked before the upgrade, origins are not restricted
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		bufferSize:       bufferSize,
		actionsPerSecond: rate.Limit(actionsPerSecond),
		burst:            burst,
	}
}

// ServeHTTP must run behind auth.Middleware. It blocks for the life of the connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	conn := sink.NewConnection(uuid.NewString(), s.log, s.bufferSize)
	s.registry.Connect(conn.ID(), conn)
	s.log.Debug("Connection opened", "connection", conn.ID(), "user", claims.UserID)

	go s.writePump(ws, conn)
	s.readPump(r.Context(), ws, conn, claims)

	// A disconnect only stops future deliveries, completed actions stand
	conn.Close()
	s.registry.LeaveAll(conn.ID())
	if err := s.presence.Forget(context.WithoutCancel(r.Context()), conn.ID()); err != nil {
		s.log.Warn("Presence not republished", "connection", conn.ID(), "error", err)
	}
	s.log.Debug("Connection closed", "connection", conn.ID(), "user", claims.UserID)
}

func (s *Server) writePump(ws *websocket.Conn, conn *sink.Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = ws.Close()
	}()

	for {
		select {
		case frame := <-conn.Frames():
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				conn.Close()
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		case <-conn.Done():
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Server) readPump(ctx context.Context, ws *websocket.Conn, conn *sink.Connection, claims *auth.CustomClaims) {
	limiter := rate.NewLimiter(s.actionsPerSecond, s.burst)
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug("Connection lost", "connection", conn.ID(), "error", err)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.reply(conn, failure("", fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)))
			continue
		}
		if !limiter.Allow() {
			s.reply(conn, failure(frame.Ref, errors.ErrRateLimited))
			continue
		}
		reply, err := s.handle(ctx, conn, claims, frame)
		if err != nil {
			s.reply(conn, failure(frame.Ref, err))
			continue
		}
		s.reply(conn, reply)
	}
}

func (s *Server) reply(conn *sink.Connection, frame any) {
	if err := conn.Send(frame); err != nil {
		s.log.Debug("Reply dropped", "connection", conn.ID(), "error", err)
	}
}

func (s *Server) handle(ctx context.Context, conn *sink.Connection, claims *auth.CustomClaims, frame clientFrame) (ackFrame, error) {
	switch frame.Type {
	case joinFrame:
		if frame.Room == "" {
			return ackFrame{}, fmt.Errorf("%w: room is required", errors.ErrValidation)
		}
		if !claims.Identity().IsMemberOf(frame.Room) {
			return ackFrame{}, fmt.Errorf("%w: %s cannot join %s", errors.ErrAuthorization, claims.UserID, frame.Room)
		}
		s.registry.Join(conn.ID(), frame.Room, conn)
		return ack(frame, map[string]chat.RoomID{"room": frame.Room}), nil

	case leaveFrame:
		s.registry.Leave(conn.ID(), frame.Room)
		return ack(frame, map[string]chat.RoomID{"room": frame.Room}), nil

	case announceFrame:
		if err := s.presence.Announce(ctx, conn.ID(), claims.UserID); err != nil {
			return ackFrame{}, err
		}
		return ack(frame, nil), nil

	case sendFrame:
		msg, err := s.chatService.Send(ctx, chat.PostMessageCommand{
			Room: frame.Room, SenderID: claims.UserID, Content: frame.Content,
		})
		if err != nil {
			return ackFrame{}, err
		}
		return ack(frame, msg), nil
	}

	id, err := uuid.Parse(frame.MessageID)
	if err != nil {
		if !isMessageFrame(frame.Type) {
			return ackFrame{}, fmt.Errorf("%w: unknown frame type %q", errors.ErrValidation, frame.Type)
		}
		return ackFrame{}, fmt.Errorf("%w: message id: %v", errors.ErrValidation, err)
	}
	switch frame.Type {
	case editFrame:
		msg, err := s.chatService.Edit(ctx, chat.EditMessageCommand{
			MessageID: id, RequesterID: claims.UserID, Content: frame.Content,
		})
		if err != nil {
			return ackFrame{}, err
		}
		return ack(frame, msg), nil
	case deleteFrame:
		deleted, err := s.chatService.Delete(ctx, chat.DeleteMessageCommand{MessageID: id, RequesterID: claims.UserID})
		if err != nil {
			return ackFrame{}, err
		}
		return ack(frame, map[string]uuid.UUID{"message_id": deleted}), nil
	case reactFrame:
		action, err := s.chatService.ToggleReaction(ctx, chat.ToggleReactionCommand{
			MessageID: id, UserID: claims.UserID, Emoji: frame.Emoji,
		})
		if err != nil {
			return ackFrame{}, err
		}
		return ack(frame, map[string]chat.ToggleAction{"action": action}), nil
	case viewFrame:
		if err := s.chatService.MarkViewed(ctx, chat.MarkViewedCommand{MessageID: id, UserID: claims.UserID}); err != nil {
			return ackFrame{}, err
		}
		return ack(frame, nil), nil
	default:
		return ackFrame{}, fmt.Errorf("%w: unknown frame type %q", errors.ErrValidation, frame.Type)
	}
}

func isMessageFrame(frameType string) bool {
	switch frameType {
	case editFrame, deleteFrame, reactFrame, viewFrame:
		return true
	}
	return false
}
