package server

import (
	"campus-chat/auth"
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type contentRequest struct {
	Content string `json:"content"`
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

type messagesResponse struct {
	Messages []chat.Message `json:"messages"`
	Cursor   *string        `json:"cursor,omitempty"`
}

type reactionResponse struct {
	MessageID uuid.UUID         `json:"message_id"`
	Emoji     string            `json:"emoji"`
	Action    chat.ToggleAction `json:"action"`
}

type deletedResponse struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	var body contentRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	msg, err := s.chatService.Send(r.Context(), chat.PostMessageCommand{
		Room:     roomParam(r),
		SenderID: claims.UserID,
		Content:  body.Content,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, msg)
	return nil
}

// getMessages serves the history of the caller's own college only.
func (s *Server) getMessages(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	room := roomParam(r)
	if !claims.Identity().IsMemberOf(room) {
		return fmt.Errorf("%w: %s cannot read %s", errors.ErrAuthorization, claims.UserID, room)
	}
	var cursor *string
	if c := r.URL.Query().Get("cursor"); c != "" {
		cursor = lo.ToPtr(c)
	}
	messages, next, err := s.chatService.GetMessages(r.Context(), chat.GetMessageCommand{Room: room, Cursor: cursor})
	if err != nil {
		return err
	}
	if messages == nil {
		messages = []chat.Message{}
	}
	writeJSON(w, http.StatusOK, messagesResponse{Messages: messages, Cursor: next})
	return nil
}

func (s *Server) editMessage(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	var body contentRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	msg, err := s.chatService.Edit(r.Context(), chat.EditMessageCommand{
		MessageID:   id,
		RequesterID: claims.UserID,
		Content:     body.Content,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, msg)
	return nil
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	deleted, err := s.chatService.Delete(r.Context(), chat.DeleteMessageCommand{MessageID: id, RequesterID: claims.UserID})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, deletedResponse{MessageID: deleted})
	return nil
}

func (s *Server) toggleReaction(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	var body reactionRequest
	if err := decode(r, &body); err != nil {
		return err
	}
	emoji := strings.TrimSpace(body.Emoji)
	action, err := s.chatService.ToggleReaction(r.Context(), chat.ToggleReactionCommand{
		MessageID: id,
		UserID:    claims.UserID,
		Emoji:     emoji,
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, reactionResponse{MessageID: id, Emoji: emoji, Action: action})
	return nil
}

func (s *Server) listReactions(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	reactions, err := s.chatService.ListReactions(r.Context(), id, claims.UserID)
	if err != nil {
		return err
	}
	if reactions == nil {
		reactions = []chat.Reaction{}
	}
	writeJSON(w, http.StatusOK, reactions)
	return nil
}

func (s *Server) markViewed(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	if err := s.chatService.MarkViewed(r.Context(), chat.MarkViewedCommand{MessageID: id, UserID: claims.UserID}); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) listViews(w http.ResponseWriter, r *http.Request) error {
	claims := mustClaims(r)
	id, err := idParam(r)
	if err != nil {
		return err
	}
	views, err := s.chatService.ListViews(r.Context(), id, claims.UserID)
	if err != nil {
		return err
	}
	if views.Viewers == nil {
		views.Viewers = []string{}
	}
	writeJSON(w, http.StatusOK, views)
	return nil
}

// mustClaims is only called behind auth.Middleware.
func mustClaims(r *http.Request) *auth.CustomClaims {
	claims, _ := auth.ClaimsFromContext(r.Context())
	return claims
}

func roomParam(r *http.Request) chat.RoomID {
	raw := chi.URLParam(r, "room")
	if room, err := url.PathUnescape(raw); err == nil {
		return chat.RoomID(room)
	}
	return chat.RoomID(raw)
}

func idParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: message id: %v", errors.ErrValidation, err)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	defer r.Body.Close()
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 64<<10)).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidPayload, err)
	}
	return nil
}
