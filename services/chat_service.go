package services

import (
	"campus-chat/contract"
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/moderation"
	"campus-chat/observability"
	"campus-chat/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IChatService interface {
	Send(ctx context.Context, cmd chat.PostMessageCommand) (chat.Message, error)
	Edit(ctx context.Context, cmd chat.EditMessageCommand) (chat.Message, error)
	Delete(ctx context.Context, cmd chat.DeleteMessageCommand) (uuid.UUID, error)
	ToggleReaction(ctx context.Context, cmd chat.ToggleReactionCommand) (chat.ToggleAction, error)
	MarkViewed(ctx context.Context, cmd chat.MarkViewedCommand) error
	ListViews(ctx context.Context, messageID uuid.UUID, requesterID string) (chat.Views, error)
	ListReactions(ctx context.Context, messageID uuid.UUID, requesterID string) ([]chat.Reaction, error)
	GetMessages(ctx context.Context, cmd chat.GetMessageCommand) ([]chat.Message, *string, error)
}

var _ IChatService = (*ChatService)(nil)

// ChatService runs the lifecycle of messages: send, edit within the window,
// delete with cascade, reaction toggles and read receipts.
//
// Every mutation writes to storage first and publishes afterward, never the
// reverse. Mutations of one message hold a per-message lock across the write
// and the publish, so subscribers see them in the order they were applied.
type ChatService struct {
	log              *slog.Logger
	repository       repositories.IMessageRepository
	publisher        contract.Publisher
	identity         contract.IdentityProvider
	moderator        *moderation.Moderator
	badges           contract.BadgeObserver
	metrics          *observability.Metrics
	validator        *validator.Validate
	locks            *keyedLock
	maxContentLength int
	now              func() time.Time
}

// NewChatService wires the engine. moderator, badges and metrics are optional,
// a maxContentLength of zero means unbounded.
func NewChatService(log *slog.Logger, repository repositories.IMessageRepository,
	publisher contract.Publisher, identity contract.IdentityProvider,
	moderator *moderation.Moderator, badges contract.BadgeObserver,
	metrics *observability.Metrics, maxContentLength int) *ChatService {
	return &ChatService{
		log:              log,
		repository:       repository,
		publisher:        publisher,
		identity:         identity,
		moderator:        moderator,
		badges:           badges,
		metrics:          metrics,
		validator:        validator.New(),
		locks:            newKeyedLock(),
		maxContentLength: maxContentLength,
		now:              time.Now,
	}
}

// WithClock replaces the time source used for creation times and the edit window.
func (s *ChatService) WithClock(now func() time.Time) *ChatService {
	s.now = now
	return s
}

func (s *ChatService) Send(ctx context.Context, cmd chat.PostMessageCommand) (msg chat.Message, err error) {
	defer func() { s.metrics.ObserveAction("send", outcome(err)) }()

	if err := s.validate(cmd); err != nil {
		return chat.Message{}, err
	}
	content, err := s.prepareContent(cmd.Content)
	if err != nil {
		return chat.Message{}, err
	}

	if err := s.authorizeRoom(ctx, cmd.SenderID, cmd.Room); err != nil {
		return chat.Message{}, err
	}

	msg = chat.Message{
		ID:        uuid.New(),
		Room:      cmd.Room,
		SenderID:  cmd.SenderID,
		Content:   content,
		CreatedAt: s.now().UTC(),
	}
	// The id is fresh, no other action can reach it before the publish below
	if err := s.repository.StoreMessage(msg); err != nil {
		return chat.Message{}, storageError(err)
	}
	s.publish(ctx, event.MessagePosted{Message: msg})

	if s.badges != nil {
		s.badges.MessagePosted(ctx, msg)
	}
	return msg, nil
}

// Edit replaces the content of a message. Only its sender may edit it and only
// while the edit window, measured from the stored creation time, is open.
func (s *ChatService) Edit(ctx context.Context, cmd chat.EditMessageCommand) (msg chat.Message, err error) {
	defer func() { s.metrics.ObserveAction("edit", outcome(err)) }()

	if err := s.validate(cmd); err != nil {
		return chat.Message{}, err
	}

	unlock := s.locks.Lock(cmd.MessageID.String())
	defer unlock()

	msg, err = s.repository.GetMessage(cmd.MessageID)
	if err != nil {
		return chat.Message{}, storageError(err)
	}
	if msg.SenderID != cmd.RequesterID {
		return chat.Message{}, fmt.Errorf("%w: %s is not the sender of %s",
			errors.ErrAuthorization, cmd.RequesterID, cmd.MessageID)
	}
	content, err := s.prepareContent(cmd.Content)
	if err != nil {
		return chat.Message{}, err
	}
	if !msg.EditableAt(s.now()) {
		return chat.Message{}, fmt.Errorf("%w: message %s", errors.ErrWindowExpired, cmd.MessageID)
	}

	msg.Content = content
	msg.Edited = true
	if err := s.repository.UpdateMessage(msg); err != nil {
		return chat.Message{}, storageError(err)
	}
	s.publish(ctx, event.MessageUpdated{Message: msg})
	return msg, nil
}

// Delete removes a message with its reactions and views. Only the sender may
// delete, at any time.
func (s *ChatService) Delete(ctx context.Context, cmd chat.DeleteMessageCommand) (id uuid.UUID, err error) {
	defer func() { s.metrics.ObserveAction("delete", outcome(err)) }()

	if err := s.validate(cmd); err != nil {
		return uuid.Nil, err
	}

	unlock := s.locks.Lock(cmd.MessageID.String())
	defer unlock()

	msg, err := s.repository.GetMessage(cmd.MessageID)
	if err != nil {
		return uuid.Nil, storageError(err)
	}
	if msg.SenderID != cmd.RequesterID {
		return uuid.Nil, fmt.Errorf("%w: %s is not the sender of %s",
			errors.ErrAuthorization, cmd.RequesterID, cmd.MessageID)
	}
	if err := s.repository.DeleteMessage(msg.ID); err != nil {
		return uuid.Nil, storageError(err)
	}
	s.publish(ctx, event.MessageDeleted{Room: msg.Room, MessageID: msg.ID})
	return msg.ID, nil
}

// ToggleReaction adds the reaction when absent and removes it when present.
// Any non-empty emoji is accepted, only members of the message's room may react.
func (s *ChatService) ToggleReaction(ctx context.Context, cmd chat.ToggleReactionCommand) (action chat.ToggleAction, err error) {
	defer func() { s.metrics.ObserveAction("react", outcome(err)) }()

	cmd.Emoji = strings.TrimSpace(cmd.Emoji)
	if err := s.validate(cmd); err != nil {
		return "", err
	}

	unlock := s.locks.Lock(cmd.MessageID.String())
	defer unlock()

	msg, err := s.repository.GetMessage(cmd.MessageID)
	if err != nil {
		return "", storageError(err)
	}
	if err := s.authorizeRoom(ctx, cmd.UserID, msg.Room); err != nil {
		return "", err
	}
	action, err = s.repository.ToggleReaction(chat.Reaction{
		ID:        uuid.New(),
		MessageID: msg.ID,
		UserID:    cmd.UserID,
		Emoji:     cmd.Emoji,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", storageError(err)
	}
	s.publish(ctx, event.ReactionToggled{
		Room:      msg.Room,
		MessageID: msg.ID,
		UserID:    cmd.UserID,
		Emoji:     cmd.Emoji,
		Action:    action,
	})
	return action, nil
}

// MarkViewed stores a read receipt once. Repeated calls succeed without effect
// and only the first one is broadcast. Only members of the message's room may view.
func (s *ChatService) MarkViewed(ctx context.Context, cmd chat.MarkViewedCommand) (err error) {
	defer func() { s.metrics.ObserveAction("view", outcome(err)) }()

	if err := s.validate(cmd); err != nil {
		return err
	}

	unlock := s.locks.Lock(cmd.MessageID.String())
	defer unlock()

	msg, err := s.repository.GetMessage(cmd.MessageID)
	if err != nil {
		return storageError(err)
	}
	if err := s.authorizeRoom(ctx, cmd.UserID, msg.Room); err != nil {
		return err
	}
	created, err := s.repository.MarkViewed(chat.View{
		MessageID: msg.ID,
		ViewerID:  cmd.UserID,
		ViewedAt:  s.now().UTC(),
	})
	if err != nil {
		return storageError(err)
	}
	if created {
		s.publish(ctx, event.MessageViewed{Room: msg.Room, MessageID: msg.ID, ViewerID: cmd.UserID})
	}
	return nil
}

// ListViews returns the distinct viewers of a message to a member of its room.
// A deleted or unknown message has no viewer.
func (s *ChatService) ListViews(ctx context.Context, messageID uuid.UUID, requesterID string) (chat.Views, error) {
	if found, err := s.authorizeMessage(ctx, messageID, requesterID); err != nil || !found {
		return chat.Views{MessageID: messageID, Viewers: []string{}}, err
	}
	views, err := s.repository.ListViews(messageID)
	if err != nil {
		return chat.Views{}, storageError(err)
	}
	viewers := lo.Uniq(lo.Map(views, func(v chat.View, _ int) string { return v.ViewerID }))
	return chat.Views{MessageID: messageID, Viewers: viewers, Count: len(viewers)}, nil
}

// ListReactions returns the reactions of a message to a member of its room.
func (s *ChatService) ListReactions(ctx context.Context, messageID uuid.UUID, requesterID string) ([]chat.Reaction, error) {
	if found, err := s.authorizeMessage(ctx, messageID, requesterID); err != nil || !found {
		return []chat.Reaction{}, err
	}
	reactions, err := s.repository.ListReactions(messageID)
	if err != nil {
		return nil, storageError(err)
	}
	return reactions, nil
}

// GetMessages returns one page of a room history, newest first.
func (s *ChatService) GetMessages(_ context.Context, cmd chat.GetMessageCommand) ([]chat.Message, *string, error) {
	if err := s.validate(cmd); err != nil {
		return nil, nil, err
	}
	messages, cursor, err := s.repository.GetMessages(cmd.Room, cmd.Cursor)
	if err != nil {
		return nil, nil, storageError(err)
	}
	return messages, cursor, nil
}

// authorizeRoom requires the user to be a verified member of the room's college.
func (s *ChatService) authorizeRoom(ctx context.Context, userID string, room chat.RoomID) error {
	identity, err := s.identity.Lookup(ctx, userID)
	if err != nil {
		if errors.Is(err, errors.ErrUnauthenticated) {
			return err
		}
		return fmt.Errorf("%w: identity of %s: %v", errors.ErrAuthorization, userID, err)
	}
	if !identity.IsMemberOf(room) {
		return fmt.Errorf("%w: %s is not a verified member of %s", errors.ErrAuthorization, userID, room)
	}
	return nil
}

// authorizeMessage checks the requester against the room of a stored message.
// A missing message is reported as not found, without error.
func (s *ChatService) authorizeMessage(ctx context.Context, messageID uuid.UUID, requesterID string) (bool, error) {
	if requesterID == "" {
		return false, fmt.Errorf("%w: requester is required", errors.ErrValidation)
	}
	msg, err := s.repository.GetMessage(messageID)
	if errors.Is(err, errors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storageError(err)
	}
	if err := s.authorizeRoom(ctx, requesterID, msg.Room); err != nil {
		return false, err
	}
	return true, nil
}

func (s *ChatService) validate(cmd any) error {
	if err := s.validator.Struct(cmd); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

// prepareContent trims, bounds and censors a message body.
func (s *ChatService) prepareContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: content is empty", errors.ErrValidation)
	}
	if s.maxContentLength > 0 && utf8.RuneCountInString(content) > s.maxContentLength {
		return "", fmt.Errorf("%w: content exceeds %d characters", errors.ErrValidation, s.maxContentLength)
	}
	return s.moderator.Censor(content), nil
}

// publish hands the event to the dispatcher once storage confirmed the write.
// The write stands even if the broadcast is lost, clients recover via history.
func (s *ChatService) publish(ctx context.Context, e event.DomainEvent) {
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.log.Warn("Broadcast lost after write",
			"kind", e.Kind(),
			"room", e.RoomID(),
			"error", err)
	}
}

// storageError keeps not found visible to the caller and hides everything else.
func storageError(err error) error {
	if errors.Is(err, errors.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", errors.ErrStorage, err)
}

func outcome(err error) string {
	if err == nil {
		return ""
	}
	return errors.Code(err)
}
