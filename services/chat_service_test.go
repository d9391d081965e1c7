package services

import (
	"campus-chat/domain/chat"
	"campus-chat/domain/event"
	"campus-chat/errors"
	"campus-chat/mocks"
	"campus-chat/moderation"
	"campus-chat/repositories"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	service    *ChatService
	repository *mocks.MockIMessageRepository
	publisher  *mocks.MockPublisher
	identity   *mocks.MockIdentityProvider
	badges     *mocks.MockBadgeObserver
}

func newFixture(t *testing.T) fixture {
	ctrl := gomock.NewController(t)
	f := fixture{
		repository: mocks.NewMockIMessageRepository(ctrl),
		publisher:  mocks.NewMockPublisher(ctrl),
		identity:   mocks.NewMockIdentityProvider(ctrl),
		badges:     mocks.NewMockBadgeObserver(ctrl),
	}
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	f.service = NewChatService(log, f.repository, f.publisher, f.identity, nil, f.badges, nil, 500)
	f.service.now = func() time.Time { return t0 }
	return f
}

func member(userID string, college chat.RoomID) chat.Identity {
	return chat.Identity{UserID: userID, College: college, Verified: true}
}

func TestChatService_Send(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	// Given a verified member of MIT
	f.identity.EXPECT().Lookup(ctx, "alice").Return(member("alice", "MIT"), nil)
	// Then the message is stored before being broadcast
	gomock.InOrder(
		f.repository.EXPECT().StoreMessage(gomock.Any()).Return(nil),
		f.publisher.EXPECT().Publish(ctx, gomock.AssignableToTypeOf(event.MessagePosted{})).Return(nil),
		f.badges.EXPECT().MessagePosted(ctx, gomock.Any()),
	)

	// When she sends a message with surrounding spaces
	msg, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: "  hello "})

	req.NoError(err)
	req.Equal("hello", msg.Content)
	req.False(msg.Edited)
	req.Equal(t0, msg.CreatedAt)
	req.NotEqual(uuid.Nil, msg.ID)
}

func TestChatService_Send_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("Empty content after trimming", func(t *testing.T) {
		f := newFixture(t)
		f.repository.EXPECT().StoreMessage(gomock.Any()).Times(0)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: " \n\t "})
		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("Missing room", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Send(ctx, chat.PostMessageCommand{SenderID: "alice", Content: "hello"})
		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("Content too long", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: strings.Repeat("é", 501)})
		require.ErrorIs(t, err, errors.ErrValidation)
	})

	t.Run("Member of another college", func(t *testing.T) {
		f := newFixture(t)
		f.identity.EXPECT().Lookup(ctx, "zoe").Return(member("zoe", "Stanford"), nil)
		f.repository.EXPECT().StoreMessage(gomock.Any()).Times(0)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "zoe", Content: "hello"})
		require.ErrorIs(t, err, errors.ErrAuthorization)
	})

	t.Run("Unverified member", func(t *testing.T) {
		f := newFixture(t)
		f.identity.EXPECT().Lookup(ctx, "bob").Return(chat.Identity{UserID: "bob", College: "MIT"}, nil)

		_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "bob", Content: "hello"})
		require.ErrorIs(t, err, errors.ErrAuthorization)
	})

	t.Run("Storage failure is never broadcast", func(t *testing.T) {
		f := newFixture(t)
		f.identity.EXPECT().Lookup(ctx, "alice").Return(member("alice", "MIT"), nil)
		f.repository.EXPECT().StoreMessage(gomock.Any()).Return(fmt.Errorf("disk full"))
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
		f.badges.EXPECT().MessagePosted(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: "hello"})
		require.ErrorIs(t, err, errors.ErrStorage)
		require.NotContains(t, errors.PublicMessage(err), "disk full")
	})
}

func TestChatService_Send_Survives_Lost_Broadcast(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)

	f.identity.EXPECT().Lookup(ctx, "alice").Return(member("alice", "MIT"), nil)
	f.repository.EXPECT().StoreMessage(gomock.Any()).Return(nil)
	// Given a dispatcher shutting down
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(errors.ErrDispatcherStopped)
	f.badges.EXPECT().MessagePosted(ctx, gomock.Any())

	// Then the stored message is still reported
	_, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: "hello"})
	req.NoError(err)
}

func TestChatService_Send_Censors_Content(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	moderator, err := moderation.NewModerator([]string{"badger"}, '*')
	req.NoError(err)
	f.service.moderator = moderator

	f.identity.EXPECT().Lookup(ctx, "alice").Return(member("alice", "MIT"), nil)
	f.repository.EXPECT().StoreMessage(gomock.Any()).DoAndReturn(func(m chat.Message) error {
		req.Equal("the ****** is here", m.Content)
		return nil
	})
	f.publisher.EXPECT().Publish(ctx, gomock.Any()).Return(nil)
	f.badges.EXPECT().MessagePosted(ctx, gomock.Any())

	msg, err := f.service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: "the badger is here"})
	req.NoError(err)
	req.Equal("the ****** is here", msg.Content)
}

func TestChatService_Edit(t *testing.T) {
	ctx := context.Background()
	original := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}

	tests := []struct {
		name      string
		requester string
		content   string
		elapsed   time.Duration
		expected  error
	}{
		{"Inside the window", "alice", "hello world", 60 * time.Second, nil},
		{"Just before the boundary", "alice", "hello world", chat.EditWindow - time.Millisecond, nil},
		{"Exactly at the boundary", "alice", "hello world", chat.EditWindow, nil},
		{"Just after the boundary", "alice", "hello world", chat.EditWindow + time.Millisecond, errors.ErrWindowExpired},
		{"Way after the window", "alice", "hello world", 130 * time.Second, errors.ErrWindowExpired},
		{"Not the sender", "bob", "hello world", 10 * time.Second, errors.ErrAuthorization},
		{"Empty content", "alice", "   ", 10 * time.Second, errors.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			f.service.now = func() time.Time { return t0.Add(tt.elapsed) }
			f.repository.EXPECT().GetMessage(original.ID).Return(original, nil)

			if tt.expected == nil {
				expected := original
				expected.Content = tt.content
				expected.Edited = true
				gomock.InOrder(
					f.repository.EXPECT().UpdateMessage(expected).Return(nil),
					f.publisher.EXPECT().Publish(ctx, event.MessageUpdated{Message: expected}).Return(nil),
				)
			} else {
				f.repository.EXPECT().UpdateMessage(gomock.Any()).Times(0)
				f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)
			}

			updated, err := f.service.Edit(ctx, chat.EditMessageCommand{
				MessageID: original.ID, RequesterID: tt.requester, Content: tt.content,
			})
			if tt.expected != nil {
				req.ErrorIs(err, tt.expected)
				return
			}
			req.NoError(err)
			req.True(updated.Edited)
			req.Equal(original.CreatedAt, updated.CreatedAt)
		})
	}
}

func TestChatService_Edit_Unknown_Message(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	f.repository.EXPECT().GetMessage(id).Return(chat.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id))

	_, err := f.service.Edit(context.Background(), chat.EditMessageCommand{MessageID: id, RequesterID: "alice", Content: "x"})
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func TestChatService_Delete(t *testing.T) {
	ctx := context.Background()
	msg := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}

	t.Run("Sender deletes long after the edit window", func(t *testing.T) {
		req := require.New(t)
		f := newFixture(t)
		f.service.now = func() time.Time { return t0.Add(24 * time.Hour) }
		f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil)
		gomock.InOrder(
			f.repository.EXPECT().DeleteMessage(msg.ID).Return(nil),
			f.publisher.EXPECT().Publish(ctx, event.MessageDeleted{Room: "MIT", MessageID: msg.ID}).Return(nil),
		)

		id, err := f.service.Delete(ctx, chat.DeleteMessageCommand{MessageID: msg.ID, RequesterID: "alice"})
		req.NoError(err)
		req.Equal(msg.ID, id)
	})

	t.Run("Someone else", func(t *testing.T) {
		f := newFixture(t)
		f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil)
		f.repository.EXPECT().DeleteMessage(gomock.Any()).Times(0)

		_, err := f.service.Delete(ctx, chat.DeleteMessageCommand{MessageID: msg.ID, RequesterID: "bob"})
		require.ErrorIs(t, err, errors.ErrAuthorization)
	})

	t.Run("Cascade failure is not broadcast", func(t *testing.T) {
		f := newFixture(t)
		f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil)
		f.repository.EXPECT().DeleteMessage(msg.ID).Return(badger.ErrTxnTooBig)
		f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

		_, err := f.service.Delete(ctx, chat.DeleteMessageCommand{MessageID: msg.ID, RequesterID: "alice"})
		require.ErrorIs(t, err, errors.ErrStorage)
	})
}

func TestChatService_ToggleReaction(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	msg := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}

	f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil).Times(2)
	f.identity.EXPECT().Lookup(ctx, "bob").Return(member("bob", "MIT"), nil).Times(2)
	gomock.InOrder(
		f.repository.EXPECT().ToggleReaction(gomock.Any()).Return(chat.ReactionAdded, nil),
		f.publisher.EXPECT().Publish(ctx, event.ReactionToggled{
			Room: "MIT", MessageID: msg.ID, UserID: "bob", Emoji: "🔥", Action: chat.ReactionAdded,
		}).Return(nil),
		f.repository.EXPECT().ToggleReaction(gomock.Any()).Return(chat.ReactionRemoved, nil),
		f.publisher.EXPECT().Publish(ctx, event.ReactionToggled{
			Room: "MIT", MessageID: msg.ID, UserID: "bob", Emoji: "🔥", Action: chat.ReactionRemoved,
		}).Return(nil),
	)

	cmd := chat.ToggleReactionCommand{MessageID: msg.ID, UserID: "bob", Emoji: "🔥"}
	action, err := f.service.ToggleReaction(ctx, cmd)
	req.NoError(err)
	req.Equal(chat.ReactionAdded, action)
	action, err = f.service.ToggleReaction(ctx, cmd)
	req.NoError(err)
	req.Equal(chat.ReactionRemoved, action)

	// Blank emoji is rejected before touching storage
	_, err = f.service.ToggleReaction(ctx, chat.ToggleReactionCommand{MessageID: msg.ID, UserID: "bob", Emoji: "  "})
	req.ErrorIs(err, errors.ErrValidation)
}

func TestChatService_MarkViewed_Broadcasts_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	msg := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}

	f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil).Times(3)
	f.identity.EXPECT().Lookup(ctx, "bob").Return(member("bob", "MIT"), nil).Times(3)
	gomock.InOrder(
		f.repository.EXPECT().MarkViewed(gomock.Any()).Return(true, nil),
		f.publisher.EXPECT().Publish(ctx, event.MessageViewed{Room: "MIT", MessageID: msg.ID, ViewerID: "bob"}).Return(nil),
		f.repository.EXPECT().MarkViewed(gomock.Any()).Return(false, nil).Times(2),
	)

	for i := 0; i < 3; i++ {
		req.NoError(f.service.MarkViewed(ctx, chat.MarkViewedCommand{MessageID: msg.ID, UserID: "bob"}))
	}
}

func TestChatService_ListViews(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	msg := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}
	f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil)
	f.identity.EXPECT().Lookup(ctx, "alice").Return(member("alice", "MIT"), nil)
	f.repository.EXPECT().ListViews(msg.ID).Return([]chat.View{
		{MessageID: msg.ID, ViewerID: "bob"},
		{MessageID: msg.ID, ViewerID: "clara"},
	}, nil)

	views, err := f.service.ListViews(ctx, msg.ID, "alice")
	req.NoError(err)
	req.Equal(2, views.Count)
	req.ElementsMatch([]string{"bob", "clara"}, views.Viewers)
}

func TestChatService_ListViews_Of_Deleted_Message_Is_Empty(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	id := uuid.New()
	f.repository.EXPECT().GetMessage(id).Return(chat.Message{}, fmt.Errorf("%w: message %s", errors.ErrNotFound, id))
	f.repository.EXPECT().ListViews(gomock.Any()).Times(0)

	views, err := f.service.ListViews(context.Background(), id, "alice")
	req.NoError(err)
	req.Zero(views.Count)
	req.Empty(views.Viewers)
}

func TestChatService_Outsider_Is_Refused_On_Message_Actions(t *testing.T) {
	ctx := context.Background()
	msg := chat.Message{ID: uuid.New(), Room: "MIT", SenderID: "alice", Content: "hello", CreatedAt: t0}

	tests := []struct {
		name string
		act  func(s *ChatService) error
	}{
		{"React", func(s *ChatService) error {
			_, err := s.ToggleReaction(ctx, chat.ToggleReactionCommand{MessageID: msg.ID, UserID: "zoe", Emoji: "🔥"})
			return err
		}},
		{"View", func(s *ChatService) error {
			return s.MarkViewed(ctx, chat.MarkViewedCommand{MessageID: msg.ID, UserID: "zoe"})
		}},
		{"List reactions", func(s *ChatService) error {
			_, err := s.ListReactions(ctx, msg.ID, "zoe")
			return err
		}},
		{"List views", func(s *ChatService) error {
			_, err := s.ListViews(ctx, msg.ID, "zoe")
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			// Given a verified member of another college
			f.repository.EXPECT().GetMessage(msg.ID).Return(msg, nil)
			f.identity.EXPECT().Lookup(ctx, "zoe").Return(member("zoe", "Stanford"), nil)
			// Then nothing is read, written nor broadcast
			f.repository.EXPECT().ToggleReaction(gomock.Any()).Times(0)
			f.repository.EXPECT().MarkViewed(gomock.Any()).Times(0)
			f.repository.EXPECT().ListReactions(gomock.Any()).Times(0)
			f.repository.EXPECT().ListViews(gomock.Any()).Times(0)
			f.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

			require.ErrorIs(t, tt.act(f.service), errors.ErrAuthorization)
		})
	}
}

func openDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// recordingPublisher keeps the events in publish order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []event.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e event.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func TestChatService_On_Badger(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	identity := mocks.NewMockIdentityProvider(ctrl)
	identity.EXPECT().Lookup(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, userID string) (chat.Identity, error) {
			return member(userID, "MIT"), nil
		}).AnyTimes()
	publisher := &recordingPublisher{}
	repository := repositories.NewMessageRepository(openDB(t), slog.Default(), nil)
	service := NewChatService(slog.Default(), repository, publisher, identity, nil, nil, nil, 0)
	clock := t0
	service.now = func() time.Time { return clock }

	msg, err := service.Send(ctx, chat.PostMessageCommand{Room: "MIT", SenderID: "alice", Content: "hello"})
	req.NoError(err)

	// Given reactions and views on the message
	for _, user := range []string{"bob", "clara"} {
		_, err = service.ToggleReaction(ctx, chat.ToggleReactionCommand{MessageID: msg.ID, UserID: user, Emoji: "🔥"})
		req.NoError(err)
		req.NoError(service.MarkViewed(ctx, chat.MarkViewedCommand{MessageID: msg.ID, UserID: user}))
		req.NoError(service.MarkViewed(ctx, chat.MarkViewedCommand{MessageID: msg.ID, UserID: user}))
	}
	views, err := service.ListViews(ctx, msg.ID, "alice")
	req.NoError(err)
	req.Equal(2, views.Count)

	// When the window is over, edit fails and the stored content stays
	clock = t0.Add(130 * time.Second)
	_, err = service.Edit(ctx, chat.EditMessageCommand{MessageID: msg.ID, RequesterID: "alice", Content: "late"})
	req.ErrorIs(err, errors.ErrWindowExpired)
	page, _, err := service.GetMessages(ctx, chat.GetMessageCommand{Room: "MIT"})
	req.NoError(err)
	req.Equal("hello", page[0].Content)

	// When the sender deletes it, dependents are gone
	_, err = service.Delete(ctx, chat.DeleteMessageCommand{MessageID: msg.ID, RequesterID: "alice"})
	req.NoError(err)
	views, err = service.ListViews(ctx, msg.ID, "alice")
	req.NoError(err)
	req.Zero(views.Count)
	reactions, err := service.ListReactions(ctx, msg.ID, "alice")
	req.NoError(err)
	req.Empty(reactions)

	// And the events came out in the order they were applied
	kinds := make([]event.Kind, 0, len(publisher.events))
	for _, e := range publisher.events {
		kinds = append(kinds, e.Kind())
	}
	req.Equal([]event.Kind{
		event.NewMessageKind,
		event.MessageReactionKind, event.MessageViewedKind,
		event.MessageReactionKind, event.MessageViewedKind,
		event.MessageDeletedKind,
	}, kinds)
}
