//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"campus-chat/domain/chat"
	"campus-chat/errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/samber/lo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxConflictRetries bounds the retries of a transaction that lost an optimistic conflict.
const maxConflictRetries = 5

type IMessageRepository interface {
	StoreMessage(message chat.Message) error
	GetMessage(id uuid.UUID) (chat.Message, error)
	UpdateMessage(message chat.Message) error
	DeleteMessage(id uuid.UUID) error
	GetMessages(room chat.RoomID, cursor *string) ([]chat.Message, *string, error)
	ToggleReaction(reaction chat.Reaction) (chat.ToggleAction, error)
	ListReactions(messageID uuid.UUID) ([]chat.Reaction, error)
	MarkViewed(view chat.View) (bool, error)
	ListViews(messageID uuid.UUID) ([]chat.View, error)
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

type DiskMessage struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	Author  string    `json:"author"`
	Content string    `json:"content"`
	At      int64     `json:"at"`
	Edited  bool      `json:"edited"`
}

type DiskReaction struct {
	ID        uuid.UUID `json:"id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    string    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	At        int64     `json:"at"`
}

type DiskView struct {
	MessageID uuid.UUID `json:"message_id"`
	ViewerID  string    `json:"viewer_id"`
	At        int64     `json:"at"`
}

// Key layout:
//
//	msg:{room}:{timestamp_padded}:{uuid}   message row, sorted by time inside a room
//	msgid:{uuid}                           pointer to the message row
//	react:{uuid}:{user}:{emoji}            one reaction
//	view:{uuid}:{user}                     one read receipt
//
// Room, user and emoji are query-escaped so a ':' can never break a prefix scan.
func messagePrefix(room chat.RoomID) string {
	return fmt.Sprintf("msg:%s:", url.QueryEscape(string(room)))
}

func messageKey(message chat.Message) []byte {
	return []byte(fmt.Sprintf("%s%019d:%s",
		messagePrefix(message.Room),
		message.CreatedAt.UnixNano(),
		message.ID,
	))
}

func messageIndexKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func reactionPrefix(messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("react:%s:", messageID))
}

func reactionKey(r chat.Reaction) []byte {
	return []byte(fmt.Sprintf("react:%s:%s:%s",
		r.MessageID, url.QueryEscape(r.UserID), url.QueryEscape(r.Emoji)))
}

func viewPrefix(messageID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("view:%s:", messageID))
}

func viewKey(v chat.View) []byte {
	return []byte(fmt.Sprintf("view:%s:%s", v.MessageID, url.QueryEscape(v.ViewerID)))
}

// update runs fn in a read-write transaction and replays it when badger
// reports a conflict with a concurrent transaction.
func (m MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = m.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		m.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

// StoreMessage persists a message and its id pointer in a single transaction.
// The key is formatted as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func (m MessageRepository) StoreMessage(message chat.Message) error {
	key := messageKey(message)
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(message.ID), key)
	})
}

// GetMessage always reads the stored row, never a cached copy.
func (m MessageRepository) GetMessage(id uuid.UUID) (chat.Message, error) {
	var message chat.Message
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		message, _, err = getMessage(txn, id)
		return err
	})
	return message, err
}

// UpdateMessage rewrites the row in place, the key is derived from immutable fields.
func (m MessageRepository) UpdateMessage(message chat.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.update(func(txn *badger.Txn) error {
		_, key, err := getMessage(txn, message.ID)
		if err != nil {
			return err
		}
		return txn.Set(key, bytes)
	})
}

// DeleteMessage removes the message with its reactions and views atomically.
// When the cascade does not fit in one transaction, dependents are removed
// first and the message last, so a failure never leaves orphans behind a
// missing message.
func (m MessageRepository) DeleteMessage(id uuid.UUID) error {
	err := m.update(func(txn *badger.Txn) error {
		_, key, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		for _, k := range collectKeys(txn, reactionPrefix(id), viewPrefix(id)) {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIndexKey(id))
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		m.log.Warn("Cascade too big for a single transaction, deleting in batches", "message_id", id)
		return m.deleteInBatches(id)
	}
	return err
}

func (m MessageRepository) deleteInBatches(id uuid.UUID) error {
	var dependents [][]byte
	if err := m.db.View(func(txn *badger.Txn) error {
		dependents = collectKeys(txn, reactionPrefix(id), viewPrefix(id))
		return nil
	}); err != nil {
		return err
	}

	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range dependents {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	if err := wb.Flush(); err != nil {
		return err
	}

	return m.update(func(txn *badger.Txn) error {
		_, key, err := getMessage(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(messageIndexKey(id))
	})
}

// GetMessages retrieves messages for a specific room using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted by time.
// Pages go from newest to oldest and stop once limitMessages is reached.
// The returned cursor is nil once the history is exhausted.
func (m MessageRepository) GetMessages(room chat.RoomID, cursor *string) ([]chat.Message, *string, error) {
	var diskMessages []DiskMessage
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefixStr := messagePrefix(room)
		prefix := []byte(prefixStr)
		prefixLen := len(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible timestamp, then walk backwards
			seekKey = append(prefix, []byte("9999999999999999999")...)
		default:
			seekKey = append(prefix, []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(diskMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				var dm DiskMessage
				if err := json.Unmarshal(value, &dm); err != nil {
					return err
				}
				diskMessages = append(diskMessages, dm)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	messages := lo.Map(diskMessages, func(item DiskMessage, _ int) chat.Message {
		return toMessage(item)
	})
	// A short page is the last one, there is nothing left to point at
	if m.limitMessages == nil || len(messages) < *m.limitMessages {
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}

// ToggleReaction deletes the reaction when present and creates it otherwise.
// Check and act run in one transaction: two identical concurrent toggles
// conflict, and the loser is replayed against the winner's result.
func (m MessageRepository) ToggleReaction(reaction chat.Reaction) (chat.ToggleAction, error) {
	var action chat.ToggleAction
	bytes, err := json.Marshal(fromReaction(reaction))
	if err != nil {
		return "", err
	}
	err = m.update(func(txn *badger.Txn) error {
		if _, _, err := getMessage(txn, reaction.MessageID); err != nil {
			return err
		}
		key := reactionKey(reaction)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			action = chat.ReactionRemoved
			return txn.Delete(key)
		case errors.Is(err, badger.ErrKeyNotFound):
			action = chat.ReactionAdded
			return txn.Set(key, bytes)
		default:
			return err
		}
	})
	return action, err
}

func (m MessageRepository) ListReactions(messageID uuid.UUID) ([]chat.Reaction, error) {
	var reactions []chat.Reaction
	err := m.db.View(func(txn *badger.Txn) error {
		return scan(txn, reactionPrefix(messageID), func(value []byte) error {
			var dr DiskReaction
			if err := json.Unmarshal(value, &dr); err != nil {
				return err
			}
			reactions = append(reactions, toReaction(dr))
			return nil
		})
	})
	return reactions, err
}

// MarkViewed inserts the read receipt once, it reports false when it already existed.
func (m MessageRepository) MarkViewed(view chat.View) (bool, error) {
	var created bool
	bytes, err := json.Marshal(fromView(view))
	if err != nil {
		return false, err
	}
	err = m.update(func(txn *badger.Txn) error {
		created = false
		if _, _, err := getMessage(txn, view.MessageID); err != nil {
			return err
		}
		key := viewKey(view)
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			created = true
			return txn.Set(key, bytes)
		default:
			return err
		}
	})
	return created, err
}

func (m MessageRepository) ListViews(messageID uuid.UUID) ([]chat.View, error) {
	var views []chat.View
	err := m.db.View(func(txn *badger.Txn) error {
		return scan(txn, viewPrefix(messageID), func(value []byte) error {
			var dv DiskView
			if err := json.Unmarshal(value, &dv); err != nil {
				return err
			}
			views = append(views, toView(dv))
			return nil
		})
	})
	return views, err
}

func getMessage(txn *badger.Txn, id uuid.UUID) (chat.Message, []byte, error) {
	item, err := txn.Get(messageIndexKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, nil, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return chat.Message{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return chat.Message{}, nil, err
	}
	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return chat.Message{}, nil, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return chat.Message{}, nil, err
	}
	var dm DiskMessage
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &dm)
	}); err != nil {
		return chat.Message{}, nil, err
	}
	return toMessage(dm), key, nil
}

func scan(txn *badger.Txn, prefix []byte, fn func(value []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func collectKeys(txn *badger.Txn, prefixes ...[]byte) [][]byte {
	var keys [][]byte
	options := badger.DefaultIteratorOptions
	options.PrefetchValues = false
	for _, prefix := range prefixes {
		it := txn.NewIterator(options)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
	}
	return keys
}

func fromMessage(message chat.Message) DiskMessage {
	return DiskMessage{
		ID:      message.ID,
		Room:    string(message.Room),
		Author:  message.SenderID,
		Content: message.Content,
		At:      message.CreatedAt.UnixNano(),
		Edited:  message.Edited,
	}
}

func toMessage(dm DiskMessage) chat.Message {
	return chat.Message{
		ID:        dm.ID,
		Room:      chat.RoomID(dm.Room),
		SenderID:  dm.Author,
		Content:   dm.Content,
		CreatedAt: time.Unix(0, dm.At).UTC(),
		Edited:    dm.Edited,
	}
}

func fromReaction(r chat.Reaction) DiskReaction {
	return DiskReaction{
		ID:        r.ID,
		MessageID: r.MessageID,
		UserID:    r.UserID,
		Emoji:     r.Emoji,
		At:        r.CreatedAt.UnixNano(),
	}
}

func toReaction(dr DiskReaction) chat.Reaction {
	return chat.Reaction{
		ID:        dr.ID,
		MessageID: dr.MessageID,
		UserID:    dr.UserID,
		Emoji:     dr.Emoji,
		CreatedAt: time.Unix(0, dr.At).UTC(),
	}
}

func fromView(v chat.View) DiskView {
	return DiskView{MessageID: v.MessageID, ViewerID: v.ViewerID, At: v.ViewedAt.UnixNano()}
}

func toView(dv DiskView) chat.View {
	return chat.View{MessageID: dv.MessageID, ViewerID: dv.ViewerID, ViewedAt: time.Unix(0, dv.At).UTC()}
}
