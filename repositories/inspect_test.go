package repositories

import (
	"campus-chat/domain/chat"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestDescribe_Every_Row_Kind(t *testing.T) {
	req := require.New(t)
	db := openDB(t)
	repository := NewMessageRepository(db, slog.Default(), nil)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	msg := newMessage("MIT", "alice", "hello", at)
	req.NoError(repository.StoreMessage(msg))
	_, err := repository.ToggleReaction(chat.Reaction{ID: uuid.New(), MessageID: msg.ID, UserID: "bob", Emoji: "🔥", CreatedAt: at})
	req.NoError(err)
	_, err = repository.MarkViewed(chat.View{MessageID: msg.ID, ViewerID: "bob", ViewedAt: at})
	req.NoError(err)

	kinds := map[string]InspectRow{}
	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			value, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			row := Describe(it.Item().KeyCopy(nil), value)
			kinds[row.Kind] = row
		}
		return nil
	})
	req.NoError(err)

	req.Len(kinds, 4)
	req.Equal("[MIT] alice: hello", kinds["MESSAGE"].Detail)
	req.Equal(at, kinds["MESSAGE"].At)
	req.Contains(kinds["REACTION"].Detail, "🔥")
	req.Contains(kinds["VIEW"].Detail, "bob viewed")
	req.Contains(kinds["INDEX"].Detail, "msg:MIT:")

	req.Equal("CORRUPTED", Describe([]byte("msg:MIT:1:x"), []byte("{")).Kind)
	req.Equal("UNKNOWN", Describe([]byte("other"), nil).Kind)
}
