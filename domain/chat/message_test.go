package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessage_EditableAt(t *testing.T) {
	req := require.New(t)
	createdAt := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	msg := Message{SenderID: "alice", Content: "hello", CreatedAt: createdAt}

	tests := []struct {
		name     string
		at       time.Time
		editable bool
	}{
		{"Right after creation", createdAt, true},
		{"One minute later", createdAt.Add(time.Minute), true},
		{"Just before the window closes", createdAt.Add(EditWindow - time.Millisecond), true},
		{"Exactly at the boundary", createdAt.Add(EditWindow), true},
		{"Just after the window closes", createdAt.Add(EditWindow + time.Millisecond), false},
		{"Long after", createdAt.Add(time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req.Equal(tt.editable, msg.EditableAt(tt.at))
		})
	}
}

func TestIdentity_IsMemberOf(t *testing.T) {
	req := require.New(t)

	req.True(Identity{UserID: "x", College: "MIT", Verified: true}.IsMemberOf("MIT"))
	// Unverified students cannot post, even in their own college
	req.False(Identity{UserID: "x", College: "MIT", Verified: false}.IsMemberOf("MIT"))
	req.False(Identity{UserID: "z", College: "Stanford", Verified: true}.IsMemberOf("MIT"))
}
