package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewRoomID_IsSymmetric(t *testing.T) {
	req := require.New(t)
	for i := 0; i < 50; i++ {
		a, b := uuid.NewString(), uuid.NewString()
		req.Equal(NewRoomID(a, b), NewRoomID(b, a))
	}
}

func TestNewRoomID_SortsLexically(t *testing.T) {
	req := require.New(t)

	room := NewRoomID("zed", "alice")

	req.Equal(RoomID("alice_zed"), room)
	req.True(room.Has("alice"))
	req.True(room.Has("zed"))
	req.False(room.Has("bob"))
}

func TestMessage_Room(t *testing.T) {
	req := require.New(t)
	m1 := Message{SenderID: "a", RecipientID: "b"}
	m2 := Message{SenderID: "b", RecipientID: "a"}
	req.Equal(m1.Room(), m2.Room())
}

func TestRoomID_Has_With_Separator_In_Ids(t *testing.T) {
	tests := []struct {
		name   string
		a, b   string
		userID string
		want   bool
	}{
		{"first id holds the separator", "admin_1", "c1", "admin_1", true},
		{"second id after an underscored one", "admin_1", "c1", "c1", true},
		{"leading part of an id", "admin_1", "c1", "admin", false},
		{"trailing part of an id", "admin_1", "c1", "1_c1", false},
		{"both ids hold the separator", "a_b", "c_d", "c_d", true},
		{"middle of the room", "a_b", "c_d", "b_c", false},
		{"empty id", "a", "b", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, NewRoomID(tt.a, tt.b).Has(tt.userID))
		})
	}
}
