package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCanSubscribe(t *testing.T) {
	client := User{ID: "c1", Role: RoleClient}
	admin := User{ID: "a1", Role: RoleAdmin}

	tests := []struct {
		name    string
		user    User
		channel string
		want    bool
	}{
		{"own notifications", client, NotificationChannel("c1"), true},
		{"foreign notifications", client, NotificationChannel("c2"), false},
		{"own room", client, RoomChannel(NewRoomID("c1", "a1")), true},
		{"foreign room", client, RoomChannel(NewRoomID("c2", "a1")), false},
		{"own room with an underscored admin", client, RoomChannel(NewRoomID("admin_1", "c1")), true},
		{"room of a lookalike id", User{ID: "1_c1", Role: RoleClient}, RoomChannel(NewRoomID("admin_1", "c1")), false},
		{"broadcast", client, BroadcastChannel, true},
		{"system alerts feed", client, ChangeChannel(TableSystemAlerts), true},
		{"users feed", client, ChangeChannel(TableUsers), false},
		{"admin everywhere", admin, ChangeChannel(TableSecurityAlerts), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CanSubscribe(tt.user, tt.channel))
		})
	}
}
