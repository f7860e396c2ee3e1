package domain

import (
	"sort"
	"strings"
)

// RoomID names the pub/sub channel of a two-party conversation.
type RoomID string

const roomSeparator = "_"

// NewRoomID sorts both participant ids lexically and joins them,
// so NewRoomID(a, b) == NewRoomID(b, a).
func NewRoomID(a, b string) RoomID {
	ids := []string{a, b}
	sort.Strings(ids)
	return RoomID(strings.Join(ids, roomSeparator))
}

// Has reports whether userID is one of the two participants. Ids may hold
// the separator themselves, so userID must sit at either end of the room
// and sort on the right side of the remainder.
func (r RoomID) Has(userID string) bool {
	room := string(r)
	if other, ok := strings.CutPrefix(room, userID+roomSeparator); ok && other != "" && userID <= other {
		return true
	}
	if other, ok := strings.CutSuffix(room, roomSeparator+userID); ok && other != "" && other <= userID {
		return true
	}
	return false
}

func (r RoomID) String() string { return string(r) }
