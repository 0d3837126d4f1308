package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomAddress identifies a two-party chat room. The same pair of users always
// yields the same address no matter which side opened the connection.
type RoomAddress string

// NewRoomAddress builds the canonical address for a pair of user ids.
func NewRoomAddress(a, b int64) RoomAddress {
	if a > b {
		a, b = b, a
	}
	return RoomAddress(fmt.Sprintf("%d_%d", a, b))
}

// ParseRoomAddress parses a connection-supplied room selector such as "7_3"
// and returns the canonical address ("3_7"). The selector must be exactly two
// numeric ids separated by an underscore.
func ParseRoomAddress(s string) (RoomAddress, error) {
	parts := strings.Split(s, "_")
	if len(parts) != 2 {
		return "", fmt.Errorf("room selector %q: want two ids", s)
	}
	a, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("room selector %q: %w", s, err)
	}
	b, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("room selector %q: %w", s, err)
	}
	if a <= 0 || b <= 0 {
		return "", fmt.Errorf("room selector %q: ids must be positive", s)
	}
	return NewRoomAddress(a, b), nil
}

// ChatGroup is the bus group carrying delivery events for this room.
func (r RoomAddress) ChatGroup() string {
	return "chat_" + string(r)
}

// NotificationGroup is the private bus group for one user.
func NotificationGroup(userID int64) string {
	return fmt.Sprintf("notifications_%d", userID)
}

// PresenceGroup is the single global group carrying presence transitions.
const PresenceGroup = "presence"
