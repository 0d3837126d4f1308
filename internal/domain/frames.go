package domain

// Frame types shared by the websocket sessions, the group bus payloads and the
// synchronous send path. Inbound and outbound chat frames deliberately use the
// same type tag: what a client sends as a chat_message comes back to every room
// subscriber as a chat_message carrying the persisted record.
const (
	FrameChatMessage      = "chat_message"
	FrameNotification     = "notification"
	FramePresenceUpdate   = "presence_update"
	FrameVisibilityChange = "visibility_change"
)

// ChatFrame is the inbound send request on a chat connection.
type ChatFrame struct {
	Type        string `json:"type"`
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
	Attachment  string `json:"attachment,omitempty"`
	TempID      string `json:"temp_id,omitempty"`
}

// DeliveryEvent is published to a room group once a message is persisted and
// forwarded verbatim to every subscribed connection. TempID carries the
// client-side correlation token back to the origin connection so it can
// replace its optimistic placeholder.
type DeliveryEvent struct {
	Type    string   `json:"type"`
	Message *Message `json:"message"`
	TempID  string   `json:"temp_id,omitempty"`
}

// NotificationEvent is published to a user's private group.
type NotificationEvent struct {
	Type string        `json:"type"`
	Data *Notification `json:"data"`
}

// PresenceEvent is published to the global presence group. Status is
// "online" or "offline"; clients filter to the contacts they care about.
type PresenceEvent struct {
	Type   string `json:"type"`
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// VisibilityFrame is the inbound preference-change request on a presence
// connection. The handler relays it as a PresenceEvent without touching the
// stored visibility flag.
type VisibilityFrame struct {
	Type   string `json:"type"`
	Status string `json:"status"`
}

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)
