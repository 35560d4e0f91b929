package chat

// Bus topics announcing room and client lifecycle changes.
const (
	TopicRoomCreated  = "chat.room.created"
	TopicRoomExpired  = "chat.room.expired"
	TopicClientJoined = "chat.client.joined"
	TopicClientLeft   = "chat.client.left"
	TopicClientReaped = "chat.client.reaped"
)

// RoomEvent is the payload published on room lifecycle topics.
type RoomEvent struct {
	RoomID string `json:"room_id"`
}

// ClientEvent is the payload published on client lifecycle topics.
type ClientEvent struct {
	ClientID string `json:"client_id"`
	RoomID   string `json:"room_id,omitempty"`
}
