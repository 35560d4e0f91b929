package chat

import (
	"log/slog"
	"time"

	"github.com/nfrund/signalhub/internal/queue"
)

// DefaultUsername is assigned to clients that never sent a profile.
const DefaultUsername = "Major Tom"

// Client represents a single connected participant. The transport layer
// pushes raw frames onto Inbox and drains serialized messages from Outbox;
// everything else is owned by the Manager's dispatcher.
type Client struct {
	ID       string
	Username string

	// Inbox carries raw inbound payloads from the transport to the router.
	Inbox *queue.Queue[[]byte]
	// Outbox carries serialized outbound messages back to the transport.
	Outbox *queue.Queue[[]byte]

	room     *Room
	lastSeen time.Time
	closed   bool
}

func newClient(id string, now time.Time) *Client {
	return &Client{
		ID:       id,
		Username: DefaultUsername,
		Inbox:    queue.New[[]byte](),
		Outbox:   queue.New[[]byte](),
		lastSeen: now,
	}
}

// Room returns the room the client currently belongs to, or nil.
func (c *Client) Room() *Room {
	return c.room
}

// LastSeen returns the time of the client's most recent inbound message.
func (c *Client) LastSeen() time.Time {
	return c.lastSeen
}

// touch records inbound activity.
func (c *Client) touch(now time.Time) {
	c.lastSeen = now
}

// send enqueues a message on the client's outbox. Failures are swallowed;
// delivery to a departing client is best-effort by design.
func (c *Client) send(m Message) {
	raw, err := m.Encode()
	if err != nil {
		slog.Warn("could not encode message for client", "client_id", c.ID, "error", err)
		return
	}
	if !c.Outbox.Push(raw) {
		slog.Debug("dropping message for closed client", "client_id", c.ID, "type", m.Type)
		return
	}
	slog.Debug("sent message to client", "client_id", c.ID, "type", m.Type)
}

// shutdown sends a final bye, closes both queues and marks the client
// unusable for further routing. Safe to call more than once.
func (c *Client) shutdown(now time.Time) {
	if c.closed {
		return
	}
	c.closed = true

	c.send(newControlMessage(c.ID, TypeBye, now.UnixMilli()))
	c.Inbox.Close()
	c.Outbox.Close()
	slog.Info("shut down client", "client_id", c.ID)
}
