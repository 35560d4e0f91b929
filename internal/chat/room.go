package chat

import (
	"sort"
	"time"

	"github.com/nfrund/signalhub/internal/password"
)

// RoomOptions carries the optional settings accepted at room creation.
type RoomOptions struct {
	// Password protects the room when non-empty. Only its hash is retained.
	Password string
	// GuestLimit caps simultaneous members. Zero means unlimited.
	GuestLimit int
	// AdminList holds the client IDs granted admin rights.
	AdminList []string
	// IsPublic lists the room in the public lobby.
	IsPublic bool
}

// Room tracks the state of a single chat room: connected clients, settings
// and activity used for expiration.
type Room struct {
	Name         string
	Slug         string
	PasswordHash string
	GuestLimit   int
	AdminList    []string
	IsPublic     bool

	clients    map[string]*Client
	lastActive time.Time
	expire     *time.Timer
}

func newRoom(name, slug string, opts RoomOptions, hash string, now time.Time) *Room {
	return &Room{
		Name:         name,
		Slug:         slug,
		PasswordHash: hash,
		GuestLimit:   opts.GuestLimit,
		AdminList:    opts.AdminList,
		IsPublic:     opts.IsPublic,
		clients:      make(map[string]*Client),
		lastActive:   now,
	}
}

// ClientInfo is the per-member entry of a room-info payload.
type ClientInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// RoomInfo is the payload of a room-info message.
type RoomInfo struct {
	RoomID  string       `json:"room_id"`
	Clients []ClientInfo `json:"clients"`
}

// Info returns the room ID together with the current member list.
func (r *Room) Info() RoomInfo {
	clients := make([]ClientInfo, 0, len(r.clients))
	for _, c := range r.clients {
		clients = append(clients, ClientInfo{ID: c.ID, Username: c.Username})
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].ID < clients[j].ID })
	return RoomInfo{RoomID: r.Slug, Clients: clients}
}

// Authenticate checks access to the room. An unprotected room admits only
// requests that carry no password; a protected room requires a hash match.
func (r *Room) Authenticate(h password.Hasher, pw string) bool {
	if r.PasswordHash == "" {
		return pw == ""
	}
	return h.Verify(pw, r.PasswordHash)
}

// IsFull reports whether the guest limit has been reached.
func (r *Room) IsFull() bool {
	return r.GuestLimit > 0 && len(r.clients) >= r.GuestLimit
}

// LastActive returns the later of the room's own activity and the most
// recent activity of any member. The value never decreases.
func (r *Room) LastActive() time.Time {
	for _, c := range r.clients {
		if c.lastSeen.After(r.lastActive) {
			r.lastActive = c.lastSeen
		}
	}
	return r.lastActive
}

// ActiveAgo returns the number of whole minutes since the room was last
// active.
func (r *Room) ActiveAgo(now time.Time) int {
	return int(now.Sub(r.LastActive()) / time.Minute)
}

// Clients returns the current members of the room.
func (r *Room) Clients() []*Client {
	members := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		members = append(members, c)
	}
	return members
}

// addClient attaches a client to the room, keeping the membership map and
// the client's back-reference consistent in one step.
func (r *Room) addClient(c *Client) error {
	if r.IsFull() {
		return ErrGuestLimitReached
	}
	r.clients[c.ID] = c
	c.room = r
	return nil
}

// removeClient detaches a client and advances lastActive to at least the
// departing client's lastSeen.
func (r *Room) removeClient(c *Client) {
	if c.lastSeen.After(r.lastActive) {
		r.lastActive = c.lastSeen
	}
	c.room = nil
	delete(r.clients, c.ID)
}

// broadcast delivers a copy of the message to every member, readdressed to
// that member's ID.
func (r *Room) broadcast(m Message) {
	for _, c := range r.clients {
		out := m
		out.Receiver = c.ID
		c.send(out)
	}
}

// cancelExpire stops any pending expiration timer.
func (r *Room) cancelExpire() {
	if r.expire != nil {
		r.expire.Stop()
		r.expire = nil
	}
}
