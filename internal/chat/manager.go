package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/nfrund/signalhub/internal/ice"
	"github.com/nfrund/signalhub/internal/password"
	"github.com/nfrund/signalhub/internal/pubsub"
	"github.com/nfrund/signalhub/internal/queue"
	"github.com/nfrund/signalhub/internal/store"
)

// Default liveness and lifecycle windows.
const (
	// DefaultPingInterval is how often idle clients are pinged.
	DefaultPingInterval = 30 * time.Second
	// DefaultReapTimeout is the silence after which a client is removed.
	DefaultReapTimeout = 60 * time.Second
	// DefaultRoomExpiry is the idle window after which a room is removed.
	DefaultRoomExpiry = 3600 * time.Second
)

const greetingText = "This is Ground Control to Major Tom: You've really made " +
	"the grade. Now it's time to leave the capsule if you dare."

// IceProvider supplies per-client ICE server descriptors.
type IceProvider interface {
	IceServers(ctx context.Context, clientID string) []ice.Server
}

// Manager owns the room registry, the client registry and the message
// dispatcher. All room and client state is mutated on a single dispatcher
// goroutine, which consumes one work queue in strict arrival order; the
// maps are additionally guarded for lookups from transport goroutines.
type Manager struct {
	store     store.Store
	issuer    IceProvider
	publisher pubsub.Publisher
	hasher    password.Hasher
	logger    *slog.Logger
	clock     func() time.Time

	pingInterval time.Duration
	reapTimeout  time.Duration
	roomExpiry   time.Duration

	mu      sync.RWMutex
	rooms   map[string]*Room
	clients map[string]*Client

	work    *queue.Queue[func()]
	control map[string]func(*Client, Message)

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithPingInterval sets how often idle clients are pinged.
func WithPingInterval(d time.Duration) Option {
	return func(m *Manager) { m.pingInterval = d }
}

// WithReapTimeout sets the silence after which clients are reaped.
func WithReapTimeout(d time.Duration) Option {
	return func(m *Manager) { m.reapTimeout = d }
}

// WithRoomExpiry sets the idle window after which rooms expire.
func WithRoomExpiry(d time.Duration) Option {
	return func(m *Manager) { m.roomExpiry = d }
}

// WithClock overrides the time source, mainly for tests.
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) { m.clock = clock }
}

// NewManager constructs the chat core and starts its dispatcher and sweep
// loops. Call Shutdown to tear it down.
func NewManager(st store.Store, issuer IceProvider, publisher pubsub.Publisher, hasher password.Hasher, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:        st,
		issuer:       issuer,
		publisher:    publisher,
		hasher:       hasher,
		logger:       slog.Default().With("service", "chat"),
		clock:        time.Now,
		pingInterval: DefaultPingInterval,
		reapTimeout:  DefaultReapTimeout,
		roomExpiry:   DefaultRoomExpiry,
		rooms:        make(map[string]*Room),
		clients:      make(map[string]*Client),
		work:         queue.New[func()](),
		ctx:          ctx,
		cancel:       cancel,
	}
	for _, opt := range opts {
		opt(m)
	}

	// Explicit dispatch table for control-plane messages.
	m.control = map[string]func(*Client, Message){
		TypePing:        m.handlePing,
		TypePong:        m.handlePong,
		TypeProfile:     m.handleProfile,
		TypeGetRoomInfo: m.handleGetRoomInfo,
		TypeGetIce:      m.handleGetIceServers,
		TypeGreeting:    m.handleGreeting,
		TypeBye:         m.handleBye,
	}

	m.wg.Add(2)
	go m.dispatch()
	go m.sweepLoop()

	m.logger.Info("chat manager started",
		"ping_interval", m.pingInterval,
		"reap_timeout", m.reapTimeout,
		"room_expiry", m.roomExpiry)
	return m
}

// dispatch is the single consumer of the work queue. One item is fully
// handled before the next is dequeued, which is what keeps room and client
// state free of data races without per-entity locks.
func (m *Manager) dispatch() {
	defer m.wg.Done()
	for {
		fn, err := m.work.Pop(m.ctx)
		if err != nil {
			return
		}
		m.runTask(fn)
	}
}

// runTask executes one unit of work, containing any panic so a bad handler
// cannot stop the dispatcher.
func (m *Manager) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("recovered from dispatcher panic", "panic", r)
		}
	}()
	fn()
}

// submit enqueues work for the dispatcher without waiting.
func (m *Manager) submit(fn func()) bool {
	return m.work.Push(fn)
}

// do runs fn on the dispatcher and waits for it to complete. It is the
// synchronization point for every externally invoked operation.
func (m *Manager) do(fn func()) error {
	done := make(chan struct{})
	if !m.submit(func() {
		defer close(done)
		fn()
	}) {
		return ErrManagerClosed
	}
	<-done
	return nil
}

// Route hands a raw inbound payload to the routing core. Unknown clients
// are a logged no-op.
func (m *Manager) Route(raw []byte, clientID string) {
	m.mu.RLock()
	c, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		m.logger.Info("dropping payload from unknown client", "client_id", clientID)
		return
	}
	c.Inbox.Push(raw)
}

// pump forwards one client's inbox onto the shared work queue, preserving
// per-client FIFO order. It exits when the inbox is closed.
func (m *Manager) pump(c *Client) {
	defer m.wg.Done()
	for {
		raw, err := c.Inbox.Pop(m.ctx)
		if err != nil {
			return
		}
		m.submit(func() { m.handleInbound(c.ID, raw) })
	}
}

// handleInbound runs on the dispatcher: refresh liveness, classify and
// route a single message.
func (m *Manager) handleInbound(clientID string, raw []byte) {
	c, ok := m.clients[clientID]
	if !ok || c.closed {
		m.logger.Info("dropping payload from removed client", "client_id", clientID)
		return
	}
	c.touch(m.clock())

	msg, err := ParseMessage(raw)
	if err != nil {
		m.logger.Warn("dropping malformed message", "client_id", clientID, "error", err)
		return
	}
	if msg.Sender == "" {
		msg.Sender = c.ID
	}

	switch msg.Receiver {
	case AddrGroundControl:
		m.handleControl(c, msg)
	case AddrRoom:
		m.handleRoomMessage(c, msg)
	default:
		m.handleDirectMessage(c, msg)
	}
}

// handleControl dispatches a control-plane message through the handler
// table. Unrecognized types get an error reply.
func (m *Manager) handleControl(c *Client, msg Message) {
	if handler, ok := m.control[msg.Type]; ok {
		handler(c, msg)
		return
	}
	c.send(newControlMessage(c.ID, TypeError,
		fmt.Sprintf("Unknown message type: %s", msg.Type)))
}

// handleRoomMessage broadcasts to every member of the sender's current
// room. The room the sender belongs to right now is authoritative.
func (m *Manager) handleRoomMessage(c *Client, msg Message) {
	room := c.room
	if room == nil {
		m.logger.Info("dropping room message from roomless client", "client_id", c.ID)
		return
	}
	room.broadcast(msg)
}

// handleDirectMessage forwards a message to a known client, or drops it.
// Dropping without an error reply is deliberate; see the design notes.
func (m *Manager) handleDirectMessage(c *Client, msg Message) {
	to, ok := m.clients[msg.Receiver]
	if !ok || to.closed {
		m.logger.Info("message recipient does not exist", "receiver", msg.Receiver, "sender", c.ID)
		return
	}
	to.send(msg)
}

func (m *Manager) handlePing(c *Client, msg Message) {
	c.send(newControlMessage(c.ID, TypePong, msg.Data))
}

func (m *Manager) handlePong(c *Client, msg Message) {
	m.logger.Debug("got pong from client", "client_id", c.ID, "data", string(msg.Data))
}

func (m *Manager) handleProfile(c *Client, msg Message) {
	var profile struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(msg.Data, &profile); err != nil {
		m.logger.Warn("ignoring malformed profile", "client_id", c.ID, "error", err)
		return
	}
	if profile.Username != "" {
		c.Username = profile.Username
	}
	if c.room != nil {
		m.broadcastRoomInfo(c.room)
	}
}

func (m *Manager) handleGetRoomInfo(c *Client, msg Message) {
	if c.room == nil {
		m.logger.Info("room info requested by roomless client", "client_id", c.ID)
		return
	}
	c.send(newControlMessage(c.ID, TypeRoomInfo, c.room.Info()))
}

// handleGetIceServers must not block the dispatcher: the issuer may hit
// the network for external tokens. The fetch runs on its own goroutine and
// the reply re-enters through the work queue, re-checking that the client
// is still registered.
func (m *Manager) handleGetIceServers(c *Client, msg Message) {
	if m.issuer == nil {
		c.send(newControlMessage(c.ID, TypeIceServers, []ice.Server(nil)))
		return
	}
	id := c.ID
	go func() {
		servers := m.issuer.IceServers(m.ctx, id)
		m.submit(func() {
			target, ok := m.clients[id]
			if !ok || target.closed {
				m.logger.Debug("discarding ice-servers reply for removed client", "client_id", id)
				return
			}
			target.send(newControlMessage(id, TypeIceServers, servers))
		})
	}()
}

func (m *Manager) handleGreeting(c *Client, msg Message) {
	m.logger.Info("greeting received from client", "client_id", c.ID, "data", string(msg.Data))
}

func (m *Manager) handleBye(c *Client, msg Message) {
	m.removeClientLocked(c, TopicClientLeft)
}

// broadcastRoomInfo sends the room's current membership to every member.
func (m *Manager) broadcastRoomInfo(room *Room) {
	msg := Message{
		Sender: AddrGroundControl,
		Type:   TypeRoomInfo,
		Data:   marshalData(room.Info()),
	}
	room.broadcast(msg)
}

// CreateRoom registers a new room. The slug is derived from the name; a
// collision fails with ErrDuplicateRoom.
func (m *Manager) CreateRoom(name string, opts RoomOptions) (*Room, error) {
	var (
		room *Room
		err  error
	)
	if doErr := m.do(func() {
		room, err = m.createRoom(name, opts)
	}); doErr != nil {
		return nil, doErr
	}
	return room, err
}

func (m *Manager) createRoom(name string, opts RoomOptions) (*Room, error) {
	id := slug.Make(name)
	if _, exists := m.rooms[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRoom, id)
	}

	var hash string
	if opts.Password != "" {
		h, err := m.hasher.Hash(opts.Password)
		if err != nil {
			return nil, fmt.Errorf("hashing room password: %w", err)
		}
		hash = h
	}

	now := m.clock()
	room := newRoom(name, id, opts, hash, now)
	m.mu.Lock()
	m.rooms[id] = room
	m.mu.Unlock()

	m.armExpireTimer(room, m.roomExpiry)

	if m.store != nil {
		record := &store.RoomRecord{
			Slug:       room.Slug,
			Name:       room.Name,
			IsPublic:   room.IsPublic,
			GuestLimit: room.GuestLimit,
			CreatedAt:  now,
		}
		// Persistence is best-effort and must not stall routing.
		go func() {
			if err := m.store.CreateRoom(m.ctx, record); err != nil {
				m.logger.Warn("could not persist room", "room_id", record.Slug, "error", err)
			}
		}()
	}

	m.publish(TopicRoomCreated, "", RoomEvent{RoomID: id})
	m.logger.Info("created room", "room_id", id)
	return room, nil
}

// armExpireTimer schedules an expiration check. The callback re-enters the
// dispatcher, so a room removed in the meantime is a safe no-op.
func (m *Manager) armExpireTimer(room *Room, in time.Duration) {
	id := room.Slug
	room.expire = time.AfterFunc(in, func() {
		m.submit(func() { m.checkExpire(id) })
	})
}

// checkExpire runs on the dispatcher when a room's expire timer fires. If
// members kept the room active, the timer is re-armed for the remaining
// idle budget instead of expiring a live room.
func (m *Manager) checkExpire(id string) {
	room, ok := m.rooms[id]
	if !ok {
		return
	}

	now := m.clock()
	idle := now.Sub(room.LastActive())
	if idle >= m.roomExpiry {
		m.logger.Info("room expired", "room_id", id, "idle", idle)
		m.removeRoom(room, TopicRoomExpired)
		return
	}
	m.armExpireTimer(room, m.roomExpiry-idle)
}

// removeRoom drops the room from the registry and cascades shutdown to all
// members.
func (m *Manager) removeRoom(room *Room, topic string) {
	room.cancelExpire()

	m.mu.Lock()
	delete(m.rooms, room.Slug)
	m.mu.Unlock()

	for _, c := range room.Clients() {
		room.removeClient(c)
		m.dropClient(c)
	}

	if m.store != nil {
		slug := room.Slug
		go func() {
			if err := m.store.DeleteRoom(m.ctx, slug); err != nil {
				m.logger.Warn("could not delete persisted room", "room_id", slug, "error", err)
			}
		}()
	}
	m.publish(topic, "", RoomEvent{RoomID: room.Slug})
	m.logger.Info("removed room", "room_id", room.Slug)
}

// RemoveRoom shuts a room down explicitly.
func (m *Manager) RemoveRoom(id string) error {
	var err error
	if doErr := m.do(func() {
		room, ok := m.rooms[id]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrRoomNotFound, id)
			return
		}
		m.removeRoom(room, TopicRoomExpired)
	}); doErr != nil {
		return doErr
	}
	return err
}

// GetRoom returns the room for a slug, or nil.
func (m *Manager) GetRoom(id string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

// RoomSummary is the lobby listing entry for a public room.
type RoomSummary struct {
	Slug       string `json:"room_id"`
	Name       string `json:"name"`
	NumClients int    `json:"num_clients"`
	ActiveAgo  int    `json:"active_ago"`
}

// PublicRooms lists public rooms ordered by minutes-since-activity
// ascending, i.e. most recently active first.
func (m *Manager) PublicRooms() []RoomSummary {
	var out []RoomSummary
	m.do(func() {
		now := m.clock()
		for _, room := range m.rooms {
			if !room.IsPublic {
				continue
			}
			out = append(out, RoomSummary{
				Slug:       room.Slug,
				Name:       room.Name,
				NumClients: len(room.clients),
				ActiveAgo:  room.ActiveAgo(now),
			})
		}
		sort.SliceStable(out, func(i, j int) bool { return out[i].ActiveAgo < out[j].ActiveAgo })
	})
	return out
}

// RoomInfo returns the membership snapshot for a room.
func (m *Manager) RoomInfo(roomID string) (RoomInfo, error) {
	var (
		info RoomInfo
		err  error
	)
	if doErr := m.do(func() {
		room, ok := m.rooms[roomID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
			return
		}
		info = room.Info()
	}); doErr != nil {
		return RoomInfo{}, doErr
	}
	return info, err
}

// Authenticate checks a password against a room.
func (m *Manager) Authenticate(roomID, pw string) (bool, error) {
	var (
		ok  bool
		err error
	)
	if doErr := m.do(func() {
		room, exists := m.rooms[roomID]
		if !exists {
			err = fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
			return
		}
		ok = room.Authenticate(m.hasher, pw)
	}); doErr != nil {
		return false, doErr
	}
	return ok, err
}

// CreateClient registers a new client. An empty ID gets a generated one.
// The client is greeted on its outbox, per long-standing tradition.
func (m *Manager) CreateClient(id string) (*Client, error) {
	if id == "" {
		id = uuid.NewString()
	}
	var (
		c   *Client
		err error
	)
	if doErr := m.do(func() {
		if _, exists := m.clients[id]; exists {
			err = fmt.Errorf("%w: %s", ErrDuplicateClient, id)
			return
		}
		c = newClient(id, m.clock())
		m.mu.Lock()
		m.clients[id] = c
		m.mu.Unlock()

		m.wg.Add(1)
		go m.pump(c)

		c.send(newControlMessage(c.ID, TypeGreeting, greetingText))

		if m.store != nil {
			record := &store.ClientRecord{ID: id, Username: c.Username, CreatedAt: m.clock()}
			go func() {
				if storeErr := m.store.CreateClient(m.ctx, record); storeErr != nil {
					m.logger.Warn("could not persist client", "client_id", record.ID, "error", storeErr)
				}
			}()
		}
		m.logger.Info("created client", "client_id", id)
	}); doErr != nil {
		return nil, doErr
	}
	return c, err
}

// GetClient returns a registered client, or nil.
func (m *Manager) GetClient(id string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.clients[id]
}

// JoinRoom attaches a client to a room, enforcing the guest limit.
func (m *Manager) JoinRoom(roomID, clientID string) error {
	var err error
	if doErr := m.do(func() {
		room, ok := m.rooms[roomID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
			return
		}
		c, ok := m.clients[clientID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
			return
		}
		if addErr := room.addClient(c); addErr != nil {
			err = addErr
			return
		}
		m.broadcastRoomInfo(room)
		m.publish(TopicClientJoined, clientID, ClientEvent{ClientID: clientID, RoomID: roomID})
		m.logger.Info("client joined room", "client_id", clientID, "room_id", roomID)
	}); doErr != nil {
		return doErr
	}
	return err
}

// RemoveClient detaches and shuts down a client. Removing an unknown
// client is a no-op, which keeps sweeps idempotent.
func (m *Manager) RemoveClient(id string) error {
	return m.do(func() {
		if c, ok := m.clients[id]; ok {
			m.removeClientLocked(c, TopicClientLeft)
		}
	})
}

// removeClientLocked runs on the dispatcher: detach from the room, tell
// the remaining members, shut the client down and forget it.
func (m *Manager) removeClientLocked(c *Client, topic string) {
	room := c.room
	roomID := ""
	if room != nil {
		room.removeClient(c)
		m.broadcastRoomInfo(room)
		roomID = room.Slug
	}
	m.dropClient(c)
	m.publish(topic, c.ID, ClientEvent{ClientID: c.ID, RoomID: roomID})
}

// dropClient shuts the client down and removes it from the registry.
func (m *Manager) dropClient(c *Client) {
	c.shutdown(m.clock())
	m.mu.Lock()
	delete(m.clients, c.ID)
	m.mu.Unlock()

	if m.store != nil {
		id := c.ID
		go func() {
			if err := m.store.DeleteClient(m.ctx, id); err != nil {
				m.logger.Warn("could not delete persisted client", "client_id", id, "error", err)
			}
		}()
	}
}

// sweepLoop drives the periodic liveness sweeps. Each cycle is submitted
// to the dispatcher, so sweeps never race message handling.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	pingTicker := time.NewTicker(m.pingInterval)
	reapTicker := time.NewTicker(m.reapTimeout)
	defer pingTicker.Stop()
	defer reapTicker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-pingTicker.C:
			m.submit(m.pingSweep)
		case <-reapTicker.C:
			m.submit(m.reapSweep)
		}
	}
}

// pingSweep sends an unsolicited ping to every client that has been quiet
// for longer than the ping interval.
func (m *Manager) pingSweep() {
	now := m.clock()
	for _, c := range m.clients {
		if now.Sub(c.lastSeen) > m.pingInterval {
			m.logger.Debug("pinging idle client", "client_id", c.ID)
			c.send(newControlMessage(c.ID, TypePing, now.UnixMilli()))
		}
	}
}

// reapSweep removes every client that has been silent past the reap
// timeout, notifying its former room.
func (m *Manager) reapSweep() {
	now := m.clock()
	for _, c := range m.clients {
		if now.Sub(c.lastSeen) >= m.reapTimeout {
			m.logger.Info("reaping silent client", "client_id", c.ID, "last_seen", c.lastSeen)
			m.removeClientLocked(c, TopicClientReaped)
		}
	}
}

// publish emits a lifecycle event on the bus, best-effort.
func (m *Manager) publish(topic, clientID string, event any) {
	if m.publisher == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("could not marshal lifecycle event", "topic", topic, "error", err)
		return
	}
	msg := pubsub.Message{
		Topic:    topic,
		ClientID: clientID,
		Payload:  payload,
		Metadata: map[string]string{"timestamp": m.clock().UTC().Format(time.RFC3339)},
	}
	if err := m.publisher.Publish(m.ctx, msg); err != nil {
		m.logger.Error("could not publish lifecycle event", "topic", topic, "error", err)
	}
}

// Shutdown tears the manager down: every room is shut down with its
// members, timers are canceled and the dispatcher drains and stops.
func (m *Manager) Shutdown(ctx context.Context) error {
	err := m.do(func() {
		for _, room := range m.rooms {
			m.removeRoom(room, TopicRoomExpired)
		}
		for _, c := range m.clients {
			m.dropClient(c)
		}
	})

	// Close the queue before canceling: a submit racing shutdown then
	// fails fast instead of landing on a queue nobody drains, and items
	// already accepted still run (the queue drains before reporting
	// closed).
	m.stopOnce.Do(func() {
		m.work.Close()
		m.cancel()
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	m.logger.Info("chat manager stopped")
	return err
}
